package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/menu"
	"github.com/bekaIva/instant-ai-translator/internal/prefs"
)

func newMenuCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Show or replace the processing menu",
	}
	cmd.AddCommand(newMenuListCmd(flags), newMenuSetCmd(flags))
	return cmd
}

func newMenuListCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the enabled menu items in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			items, fallback := menu.Resolve(menu.GetEnabledConfigs(cmd.Context(), st.prefs))
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Items    []menu.MenuItemConfig `json:"items"`
					Fallback bool                  `json:"fallback"`
				}{items, fallback})
			}

			if fallback {
				fmt.Fprintln(cmd.ErrOrStderr(), "No menu configured; showing fallback actions.")
			}
			for _, item := range items {
				fmt.Fprintf(out, "%s %-20s %-16s %s\n", item.Icon, menu.DisplayLabel(item), item.Operation, item.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the menu as JSON")
	return cmd
}

func newMenuSetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set FILE|-",
		Short: "Replace the configured menu with a JSON array of items",
		Long: `Reads a JSON array of menu items (id, label, operation, description,
enabled, icon, sortOrder) from FILE, or stdin for "-", validates it and stores
it in the preference store, replacing the current menu.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			items, err := menu.ParseConfigs(string(raw))
			if err != nil {
				return err
			}
			if err := menu.Validate(items); err != nil {
				return fmt.Errorf("invalid menu: %w", err)
			}

			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			blob, err := menu.EncodeConfigs(items)
			if err != nil {
				return err
			}
			if err := st.prefs.SetString(cmd.Context(), prefs.MenuConfigKey, blob); err != nil {
				return fmt.Errorf("store menu: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d menu item(s), %d enabled.\n", len(items), len(menu.EnabledSorted(items)))
			return nil
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent processing outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("journal is disabled (journal.enabled: false)")
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			entries, err := st.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries.")
				return nil
			}
			for _, e := range entries {
				status := string(e.Outcome)
				if e.FailureKind != "" {
					status += "/" + e.FailureKind
				}
				fmt.Fprintf(out, "%s  %-14s %-30s attempts=%d  %s  len=%d  %s\n",
					e.CreatedAt.Local().Format(time.DateTime),
					e.Operation,
					status,
					e.Attempts,
					e.Duration.Round(time.Millisecond),
					e.InputLen,
					e.InputHash[:min(12, len(e.InputHash))],
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration integrity",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash",
		Short: "Record the config file's BLAKE3 hash in the checksum manifest",
		Long: `Writes the hash of the config file to the .checksums manifest next to it.
Once a manifest exists, the config is refused at load time unless it matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := flags.resolveConfigPath(cmd)
			if err != nil {
				return err
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, "config.yaml")
			}
			hash, err := config.WriteChecksum(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", hash, path)
			return nil
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentVersionInfo()
			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("render version JSON: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "instant-ai %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built_at: %s\n", info.BuildTime)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output version metadata as JSON")
	return cmd
}
