package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/log"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "instant-ai",
		Short: "Run AI text operations on selected text",
		Long: `instant-ai processes selected text with a configurable menu of AI operations
(translate, summarize, fix grammar, ...). It runs as a local service for
context-menu hosts or one-shot from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file or directory (default: discovered)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override service.log_level")

	root.AddCommand(
		newServeCmd(flags),
		newProcessCmd(flags),
		newMenuCmd(flags),
		newHistoryCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves, loads and verifies the configuration, then sets up logging on stderr.
func (f *rootFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := f.resolveConfigPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Service.LogLevel = strings.ToLower(f.logLevel)
	}
	log.SetupWithWriter(cfg.Service.LogLevel, cfg.Service.LogFormat, cmd.ErrOrStderr())
	return cfg, nil
}

func (f *rootFlags) resolveConfigPath(cmd *cobra.Command) (string, error) {
	if f.configPath != "" {
		return f.configPath, nil
	}
	discovered, err := config.Discover()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Using discovered config: %s\n", discovered)
	return discovered, nil
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
