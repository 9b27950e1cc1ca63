package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bekaIva/instant-ai-translator/internal/log"
	"github.com/bekaIva/instant-ai-translator/internal/menu"
	"github.com/bekaIva/instant-ai-translator/internal/present"
)

// errProcessingFailed is returned after a failure outcome has been printed.
var errProcessingFailed = errors.New("processing failed")

type processOutput struct {
	Result         string   `json:"result"`
	IsError        bool     `json:"is_error"`
	FailureKind    string   `json:"failure_kind,omitempty"`
	Attempts       int      `json:"attempts"`
	Actions        []string `json:"actions"`
	CanApply       bool     `json:"can_apply"`
	ReprocessInput string   `json:"reprocess_input"`
}

func newProcessCmd(flags *rootFlags) *cobra.Command {
	var (
		operation string
		readOnly  bool
		jsonOut   bool
		preview   bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "process --op OPERATION [TEXT...]",
		Short: "Run one operation on text and print the result",
		Long: `Runs OPERATION on TEXT through the configured backend, with the same retry
and failure handling as the service. Without TEXT, or with "-", the text is
read from stdin. A failure is printed as "ERROR: <message>" and exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSelection(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if err := present.CheckSelection(text); err != nil {
				return err
			}

			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			eng, err := newEngine(cfg, st, log.WithComponent("bridge"))
			if err != nil {
				return err
			}
			defer eng.Close()

			out := cmd.OutOrStdout()
			if preview && !jsonOut {
				fmt.Fprintln(cmd.ErrOrStderr(), menu.Preview(text, menu.DefaultPreviewChars))
			}

			outcome, err := eng.bridge.ProcessSync(ctx, text, operation)
			if err != nil {
				return fmt.Errorf("no outcome: %w", err)
			}
			res := present.Resolve(outcome, text, readOnly)

			if jsonOut {
				po := processOutput{
					Result:         res.Text,
					IsError:        res.IsError,
					Attempts:       outcome.Attempts,
					Actions:        make([]string, 0, len(res.Actions)),
					CanApply:       res.Allows(present.Apply),
					ReprocessInput: res.ReprocessInput(),
				}
				for _, a := range res.Actions {
					po.Actions = append(po.Actions, string(a))
				}
				if !outcome.OK() {
					po.FailureKind = outcome.Failure.Kind.String()
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(po); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, res.Text)
			}

			if res.IsError {
				return errProcessingFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&operation, "op", "o", "", "Operation to run (e.g. translate, summarize, fix_grammar)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "The text cannot be replaced in place (no apply action)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the presented result as JSON")
	cmd.Flags().BoolVar(&preview, "preview", false, "Print a preview of the selection to stderr first")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum time to wait for an outcome")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

// readSelection joins args, or reads r when there are none or the only one is "-".
func readSelection(r io.Reader, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSuffix(string(b), "\n"), nil
	}
	return strings.Join(args, " "), nil
}
