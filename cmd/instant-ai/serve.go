package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bekaIva/instant-ai-translator/internal/api"
	"github.com/bekaIva/instant-ai-translator/internal/auth"
	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/journal"
	"github.com/bekaIva/instant-ai-translator/internal/lock"
	"github.com/bekaIva/instant-ai-translator/internal/log"
)

const pruneInterval = time.Hour

func newServeCmd(flags *rootFlags) *cobra.Command {
	var noWarmup bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service in the foreground",
		Long: `Starts the processing bridge and, when api.enabled is set, the HTTP API.
The backend is started once at boot unless --no-warmup is given; a failed
warm-up is logged and retried by the first request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, !noWarmup)
		},
	}
	cmd.Flags().BoolVar(&noWarmup, "no-warmup", false, "Start the backend on the first request instead of at boot")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, warmup bool) error {
	logger := log.WithComponent("main")
	logger.Info("instant-ai starting", "version", version, "config", cfg.SourcePath, "backend", cfg.Backend.Kind)

	pidLock, err := lock.AcquirePIDLock(cfg.State.LockPath)
	if err != nil {
		return fmt.Errorf("another instance may be running: %w", err)
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLock.Path())

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

	if warmup {
		if _, err := eng.bridge.EnsureReady(ctx); err != nil {
			logger.Warn("backend warm-up failed", "error", err)
		} else {
			logger.Info("backend ready")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for i, t := range cfg.API.Auth.Tokens {
			if err := auth.CheckScopes(t.Scopes); err != nil {
				return fmt.Errorf("api.auth.tokens[%d]: %w", i, err)
			}
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokens,
		}
		var history api.History
		if st.journal != nil {
			history = st.journal
		}
		srv := api.New(apiConfig, eng.bridge, st.prefs, history, eng.registry, log.WithComponent("api"))
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	} else {
		logger.Info("API server disabled")
	}

	if st.journal != nil && cfg.Journal.Retention > 0 {
		g.Go(func() error {
			pruneJournal(gctx, st.journal, cfg.Journal.Retention)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	logger.Info("instant-ai stopped")
	return err
}

// pruneJournal drops entries older than retention now and then every pruneInterval until
// ctx is done.
func pruneJournal(ctx context.Context, j *journal.Journal, retention time.Duration) {
	logger := log.WithComponent("journal")
	prune := func() {
		n, err := j.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("journal prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("journal pruned", "removed", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
