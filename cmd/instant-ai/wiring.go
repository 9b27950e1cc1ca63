package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bekaIva/instant-ai-translator/internal/backend"
	"github.com/bekaIva/instant-ai-translator/internal/bridge"
	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/journal"
	"github.com/bekaIva/instant-ai-translator/internal/loop"
	"github.com/bekaIva/instant-ai-translator/internal/prefs"
	"github.com/bekaIva/instant-ai-translator/internal/storage"
)

const journalWriteTimeout = 5 * time.Second

// stores holds the persistent state a command works against.
type stores struct {
	db      *sql.DB
	prefs   prefs.Writer
	journal *journal.Journal // nil when the journal is disabled
	closers []func() error
}

// openStores opens the SQLite database when the prefs driver or the journal needs it, and
// the prefs store selected by cfg.Prefs.Driver.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	if cfg.Prefs.Driver == "sqlite" || cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("open database %s: %w", cfg.State.Path, err)
		}
		s.db = db
		s.closers = append(s.closers, db.Close)
	}

	switch cfg.Prefs.Driver {
	case "sqlite":
		s.prefs = prefs.NewSQLiteStore(s.db)
	case "redis":
		rc := cfg.Prefs.Redis
		rs := prefs.NewRedisStore(rc.Addr, rc.Password, rc.DB, prefs.WithPrefix(rc.Prefix))
		s.prefs = rs
		s.closers = append(s.closers, rs.Close)
	case "memory":
		s.prefs = prefs.NewMemoryStore()
	default:
		_ = s.Close()
		return nil, fmt.Errorf("unknown prefs driver %q", cfg.Prefs.Driver)
	}

	if cfg.Journal.Enabled {
		s.journal = journal.New(s.db)
	}
	return s, nil
}

// Close releases everything openStores opened, newest first.
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// engine is the processing side: backend runtime, its loop and the bridge in front of it.
type engine struct {
	looper   *loop.Looper
	bridge   *bridge.Bridge
	registry *prometheus.Registry
}

func newEngine(cfg *config.Config, st *stores, logger *slog.Logger) (*engine, error) {
	rt, err := backend.Open(cfg.Backend)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	opts := []bridge.Option{
		bridge.WithRetry(cfg.Retry),
		bridge.WithCallTimeout(cfg.Backend.Timeout),
		bridge.WithRegisterer(registry),
	}
	if st.journal != nil {
		opts = append(opts, bridge.WithObserver(journalObserver(st.journal, logger)))
	}

	looper := loop.New()
	b, err := bridge.New(rt, looper, opts...)
	if err != nil {
		looper.Close()
		return nil, err
	}
	logger.Debug("engine ready", "backend", rt.Name(), "max_retries", cfg.Retry.MaxRetries)
	return &engine{looper: looper, bridge: b, registry: registry}, nil
}

func (e *engine) Close() {
	e.looper.Close()
}

// journalObserver records every finished call. Failures to write are logged and dropped.
func journalObserver(j *journal.Journal, logger *slog.Logger) func(bridge.Call) {
	return func(c bridge.Call) {
		rec := journal.Record{
			Operation: c.Operation,
			Input:     c.Text,
			Outcome:   journal.OutcomeSuccess,
			Attempts:  c.Outcome.Attempts,
			Duration:  c.Duration,
		}
		if !c.Outcome.OK() {
			rec.Outcome = journal.OutcomeFailure
			rec.FailureKind = c.Outcome.Failure.Kind.String()
			rec.Message = c.Outcome.Failure.Message
		}

		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		defer cancel()
		if _, err := j.Record(ctx, rec); err != nil {
			logger.Warn("failed to journal call", "operation", c.Operation, "error", err)
		}
	}
}
