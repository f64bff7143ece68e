package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
	"github.com/pnku766-alt/fusionintel-core/pkg/config"
	"github.com/pnku766-alt/fusionintel-core/pkg/observability"
	"github.com/pnku766-alt/fusionintel-core/pkg/orchestrator"
	"github.com/pnku766-alt/fusionintel-core/pkg/store"
)

// chainVerifier is implemented by mirrors that can re-check their hash chain.
type chainVerifier interface {
	VerifyChain(ctx context.Context) error
}

// subsystems holds the process-lifetime dependencies built from config.
type subsystems struct {
	telemetry *observability.Provider
	mirrors   []audit.Sink
	closers   []func() error
}

// openSubsystems builds telemetry and every configured audit mirror. On
// error, anything already opened is closed.
func openSubsystems(ctx context.Context, cfg *config.Config) (_ *subsystems, err error) {
	s := &subsystems{}
	defer func() {
		if err != nil {
			s.Close(ctx)
		}
	}()

	s.telemetry, err = observability.New(ctx, cfg.Observability(version))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	s.closers = append(s.closers, func() error { return s.telemetry.Shutdown(ctx) })

	if cfg.AuditSQLitePath != "" {
		db, err := store.OpenSQLite(cfg.AuditSQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		m, err := store.NewSQLiteMirror(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("sqlite mirror: %w", err)
		}
		s.mirrors = append(s.mirrors, m)
	}

	if cfg.DatabaseURL != "" {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		m, err := store.NewPostgresMirror(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("postgres mirror: %w", err)
		}
		s.mirrors = append(s.mirrors, m)
	}

	if cfg.RedisAddr != "" {
		m := store.NewRedisStreamMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AuditStream)
		s.closers = append(s.closers, m.Close)
		s.mirrors = append(s.mirrors, m)
	}

	for _, m := range s.mirrors {
		slog.Info("audit mirror enabled", "sink", m.Name())
	}
	return s, nil
}

func (s *subsystems) pipeline() *orchestrator.Pipeline {
	return orchestrator.New(
		orchestrator.WithSinks(s.mirrors...),
		orchestrator.WithTelemetry(s.telemetry),
	)
}

// verifyMirrors re-checks every mirror's chain and joins the failures.
func (s *subsystems) verifyMirrors(ctx context.Context) (checked []string, err error) {
	var errs []error
	for _, m := range s.mirrors {
		v, ok := m.(chainVerifier)
		if !ok {
			continue
		}
		checked = append(checked, m.Name())
		if verr := v.VerifyChain(ctx); verr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), verr))
		}
	}
	return checked, errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (s *subsystems) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.WarnContext(ctx, "close failed", "error", err)
		}
	}
	s.closers = nil
}
