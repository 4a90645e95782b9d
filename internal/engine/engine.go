package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"table1837/internal/config"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/metrics"
	"table1837/internal/repo"
)

// Broadcaster publishes authoritative events on a realtime channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, event string, data any) error
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Holder
	Hub     Broadcaster
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Holder) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Metrics: metrics.New(nil),
		Logger:  slog.Default(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) cfg() (*config.Config, error) {
	if e.Config == nil || e.Config.Get() == nil {
		return nil, errors.New("config not loaded")
	}
	return e.Config.Get(), nil
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) require(p auth.Principal, c auth.Capability) error {
	cfg, err := e.cfg()
	if err != nil {
		return err
	}
	return auth.Service{Config: cfg}.Require(p, c)
}

// CanEdit reports whether roles may change the 86 list and checklists.
func (e Engine) CanEdit(roles []string) bool {
	cfg, err := e.cfg()
	if err != nil {
		return false
	}
	return cfg.CanEdit(roles)
}

// broadcast runs after commit. Failures are logged only.
func (e Engine) broadcast(ctx context.Context, channel, event string, data any) {
	if e.Hub == nil {
		return
	}
	if err := e.Hub.Broadcast(ctx, channel, event, data); err != nil {
		e.logger().Error("broadcast failed", "channel", channel, "event", event, "err", err)
	}
}

func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
