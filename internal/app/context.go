// Package app wires the service together for a workspace: config, storage,
// engine, hub and the optional NATS relay.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"table1837/internal/broker"
	"table1837/internal/config"
	"table1837/internal/db"
	"table1837/internal/engine"
	"table1837/internal/hub"
	"table1837/internal/metrics"
	"table1837/internal/migrate"
	"table1837/internal/server"
)

type Options struct {
	Workspace string
	// NATSURL overrides realtime.nats_url from the config file.
	NATSURL string
	// Realtime builds the hub and, when a NATS url is known, the broker.
	Realtime bool
	Logger   *slog.Logger
}

// Context is an opened workspace.
type Context struct {
	Workspace string
	Config    *config.Holder
	DB        *sql.DB
	Engine    engine.Engine
	Hub       *hub.Hub
	Broker    *broker.NATS
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Open loads the workspace config (falling back to defaults when the file is
// missing), migrates the database and builds the engine.
func Open(ctx context.Context, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	holder := config.NewHolder(cfg)
	e := engine.New(conn, holder)
	e.Metrics = m
	e.Logger = logger.With("component", "engine")
	a := &Context{
		Workspace: opts.Workspace,
		Config:    holder,
		DB:        conn,
		Engine:    e,
		Registry:  reg,
		Metrics:   m,
		Logger:    logger,
	}
	if !opts.Realtime {
		return a, nil
	}

	natsURL := strings.TrimSpace(opts.NATSURL)
	if natsURL == "" {
		natsURL = strings.TrimSpace(cfg.Realtime.NATSURL)
	}
	hubOpts := hub.Options{
		Store:    e.Repo,
		Snapshot: server.Snapshot(e),
		Requests: server.Requests(e, logger.With("component", "hub")),
		Metrics:  m,
		Logger:   logger.With("component", "hub"),
	}
	if natsURL != "" {
		nc, err := broker.NewNATS(natsURL, logger.With("component", "broker"))
		if err != nil {
			conn.Close()
			return nil, err
		}
		a.Broker = nc
		hubOpts.Relay = nc
	}
	a.Hub = hub.New(hubOpts)
	a.Engine.Hub = a.Hub
	// Prime the items gauge.
	if _, err := a.Engine.ListItems(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Relay feeds broadcasts from other instances into the local hub. It returns
// once ctx is done; without a broker it just waits.
func (a *Context) Relay(ctx context.Context) error {
	if a.Broker == nil || a.Hub == nil {
		<-ctx.Done()
		return nil
	}
	err := a.Broker.Subscribe(ctx, func(_ context.Context, msg broker.Message) {
		a.Hub.Deliver(msg.Channel, msg.Event, msg.Data)
	})
	if err != nil {
		return err
	}
	a.Logger.Info("relaying broadcasts", "origin", a.Broker.Origin())
	<-ctx.Done()
	return nil
}

func (a *Context) Close() error {
	var errs []error
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
