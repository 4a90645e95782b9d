package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"table1837/internal/app"
	"table1837/internal/config"
	"table1837/internal/notify"
	"table1837/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath, natsURL string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the staff API and realtime hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			authCfg := server.AuthConfig{
				JWTSecret: viper.GetString("jwt-secret"),
				DevLogin:  devLogin,
				Logger:    slog.NewLogLogger(logger.With("component", "auth").Handler(), slog.LevelWarn),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("T1837_JWT_SECRET is required for bearer auth")
			}
			workspace := viper.GetString("workspace")
			a, err := app.Open(ctx, app.Options{
				Workspace: workspace,
				NATSURL:   natsURL,
				Realtime:  true,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Hub:      a.Hub,
				BasePath: basePath,
				Auth:     authCfg,
				Gatherer: a.Registry,
				Logger:   logger.With("component", "http"),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			notifier := notify.New(a.Engine.Repo, a.Config, a.Metrics, logger.With("component", "notify"))
			watcher := config.NewWatcher(workspace, a.Config, logger.With("component", "config"), func(cfg *config.Config) {
				logger.Info("config reloaded", "venue", cfg.Venue.ID, "checklists", len(cfg.Checklists), "cocktails", len(cfg.Cocktails))
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("serving staff api", "addr", addr, "base_path", basePath, "openapi", basePath+"/openapi.json", "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error { return a.Relay(gctx) })
			g.Go(func() error { return notifier.Run(gctx) })
			g.Go(func() error { return watcher.Run(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS url for relaying broadcasts between instances")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}
