package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/whatsnext/whatsnext/internal/config"
	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/logging"
	"github.com/whatsnext/whatsnext/internal/procguard"
	"github.com/whatsnext/whatsnext/internal/server"
	"github.com/whatsnext/whatsnext/internal/store/sqlite"
)

func serveCmd() *cobra.Command {
	var (
		dbPath          string
		stateDir        string
		logPath         string
		rateLimitPerMin int
		debug           bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker daemon: HTTP API + scheduling engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg := loader.Current()

			if stateDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolving state directory: %w", err)
				}
				stateDir = filepath.Join(home, ".whatsnext")
			}
			if dbPath == "" {
				dbPath = filepath.Join(stateDir, "whatsnext.db")
			}

			log := logging.New(logging.Options{FilePath: logPath, Debug: debug})

			lock, err := procguard.Acquire(stateDir, procguard.Info{
				Project: cfg.Project,
				Addr:    cfg.ServerAddr(),
			})
			if err != nil {
				return fmt.Errorf("acquiring daemon lock: %w", err)
			}
			defer lock.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			st, err := sqlite.Open(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			e := engine.New(st, log)
			srv := server.New(e, log, server.Options{
				APIKey:          cfg.Server.APIKey,
				RateLimitPerMin: rateLimitPerMin,
			})

			loader.WatchReload(func(updated config.Config) {
				log.Info("config reloaded", "log_level", updated.LogLevel)
			})

			listener, err := net.Listen("tcp", cfg.ServerAddr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.ServerAddr(), err)
			}

			httpServer := &http.Server{Handler: srv}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("broker listening", "addr", cfg.ServerAddr())
				if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return awaitShutdown(gctx, log, httpServer)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the sqlite database file (default $state-dir/whatsnext.db)")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "daemon state directory (default $HOME/.whatsnext)")
	cmd.Flags().StringVar(&logPath, "log-file", "", "rotate logs to this file instead of stderr")
	cmd.Flags().IntVar(&rateLimitPerMin, "rate-limit", 0, "per-remote-address requests/minute (0 disables)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

// awaitShutdown blocks until SIGINT/SIGTERM or ctx is cancelled, then
// drains in-flight HTTP requests with a bounded timeout. Grounded on the
// teacher's web UI server shutdown sequence (examples/beads-web-ui/main.go).
func awaitShutdown(ctx context.Context, log *logging.Logger, httpServer *http.Server) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		log.Info("shutdown signal received")
	case <-ctx.Done():
		return ctx.Err()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()

	if err := httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	log.Info("broker stopped")
	return nil
}
