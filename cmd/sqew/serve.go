package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/SecretDeveloper/sqew/internal/observability"
	"github.com/SecretDeveloper/sqew/internal/server/rest"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sqew HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			logger := newLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			reg := prometheus.NewRegistry()
			metrics := observability.NewMetrics("sqew", reg)

			srv := rest.NewServer(db, logger, metrics)
			handler := rest.NewRouter(srv, reg)

			addr := net.JoinHostPort(cfg.BindAddr, strconv.Itoa(cfg.Port))
			httpServer := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			logger.Info("sqew server starting",
				slog.String("addr", addr),
				slog.String("db", cfg.DBPath),
			)

			errCh := make(chan error, 1)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- fmt.Errorf("HTTP server: %w", err)
				}
				close(errCh)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown error", slog.Any("error", err))
			}

			logger.Info("sqew server exited cleanly")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8888, "Port to listen on")
	return cmd
}
