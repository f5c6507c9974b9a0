/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/listforge/internal/transport/rest"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the listing generation HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  POST /generate-listing      generate a listing (alias /v1/generate-listing)
  GET  /health                liveness probe
  GET  /v1/history            recorded runs (when the store is enabled)
  GET  /v1/history/{id}       one run with its attempts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := buildStack(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer st.Close()

		container := &rest.Container{
			Listings: st.svc,
			CORS:     cfg.Server.CORS,
			Logger:   logger,
		}
		// A nil *store.Store must not become a non-nil interface.
		if st.history != nil {
			container.History = st.history
		}

		srv := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      rest.NewRouter(container),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Listening",
				zap.String("addr", cfg.Server.Addr),
				zap.String("generator", string(cfg.Generator.Provider)),
				zap.String("evaluator", string(cfg.Evaluator.Provider)),
				zap.Int("max_retries", cfg.Policy.MaxRetries),
				zap.Int("min_score", cfg.Policy.MinScore))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "Listen address (overrides server.addr)")
}
