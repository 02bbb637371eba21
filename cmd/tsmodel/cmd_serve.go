// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsmodel/services/tsmodel/api"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		addr      string
		debug     bool
		snapshots bool
		maxBody   int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compile, validate and snapshot API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}

			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			opts := []api.HandlerOption{
				api.WithLogger(a.logger),
				api.WithVersion(version),
				api.WithMaxBodyBytes(maxBody),
			}
			if snapshots || cfg.Snapshots.Enabled {
				mgr, closer, err := a.openSnapshots(cfg)
				if err != nil {
					return fmt.Errorf("opening snapshot store: %w", err)
				}
				defer closer.Close()
				opts = append(opts, api.WithSnapshots(mgr))
			}

			router := api.NewRouter(api.NewHandlers(cfg, opts...), api.RouterOptions{
				Debug:   debug,
				Tracing: a.tracing != "none",
			})
			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("starting tsmodel server", slog.String("address", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down tsmodel server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode and request logging")
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "Serve snapshot endpoints even if disabled in config")
	cmd.Flags().Int64Var(&maxBody, "max-body", api.DefaultMaxBodyBytes, "Maximum request body size in bytes")
	return cmd
}
