package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngAnzar/rpc/config"
	"github.com/ngAnzar/rpc/core/registry"
	"github.com/ngAnzar/rpc/core/schema"
	"github.com/ngAnzar/rpc/rpc"
	"github.com/ngAnzar/rpc/rpc/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "serve [inputs...]",
		Short: "Start a development rpc server",
		Long: `Start a development server that answers batched calls on POST /rpc
and GET /ws, with Prometheus metrics on /metrics.

Every method declared by the input documents is registered as a stub that
logs the call and answers null, so generated clients can be exercised before
the real backend exists. rpc.methods lists the registered names.

Examples:
  rpcgen serve --addr :8080
  rpcgen serve -i 'schema/**/*.json'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if all := append(append([]string{}, inputs...), args...); len(all) > 0 {
				cfg.Inputs = all
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, else :8080)")
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "documents whose methods get stubs")
	return cmd
}

func (c *cli) serve(ctx context.Context, cfg *config.Config) error {
	logger := c.logger(cfg.Logging)

	srv, err := newDevServer(cfg, logger)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Int("methods", len(srv.Methods())).Msg("rpc server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// newDevServer builds the server and registers a stub for every method of
// the configured inputs.
func newDevServer(cfg *config.Config, logger zerolog.Logger) (*server.Server, error) {
	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(rpc.NewMetrics(cfg.Metrics.Namespace)))
	}
	srv := server.New(opts...)

	if len(cfg.Inputs) > 0 {
		files, err := expandInputs(cfg.Inputs)
		if err != nil {
			return nil, err
		}
		reg, err := registry.New(registry.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if _, err := reg.Get(file); err != nil {
				return nil, err
			}
		}
		for _, doc := range reg.Documents() {
			for _, m := range doc.Methods {
				srv.Handle(m.Name.FullName(), stub(m, logger))
			}
		}
	}

	srv.Handle("rpc.methods", func(context.Context, any) (any, error) {
		return srv.Methods(), nil
	})
	return srv, nil
}

func stub(m *schema.Method, logger zerolog.Logger) server.MethodFunc {
	name := m.Name.FullName()
	return func(ctx context.Context, params any) (any, error) {
		logger.Info().Str("method", name).Interface("params", params).Msg("stub called")
		return nil, nil
	}
}
