// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-core-stack/model-proxy/pkg/config"
	"github.com/go-core-stack/model-proxy/pkg/logger"
	"github.com/go-core-stack/model-proxy/pkg/metric"
	"github.com/go-core-stack/model-proxy/pkg/proxy"
)

var version = "dev"

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "model-proxy",
		Short:         "Envelope proxy in front of the model-serving process",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := root.Flags()
	flags.String(config.KeyConfigFile, "", "path to a YAML config file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("upstream-url", "", "base URL of the model-serving process")
	flags.String("listen-addr", "", "address to listen on")
	_ = v.BindPFlag(config.KeyConfigFile, flags.Lookup(config.KeyConfigFile))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(config.KeyUpstreamURL, flags.Lookup("upstream-url"))
	_ = v.BindPFlag(config.KeyListenAddr, flags.Lookup("listen-addr"))

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print model-proxy version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "model-proxy %s\n", version)
			return err
		},
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if cfg.AppEnv == "prod" || cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := metric.Init(cfg); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := metric.Close(); err != nil {
			log.Warn().Err(err).Msg("close metrics client failed")
		}
	}()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	return serve(ctx, cfg, ln)
}

// serve runs the proxy on ln until ctx is done or a termination signal
// arrives.
func serve(ctx context.Context, cfg config.Config, ln net.Listener) error {
	proxyHandler, err := proxy.New(cfg)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("construct proxy: %w", err)
	}

	server := &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      proxyHandler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen_addr", ln.Addr().String()).
			Str("upstream", cfg.Upstream.String()).
			Str("route_prefix", cfg.RoutePrefix).
			Msg("starting model proxy")
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	return waitForShutdown(ctx, server, serveErr, cfg.GracefulShutdownTimeout)
}

func waitForShutdown(ctx context.Context, srv *http.Server, serveErr <-chan error, timeout time.Duration) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		return fmt.Errorf("proxy server exited unexpectedly: %w", err)
	case <-stop:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down model proxy")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("proxy stopped")
	return nil
}
