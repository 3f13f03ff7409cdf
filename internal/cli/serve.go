package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/config"
	"github.com/yanizio/tenantstore/internal/httpapi"
	"github.com/yanizio/tenantstore/internal/idgen"
	"github.com/yanizio/tenantstore/internal/logger"
	"github.com/yanizio/tenantstore/internal/rds"
	"github.com/yanizio/tenantstore/internal/server"
	"github.com/yanizio/tenantstore/internal/vault"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ShutdownGrace time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the entity API and /metrics",
		Long: `Load configuration, start the file logger, build every configured entity,
and serve the REST gateway plus the Prometheus endpoint until SIGINT or
SIGTERM.

Secrets written as vault:<mount>/<path>#<key> are resolved through Vault
when VAULT_ADDR is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.ShutdownGrace, "shutdown-grace", 10*time.Second, "time allowed for in-flight requests on shutdown")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	logger.Bootstrap()

	//
	// ── 1.  Secrets and configuration ──────────────────────────────────
	//
	var sec config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx)
		if err != nil {
			return err
		}
		sec = vc
	}

	root := opts.Root
	if root == "" {
		root = config.RootDir()
	}
	cfg, err := config.LoadFrom(ctx, root, sec)
	if err != nil {
		return err
	}

	//
	// ── 2.  File logger ────────────────────────────────────────────────
	//
	logDir := cfg.Log.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(cfg.Paths.Root, logDir)
	}
	log, err := logger.New(logger.Options{Dir: logDir, Level: cfg.Log.Level, Tee: cfg.Log.Tee || runningInTTY()})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	//
	// ── 3.  Ids, datasources, and entities ─────────────────────────────
	//
	gc, err := cfg.IDGen.GeneratorConfig()
	if err != nil {
		return err
	}
	gen, err := idgen.New(gc)
	if err != nil {
		return err
	}

	reg := rds.NewRegistry(cfg.RDS.Sources(), cfg.RDS.Aliases, nil)
	defer func() {
		if err := reg.Close(); err != nil {
			log.Warnw("datasource close failed", "err", err)
		}
	}()

	services, err := BuildServices(ctx, cfg, reg, gen)
	if err != nil {
		return err
	}

	//
	// ── 4.  Router and server ──────────────────────────────────────────
	//
	var apiOpts []httpapi.Option
	if db := cfg.HTTP.GeoIPDB; db != "" {
		if !filepath.IsAbs(db) {
			db = filepath.Join(cfg.Paths.Root, db)
		}
		geo, err := httpapi.OpenGeoIP(db)
		if err != nil {
			return fmt.Errorf("geoip: %w", err)
		}
		defer geo.Close()
		apiOpts = append(apiOpts, httpapi.WithGeoIP(geo))
	}

	r := httpapi.New(services, apiOpts...).Routes()
	r.Handle(cfg.HTTP.MetricsPath, promhttp.Handler())

	srv := server.New(cfg.HTTP.ListenAddr, r, server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", cfg.HTTP.ListenAddr, "entities", len(services))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down", "grace", opts.ShutdownGrace)
	shutCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		zap.L().Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
