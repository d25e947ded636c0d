package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iudanet/chatsync/internal/config"
	"github.com/iudanet/chatsync/internal/identity"
	"github.com/iudanet/chatsync/internal/server"
	"github.com/iudanet/chatsync/internal/storage/sqlite"
	"github.com/iudanet/chatsync/internal/sync"
)

// NewServerCommand корневая команда chatsync-server: центральная реплика с HTTP API
func NewServerCommand(build BuildInfo) *cobra.Command {
	return newServerCommand(&RootOptions{Build: build})
}

func newServerCommand(opts *RootOptions) *cobra.Command {
	opts.viper = config.New()

	cmd := &cobra.Command{
		Use:               "chatsync-server",
		Short:             "Central replica for chatsync devices",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		PersistentPreRunE: opts.load,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runServer(cmd.Context())
		},
	}

	opts.bindCommon(cmd)
	flags := cmd.Flags()
	flags.String("listen", "", "HTTP listen address")
	flags.String("metrics-listen", "", "Prometheus metrics listen address")
	flags.String("db", "", "path to the SQLite database")
	flags.Int("rate-limit", 0, "requests per minute per device, 0 disables the limit")
	opts.bind(config.KeyServerListen, flags.Lookup("listen"))
	opts.bind(config.KeyServerMetrics, flags.Lookup("metrics-listen"))
	opts.bind(config.KeyServerDB, flags.Lookup("db"))
	opts.bind(config.KeyServerRateLimit, flags.Lookup("rate-limit"))

	cmd.AddCommand(NewVersionCommand(opts))
	return cmd
}

func (o *RootOptions) runServer(ctx context.Context) error {
	cfg := o.cfg

	device, created, err := identity.LoadOrCreate(cfg.DataDir, cfg.DeviceName)
	if err != nil {
		return fmt.Errorf("failed to load server identity: %w", err)
	}
	if created {
		o.logger.Info("Server identity created", "device_id", device.ID)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Server.DB), 0o700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := sqlite.New(ctx, cfg.Server.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			o.logger.Error("Failed to close database", "error", err)
		}
	}()
	o.logger.Info("Database opened", "path", cfg.Server.DB)

	log := o.logger.With("device_id", device.ID)
	service, err := sync.NewService(sync.Config{
		DeviceID:       device.ID,
		DeviceName:     device.DisplayName(),
		Version:        o.Build.Version,
		PullLimit:      cfg.Sync.PullLimit,
		PushBatchSize:  cfg.Sync.PushBatchSize,
		RequestTimeout: cfg.Sync.RequestTimeout,
	}, store, log, sync.WithPeerStorage(store))
	if err != nil {
		return err
	}
	defer service.Close()
	if err := service.RestorePeers(ctx); err != nil {
		o.logger.Warn("Failed to restore peer bookkeeping", "error", err)
	}

	srv := server.New(server.Config{
		ListenAddr:      cfg.Server.Listen,
		MetricsAddr:     cfg.Server.MetricsListen,
		Version:         o.Build.Version,
		RateLimit:       cfg.Server.RateLimit,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, service, log)

	return srv.Run(ctx)
}
