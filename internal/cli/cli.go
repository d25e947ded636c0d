// Package cli команды агента chatsync и сервера chatsync-server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/iudanet/chatsync/internal/cli/iocli"
	"github.com/iudanet/chatsync/internal/config"
	"github.com/iudanet/chatsync/internal/identity"
	"github.com/iudanet/chatsync/internal/source"
	"github.com/iudanet/chatsync/internal/storage/boltdb"
	"github.com/iudanet/chatsync/internal/sync"
	"github.com/iudanet/chatsync/internal/transport/httpclient"
)

// BuildInfo версия сборки, задается через ldflags
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// Cli зависимости одной команды агента
type Cli struct {
	io      iocli.IO
	cfg     *config.Config
	logger  *slog.Logger
	device  *identity.Device
	store   *boltdb.Storage
	service *sync.Service
	version string
}

// open открывает идентичность, хранилище и сервис синхронизации
func open(ctx context.Context, io iocli.IO, cfg *config.Config, logger *slog.Logger, version string) (*Cli, error) {
	device, created, err := identity.LoadOrCreate(cfg.DataDir, cfg.DeviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load device identity: %w", err)
	}
	if created {
		logger.Info("Device identity created", "device_id", device.ID, "path", identity.Path(cfg.DataDir))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Sync.DB), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := boltdb.New(ctx, cfg.Sync.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	opts := []sync.Option{sync.WithPeerStorage(store)}
	if src := newSource(cfg.Source, logger); src.Len() > 0 {
		opts = append(opts, sync.WithSource(src))
	}

	service, err := sync.NewService(sync.Config{
		DeviceID:       device.ID,
		DeviceName:     device.DisplayName(),
		Version:        version,
		PullLimit:      cfg.Sync.PullLimit,
		PushBatchSize:  cfg.Sync.PushBatchSize,
		RequestTimeout: cfg.Sync.RequestTimeout,
		ResyncInterval: cfg.Swarm.ResyncInterval,
	}, store, logger.With("device_id", device.ID), opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if err := service.RestorePeers(ctx); err != nil {
		logger.Warn("Failed to restore peer bookkeeping", "error", err)
	}

	return &Cli{
		io:      io,
		cfg:     cfg,
		logger:  logger,
		device:  device,
		store:   store,
		service: service,
		version: version,
	}, nil
}

// Close закрывает хранилище
func (c *Cli) Close() error {
	if c.service != nil {
		c.service.Close()
	}
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// newSource источники из конфигурации, пустые пути пропускаются
func newSource(cfg config.SourceConfig, logger *slog.Logger) *source.Multi {
	var readers []source.Reader
	if cfg.Dir != "" {
		readers = append(readers, source.NewDir(cfg.Dir, logger))
	}
	if cfg.VSCDB != "" {
		readers = append(readers, source.NewVSCDB(cfg.VSCDB, logger))
	}
	return source.NewMulti(logger, readers...)
}

// serverPeer HTTP клиент сервера синхронизации
func (c *Cli) serverPeer() *httpclient.Client {
	return httpclient.New(c.cfg.Sync.ServerURL,
		httpclient.WithDeviceID(c.device.ID),
		httpclient.WithTimeout(c.cfg.Sync.RequestTimeout),
		httpclient.WithRetries(c.cfg.Sync.Retries, 500*time.Millisecond),
		httpclient.WithLogger(c.logger),
	)
}

// confirm запрашивает подтверждение yes/no
func (c *Cli) confirm(prompt string) (bool, error) {
	answer, err := c.io.ReadInput(prompt + " (yes/no): ")
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return answer == "yes" || answer == "y", nil
}

// describeError человекочитаемое пояснение к типовым ошибкам синхронизации
func describeError(err error) string {
	switch {
	case errors.Is(err, sync.ErrPeerUnreachable):
		return "server is unreachable, local changes are kept and will be sent next time"
	case errors.Is(err, sync.ErrSelfPeer):
		return "server reports this device id, check that it is not pointed at itself"
	case errors.Is(err, sync.ErrStore):
		return "local database failed"
	default:
		return ""
	}
}
