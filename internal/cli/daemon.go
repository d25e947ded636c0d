package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/chatsync/internal/config"
	"github.com/iudanet/chatsync/internal/source"
	"github.com/iudanet/chatsync/internal/sync"
	"github.com/iudanet/chatsync/internal/transport/swarm"
)

// NewDaemonCommand фоновая синхронизация: сервер по таймеру, источники по изменениям, swarm в локальной сети
func NewDaemonCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run continuous synchronization until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runDaemon(ctx)
			})
		},
	}

	flags := cmd.Flags()
	flags.Duration("interval", 0, "server sync interval, 0 disables periodic server sync")
	flags.Bool("swarm", false, "exchange with devices on the local network")
	flags.String("swarm-listen", "", "swarm listen address")
	flags.StringSlice("peer", nil, "static swarm peer address host:port (repeatable)")
	opts.bind(config.KeySyncInterval, flags.Lookup("interval"))
	opts.bind(config.KeySwarmEnabled, flags.Lookup("swarm"))
	opts.bind(config.KeySwarmListen, flags.Lookup("swarm-listen"))
	opts.bind(config.KeySwarmPeers, flags.Lookup("peer"))

	return cmd
}

func (c *Cli) runDaemon(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.io.Println("=== chatsync daemon ===")
	c.io.Printf("Device: %s (%s)\n", c.device.DisplayName(), c.device.ID)

	// done собирает завершения фоновых горутин
	done := make(chan error, 8)
	running := 0
	start := func(name string, fn func(context.Context) error) {
		running++
		go func() {
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%s: %w", name, err)
			} else {
				err = nil
			}
			done <- err
		}()
	}

	changed := make(chan struct{}, 1)
	if c.cfg.Source.Watch {
		for _, path := range []string{c.cfg.Source.Dir, c.cfg.Source.VSCDB} {
			if path == "" {
				continue
			}
			w := source.NewWatcher(path, c.cfg.Source.Debounce, c.logger)
			// без наблюдения источник все равно читается в каждом цикле
			start("watcher "+path, func(ctx context.Context) error {
				if err := w.Run(ctx); err != nil && ctx.Err() == nil {
					c.logger.Warn("Source watcher stopped", "path", path, "error", err)
				}
				return nil
			})
			go forward(ctx, w.Changed(), changed)
			c.io.Printf("Watching: %s\n", path)
		}
	}

	if c.cfg.Swarm.Enabled {
		node, err := c.swarmNode()
		if err != nil {
			return err
		}
		if err := node.Listen(); err != nil {
			return err
		}
		c.io.Printf("Swarm:    %s\n", node.Addr())
		start("swarm node", node.Run)
		start("swarm loop", func(ctx context.Context) error {
			return c.service.Run(ctx, node.Events(), node)
		})
	}

	var tick <-chan time.Time
	if c.cfg.Sync.Interval > 0 && c.cfg.Sync.ServerURL != "" {
		ticker := time.NewTicker(c.cfg.Sync.Interval)
		defer ticker.Stop()
		tick = ticker.C
		c.io.Printf("Server:   %s every %s\n", c.cfg.Sync.ServerURL, c.cfg.Sync.Interval)
	}
	c.io.Println()

	c.cycle(ctx, tick != nil)

	var failed error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick:
			c.cycle(ctx, true)
		case <-changed:
			// изменения источника сразу отправляются на сервер, если он настроен
			c.cycle(ctx, tick != nil)
		case err := <-done:
			running--
			if err != nil {
				failed = err
				break loop
			}
		}
	}

	cancel()
	for ; running > 0; running-- {
		<-done
	}

	if failed != nil {
		return failed
	}
	c.io.Println("Daemon stopped.")
	return nil
}

// cycle импорт и, если withServer, обмен с сервером. Ошибки только логируются.
func (c *Cli) cycle(ctx context.Context, withServer bool) {
	var peers []sync.Peer
	if withServer {
		peers = append(peers, c.serverPeer())
	}

	result, err := c.service.RunCycle(ctx, peers...)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("Sync cycle failed", "error", err)
		}
		return
	}

	attrs := []any{"exchanges", len(result.Exchanges), "failures", len(result.Failures)}
	if result.Import != nil {
		attrs = append(attrs, "imported", result.Import.Imported)
	}
	c.logger.Info("Sync cycle completed", attrs...)
}

// swarmNode узел локальной сети с mDNS и статическими адресами
func (c *Cli) swarmNode() (*swarm.Node, error) {
	node, err := swarm.NewNode(swarm.Config{
		DeviceID:   c.device.ID,
		DeviceName: c.device.DisplayName(),
		ListenAddr: c.cfg.Swarm.Listen,
		PeerTTL:    c.cfg.Swarm.PeerTTL,
	}, newDiscovery(c.cfg.Swarm, c.logger), c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create swarm node: %w", err)
	}
	return node, nil
}

// newDiscovery источники адресов соседей. nil, если искать негде:
// узел тогда только принимает входящие соединения.
func newDiscovery(cfg config.SwarmConfig, logger *slog.Logger) swarm.Discoverer {
	var discovery swarm.Multi
	if cfg.MDNS {
		discovery = append(discovery, swarm.NewMDNS(cfg.AnnounceInterval, logger))
	}
	if len(cfg.Peers) > 0 {
		discovery = append(discovery, swarm.NewStatic(cfg.Peers, cfg.AnnounceInterval))
	}

	switch len(discovery) {
	case 0:
		return nil
	case 1:
		return discovery[0]
	}
	return discovery
}

// forward пересылает сигналы без блокировки, повторные сигналы схлопываются
func forward(ctx context.Context, from <-chan struct{}, to chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-from:
			select {
			case to <- struct{}{}:
			default:
			}
		}
	}
}
