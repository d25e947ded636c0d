package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/chatsync/internal/sync"
)

// NewSyncCommand один цикл синхронизации с сервером
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import local sources and exchange changes with the sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runSync(ctx)
			})
		},
	}
}

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")
	c.io.Println()
	c.io.Printf("Server: %s\n", c.cfg.Sync.ServerURL)
	c.io.Printf("Device: %s (%s)\n", c.device.DisplayName(), c.device.ID)
	c.io.Println()

	result, err := c.service.RunCycle(ctx, c.serverPeer())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	c.printCycle(result)

	if len(result.Failures) > 0 {
		failure := result.Failures[0]
		if hint := describeError(failure.Err); hint != "" {
			c.io.Println(hint)
		}
		return fmt.Errorf("exchange with %s failed: %w", failure.Endpoint, failure.Err)
	}

	c.io.Println("✓ Sync completed successfully!")
	return nil
}

// printCycle печатает итог цикла
func (c *Cli) printCycle(result *sync.CycleResult) {
	if result.Import != nil && result.Import.Scanned > 0 {
		c.io.Printf("Imported %d new of %d conversations from local sources\n",
			result.Import.Imported, result.Import.Scanned)
	}
	if result.ImportErr != nil {
		c.io.Printf("Import skipped: %v\n", result.ImportErr)
	}
	for _, ex := range result.Exchanges {
		c.io.Printf("%s (%s): pulled %d, pushed %d, updated %d, merged %d",
			ex.Endpoint, ex.PeerID, ex.Pulled, ex.Pushed, ex.Updated, ex.Merged)
		if ex.Rejected > 0 {
			c.io.Printf(", rejected %d", ex.Rejected)
		}
		c.io.Println()
	}
	c.io.Println()
}
