package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewImportCommand импорт разговоров из локальных источников
func NewImportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import conversations from local sources into the device database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runImport(ctx)
			})
		},
	}

	return cmd
}

func (c *Cli) runImport(ctx context.Context) error {
	c.io.Println("=== Import Conversations ===")
	c.io.Println()

	if c.cfg.Source.Dir == "" && c.cfg.Source.VSCDB == "" {
		c.io.Println("No sources configured.")
		c.io.Println("Use --dir or --vscdb, or set source.dir / source.vscdb in chatsync.yaml.")
		return nil
	}

	result, err := c.service.Import(ctx)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	c.io.Printf("Scanned:  %d\n", result.Scanned)
	c.io.Printf("Imported: %d\n", result.Imported)
	c.io.Printf("Existing: %d\n", result.Existing)
	if result.Invalid > 0 {
		c.io.Printf("Invalid:  %d (see log for details)\n", result.Invalid)
	}
	c.io.Println()
	c.io.Println("✓ Import completed")
	return nil
}
