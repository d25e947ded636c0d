package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const maxTitleWidth = 48

// NewListCommand последние разговоры в базе устройства
func NewListCommand(opts *RootOptions) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently updated conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d: must be positive", limit)
			}
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runList(ctx, limit, all)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of conversations")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include deleted conversations")
	return cmd
}

func (c *Cli) runList(ctx context.Context, limit int, all bool) error {
	records, err := c.store.RecentRecords(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	c.io.Println("=== Conversations ===")
	c.io.Println()

	tw := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED\tCLOCK")

	shown := 0
	for _, rec := range records {
		conv := rec.Conversation
		if conv.Deleted && !all {
			continue
		}
		title := truncate(conv.Title, maxTitleWidth)
		if conv.Deleted {
			title = "[deleted] " + title
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			conv.ID, title, len(conv.Messages), conv.UpdatedAt.Local().Format(time.DateTime), rec.Clock)
		shown++
	}

	if shown == 0 {
		c.io.Println("No conversations found.")
		c.io.Println("Run 'chatsync import' or 'chatsync sync' first.")
		return nil
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	c.io.Println()
	c.io.Printf("Total: %d\n", shown)
	return nil
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
