package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/chatsync/internal/storage"
)

// NewDeleteCommand помечает разговор удаленным на всех устройствах
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation on every device (soft delete)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runDelete(ctx, args[0], yes)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (c *Cli) runDelete(ctx context.Context, id string, yes bool) error {
	c.io.Println("=== Delete Conversation ===")
	c.io.Println()

	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("conversation not found with ID: %s", id)
		}
		return fmt.Errorf("failed to get conversation: %w", err)
	}
	conv := rec.Conversation
	if conv.Deleted {
		c.io.Println("Conversation is already deleted.")
		return nil
	}

	c.io.Println("About to delete:")
	c.io.Printf("  Title:    %s\n", conv.Title)
	c.io.Printf("  Source:   %s\n", conv.Source)
	c.io.Printf("  Messages: %d\n", len(conv.Messages))
	c.io.Println()

	if !yes {
		ok, err := c.confirm("Are you sure you want to delete this conversation?")
		if err != nil {
			return err
		}
		if !ok {
			c.io.Println()
			c.io.Println("Deletion cancelled.")
			return nil
		}
	}

	if _, err := c.service.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", describeMutation(id, err))
	}

	c.io.Println()
	c.io.Println("✓ Conversation deleted successfully!")
	c.io.Println()
	c.io.Println("Note: the deletion is replicated to other devices on the next sync.")
	c.io.Println("      A deleted conversation is never restored by a later import.")
	return nil
}
