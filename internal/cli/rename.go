package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/chatsync/internal/storage"
	"github.com/iudanet/chatsync/internal/sync"
)

// NewRenameCommand меняет заголовок разговора
func NewRenameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change the title of a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return errors.New("title must not be empty")
			}
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runRename(ctx, args[0], title)
			})
		},
	}
}

func (c *Cli) runRename(ctx context.Context, id, title string) error {
	rec, err := c.service.Rename(ctx, id, title)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", describeMutation(id, err))
	}

	c.io.Printf("✓ Conversation %s renamed to %q\n", id, rec.Conversation.Title)
	c.io.Println("Run 'chatsync sync' to send the change to the server.")
	return nil
}

// describeMutation ошибка изменения разговора в терминах пользователя
func describeMutation(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		return fmt.Errorf("conversation not found with ID: %s", id)
	case errors.Is(err, sync.ErrConversationDeleted):
		return fmt.Errorf("conversation %s is deleted", id)
	default:
		return err
	}
}
