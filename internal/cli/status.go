package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/chatsync/internal/crdt"
)

// statusView вывод команды status
type statusView struct {
	Clock         map[string]uint64 `json:"clock" yaml:"clock"`
	DeviceID      string            `json:"device_id" yaml:"device_id"`
	DeviceName    string            `json:"device_name" yaml:"device_name"`
	DataDir       string            `json:"data_dir" yaml:"data_dir"`
	ServerURL     string            `json:"server_url" yaml:"server_url"`
	State         string            `json:"state" yaml:"state"`
	Peers         []peerView        `json:"peers,omitempty" yaml:"peers,omitempty"`
	Conversations int               `json:"conversations" yaml:"conversations"`
	Messages      int               `json:"messages" yaml:"messages"`
	Tombstones    int               `json:"tombstones" yaml:"tombstones"`
}

type peerView struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty" yaml:"last_sync_at,omitempty"`
	DeviceID   string     `json:"device_id" yaml:"device_id"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Failures   int        `json:"failures" yaml:"failures"`
}

// NewStatusCommand состояние реплики устройства
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show device identity, stored conversations and peer sync state",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidOutput(output) {
				return fmt.Errorf("invalid output %q: must be one of %v", output, ValidOutputs)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *Cli) error {
				return c.runStatus(ctx, output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text|json|yaml)")
	return cmd
}

func (c *Cli) runStatus(ctx context.Context, output string) error {
	stats, err := c.service.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	view := statusView{
		Clock:         stats.Clock,
		DeviceID:      stats.DeviceID,
		DeviceName:    stats.DeviceName,
		DataDir:       c.cfg.DataDir,
		ServerURL:     c.cfg.Sync.ServerURL,
		State:         stats.State,
		Conversations: stats.Conversations,
		Messages:      stats.Messages,
		Tombstones:    stats.Tombstones,
	}
	for _, p := range stats.Peers {
		view.Peers = append(view.Peers, peerView{
			LastSyncAt: p.LastSyncAt,
			DeviceID:   p.DeviceID,
			Name:       p.Name,
			Failures:   p.Failures,
		})
	}

	switch output {
	case "json":
		enc := json.NewEncoder(c.io)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(c.io)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	}

	c.io.Println("=== Device Status ===")
	c.io.Println()
	c.io.Printf("Device:        %s\n", view.DeviceName)
	c.io.Printf("Device ID:     %s\n", view.DeviceID)
	c.io.Printf("Data dir:      %s\n", view.DataDir)
	c.io.Printf("Server:        %s\n", view.ServerURL)
	c.io.Println()
	c.io.Printf("Conversations: %d (%d deleted)\n", view.Conversations, view.Tombstones)
	c.io.Printf("Messages:      %d\n", view.Messages)
	c.io.Printf("Clock:         %s\n", crdt.VectorClock(view.Clock))

	if len(view.Peers) == 0 {
		c.io.Println()
		c.io.Println("No peers yet. Run 'chatsync sync' to exchange with the server.")
		return nil
	}

	c.io.Println()
	c.io.Println("Peers:")
	for _, p := range view.Peers {
		last := "never"
		if p.LastSyncAt != nil {
			last = p.LastSyncAt.Local().Format(time.DateTime)
		}
		name := p.DeviceID
		if p.Name != "" && p.Name != p.DeviceID {
			name = fmt.Sprintf("%s (%s)", p.Name, p.DeviceID)
		}
		c.io.Printf("  %s  last sync: %s", name, last)
		if p.Failures > 0 {
			c.io.Printf("  failures: %d", p.Failures)
		}
		c.io.Println()
	}
	return nil
}
