package cli

import (
	"github.com/spf13/cobra"
)

// NewVersionCommand информация о сборке
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// конфигурация для версии не нужна
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			io := opts.stdio(cmd)
			io.Printf("%s\n", cmd.Root().Name())
			io.Printf("Version:    %s\n", opts.Build.Version)
			io.Printf("Build Date: %s\n", opts.Build.BuildDate)
			io.Printf("Git Commit: %s\n", opts.Build.GitCommit)
		},
	}
}
