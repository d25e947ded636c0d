package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/iudanet/chatsync/internal/cli/iocli"
	"github.com/iudanet/chatsync/internal/config"
	"github.com/iudanet/chatsync/internal/logger"
)

// ValidOutputs форматы вывода status
var ValidOutputs = []string{"text", "json", "yaml"}

// RootOptions общие флаги и состояние, которое готовит PersistentPreRunE
type RootOptions struct {
	ConfigFile string
	Build      BuildInfo

	viper    *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	// io подменяется в тестах, иначе потоки команды
	io iocli.IO
}

// NewRootCommand корневая команда агента chatsync
func NewRootCommand(build BuildInfo) *cobra.Command {
	return newRootCommand(&RootOptions{Build: build})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	opts.viper = config.New()

	cmd := &cobra.Command{
		Use:   "chatsync",
		Short: "Replicate AI chat conversations across devices",
		Long: "chatsync imports chat conversations from local sources and keeps them in sync\n" +
			"between devices through a sync server or directly over the local network.",
		SilenceUsage:      true,
		PersistentPreRunE: opts.load,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close()
		},
	}

	opts.bindCommon(cmd)
	flags := cmd.PersistentFlags()
	flags.String("server", "", "sync server URL")
	flags.String("dir", "", "directory with exported conversation JSON files")
	flags.String("vscdb", "", "path to the editor state.vscdb database")
	opts.bind(config.KeyServerURL, flags.Lookup("server"))
	opts.bind(config.KeySourceDir, flags.Lookup("dir"))
	opts.bind(config.KeySourceVSCDB, flags.Lookup("vscdb"))

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// bindCommon флаги, общие для агента и сервера
func (o *RootOptions) bindCommon(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.ConfigFile, "config", "c", "", "config file (default <data-dir>/chatsync.yaml)")
	flags.String("data-dir", "", "directory for identity, database and config")
	flags.String("device-name", "", "human readable device name")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (auto|text|json)")

	o.bind(config.KeyDataDir, flags.Lookup("data-dir"))
	o.bind(config.KeyDeviceName, flags.Lookup("device-name"))
	o.bind(config.KeyLogLevel, flags.Lookup("log-level"))
	o.bind(config.KeyLogFormat, flags.Lookup("log-format"))
}

// bind привязывает флаг к ключу конфигурации. Флаг без значения не перекрывает файл и окружение.
func (o *RootOptions) bind(key string, flag *pflag.Flag) {
	if err := o.viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

// load читает конфигурацию и создает логгер
func (o *RootOptions) load(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(o.viper, o.ConfigFile)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	o.cfg = cfg
	o.logger = log
	o.closeLog = closeLog
	return nil
}

func (o *RootOptions) close() error {
	if o.closeLog == nil {
		return nil
	}
	err := o.closeLog()
	o.closeLog = nil
	return err
}

func (o *RootOptions) stdio(cmd *cobra.Command) iocli.IO {
	if o.io != nil {
		return o.io
	}
	return iocli.NewStdio(cmd.InOrStdin(), cmd.OutOrStdout())
}

// run открывает зависимости агента на время одной команды
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c *Cli) error) error {
	ctx := cmd.Context()
	c, err := open(ctx, o.stdio(cmd), o.cfg, o.logger, o.Build.Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			o.logger.Error("Failed to close database", "error", err)
		}
	}()
	return fn(ctx, c)
}

func isValidOutput(output string) bool {
	return slices.Contains(ValidOutputs, output)
}
