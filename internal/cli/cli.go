// Package cli builds the thriftmux command tree on top of cobra.
//
// Subcommands return errors instead of exiting; Run maps a failed command
// to exit status 1.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/thriftmux/thriftmux/internal/config"
)

// path of the config file, empty means the default locations
var configPath string

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:           "thriftmux",
		Short:         "Pipelined Thrift client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	return c
}

type Subcommand struct {
	Use     string
	Short   string
	Example string
	// Run is called even if the config file cannot be parsed.
	// ConfigParsingError returns the parse error then.
	NoRequireConfig  bool
	Run              func(ctx context.Context, subcommand *Subcommand, args []string) error
	SetupFlags       func(f *pflag.FlagSet)
	SetupSubcommands func() []*Subcommand

	config    *config.Config
	configErr error
}

func (s *Subcommand) ConfigParsingError() error { return s.configErr }

func (s *Subcommand) Config() *config.Config {
	if !s.NoRequireConfig && s.config == nil {
		panic("command that requires config is running and has no config set")
	}
	return s.config
}

func (s *Subcommand) runE(cmd *cobra.Command, args []string) error {
	s.config, s.configErr = config.ParseConfig(configPath)
	if s.configErr != nil && !s.NoRequireConfig {
		return errors.Wrap(s.configErr, "could not parse config")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx, s, args)
}

func (s *Subcommand) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     s.Use,
		Short:   s.Short,
		Example: s.Example,
	}
	if s.SetupSubcommands != nil {
		for _, sub := range s.SetupSubcommands() {
			cmd.AddCommand(sub.command())
		}
	} else {
		cmd.RunE = s.runE
	}
	if s.SetupFlags != nil {
		s.SetupFlags(cmd.Flags())
	}
	return cmd
}

func AddSubcommand(s *Subcommand) {
	rootCmd.AddCommand(s.command())
}

func execute(root *cobra.Command, args []string) error {
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func Run() {
	if err := execute(rootCmd, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
