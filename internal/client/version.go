package client

import (
	"context"
	"fmt"

	"github.com/thriftmux/thriftmux/internal/cli"
	"github.com/thriftmux/thriftmux/internal/version"
)

var VersionCmd = &cli.Subcommand{
	Use:             "version",
	Short:           "print version of thriftmux binary",
	NoRequireConfig: true,
	Run: func(ctx context.Context, subcommand *cli.Subcommand, args []string) error {
		fmt.Println(version.NewVersionInformation().String())
		return nil
	},
}
