// See internal/client package.
package main

import (
	"github.com/thriftmux/thriftmux/internal/cli"
	"github.com/thriftmux/thriftmux/internal/client"
)

func init() {
	cli.AddSubcommand(client.CallCmd)
	cli.AddSubcommand(client.BenchCmd)
	cli.AddSubcommand(client.ConfigcheckCmd)
	cli.AddSubcommand(client.VersionCmd)
}

func main() {
	cli.Run()
}
