package client

import (
	"context"
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/spf13/pflag"

	"github.com/thriftmux/thriftmux/internal/cli"
	"github.com/thriftmux/thriftmux/internal/logging"
	"github.com/thriftmux/thriftmux/internal/util/choices"
)

var callArgs struct {
	sig    signatureArgs
	format choices.Choices
}

type resultFormatter func(v interface{}) string

func plainResult(v interface{}) string  { return fmt.Sprintf("%v", v) }
func prettyResult(v interface{}) string { return pretty.Sprint(v) }

var CallCmd = &cli.Subcommand{
	Use:   "call --method NAME [--arg ID:TYPE:VALUE]... [--result TYPE] [--exception ID:NAME]... [--oneway]",
	Short: "invoke a single method and print its result",
	Example: `  thriftmux call --method add --arg 1:i32:40 --arg 2:i32:2 --result i32
  thriftmux call --method get --arg 1:string:foo --result 'map<string,i64>' --exception 1:NotFound`,
	SetupFlags: func(f *pflag.FlagSet) {
		callArgs.sig.setupFlags(f)
		callArgs.format.Init(
			"plain", resultFormatter(plainResult),
			"pretty", resultFormatter(prettyResult),
		)
		callArgs.format.SetDefault("plain")
		f.Var(&callArgs.format, "format", "result output format, "+callArgs.format.Usage())
	},
	Run: runCall,
}

func runCall(ctx context.Context, subcommand *cli.Subcommand, args []string) error {
	m, margs, err := callArgs.sig.build()
	if err != nil {
		return err
	}

	conf := subcommand.Config()
	ctx, _, err = withLogging(ctx, conf)
	if err != nil {
		return err
	}
	log := logging.GetLogger(ctx, logging.SubsysCLI).WithField("method", m.Name)

	c, err := dial(ctx, conf)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Invoke(ctx, m, margs, nil)
	if err != nil {
		log.WithError(err).Debug("call failed")
		return err
	}
	if m.Oneway {
		return nil
	}
	format := callArgs.format.Value().(resultFormatter)
	fmt.Fprintln(os.Stdout, format(res))
	return nil
}
