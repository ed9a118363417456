package choices_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/util/choices"
)

func TestChoices(t *testing.T) {

	var c choices.Choices

	fs := pflag.NewFlagSet("testset", pflag.ContinueOnError)
	c.Init("plain", 1, "pretty", 2)
	c.SetDefault("plain")
	fs.Var(&c, "format", c.Usage())

	usage := fs.FlagUsages()
	t.Logf("usage:\n%s", usage)
	require.Contains(t, usage, `one of "plain","pretty"`)
	require.Contains(t, usage, "plain|pretty")
	require.Contains(t, usage, "(default plain)")

	require.NoError(t, fs.Parse([]string{}))
	assert.Equal(t, 1, c.Value())

	require.NoError(t, fs.Parse([]string{"--format", "pretty"}))
	assert.Equal(t, 2, c.Value())
	assert.Equal(t, "pretty", c.String())

	err := fs.Parse([]string{"--format", "xml"})
	assert.Error(t, err)
	assert.Equal(t, 2, c.Value())

	assert.Panics(t, func() { c.SetDefault("xml") })
}
