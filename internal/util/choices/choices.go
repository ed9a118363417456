// Package choices implements a pflag.Value type that accepts a set of choices.
package choices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

type Choices struct {
	choices    map[string]interface{}
	typeString string
	key        string
	value      interface{}
}

var _ pflag.Value = (*Choices)(nil)

func new(pairs ...interface{}) Choices {
	if (len(pairs) % 2) != 0 {
		panic("must provide a sequence of key value pairs")
	}
	c := Choices{
		choices: make(map[string]interface{}, len(pairs)/2),
		value:   nil,
	}
	for i := 0; i < len(pairs); {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("argument %d is %T but should be a string, value: %#v", i, pairs[i], pairs[i]))
		}
		c.choices[key] = pairs[i+1]
		i += 2
	}
	c.typeString = strings.Join(c.choicesList(false), "|") // overrideable by setter
	return c
}

func (c *Choices) Init(pairs ...interface{}) {
	*c = new(pairs...)
}

func (c Choices) choicesList(escaped bool) []string {
	keys := make([]string, 0, len(c.choices))
	for k := range c.choices {
		e := k
		if escaped {
			e = fmt.Sprintf("%q", k)
		}
		keys = append(keys, e)
	}
	sort.Strings(keys)
	return keys
}

func (c Choices) Usage() string {
	return fmt.Sprintf("one of %s", strings.Join(c.choicesList(true), ","))
}

// SetDefault selects key. It panics if key is not a choice.
func (c *Choices) SetDefault(key string) {
	if err := c.Set(key); err != nil {
		panic(err)
	}
}

func (c Choices) Value() interface{} {
	return c.value
}

func (c *Choices) Set(input string) error {
	v, ok := c.choices[input]
	if !ok {
		return fmt.Errorf("invalid value %q: must be %s", input, c.Usage())
	}
	c.key = input
	c.value = v
	return nil
}

func (c *Choices) String() string {
	return c.key
}

func (c *Choices) SetTypeString(ts string) {
	c.typeString = ts
}

func (c *Choices) Type() string {
	return c.typeString
}
