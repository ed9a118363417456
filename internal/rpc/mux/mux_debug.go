package mux

import (
	"fmt"
	"os"
)

var debugEnabled bool = false

func init() {
	if os.Getenv("THRIFTMUX_RPC_MUX_DEBUG") != "" {
		debugEnabled = true
	}
}

func debug(format string, args ...interface{}) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, "rpc/mux: %s\n", fmt.Sprintf(format, args...))
	}
}
