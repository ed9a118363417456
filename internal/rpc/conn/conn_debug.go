package conn

import (
	"fmt"
	"os"
)

var debugEnabled bool = false

func init() {
	if os.Getenv("THRIFTMUX_RPC_CONN_DEBUG") != "" {
		debugEnabled = true
	}
}

//nolint[:deadcode,unused]
func debug(format string, args ...interface{}) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, "rpc/conn: %s\n", fmt.Sprintf(format, args...))
	}
}
