package framecodec

import (
	"fmt"
	"os"
)

var debugEnabled bool = false

func init() {
	if os.Getenv("THRIFTMUX_RPC_FRAMECODEC_DEBUG") != "" {
		debugEnabled = true
	}
}

func debug(format string, args ...interface{}) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, "rpc/framecodec: %s\n", fmt.Sprintf(format, args...))
	}
}
