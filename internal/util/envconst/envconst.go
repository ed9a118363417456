// Package envconst reads tuning knobs from environment variables.
//
// Values are parsed once and cached for the lifetime of the process.
// A malformed value panics: these knobs are for operators and tests,
// silently falling back to the default would hide typos.
package envconst

import (
	"os"
	"strconv"
	"sync"
	"time"
)

var cache sync.Map

func lookup[T any](varname string, def T, parse func(string) (T, error)) T {
	if v, ok := cache.Load(varname); ok {
		return v.(T)
	}
	e := os.Getenv(varname)
	if e == "" {
		return def
	}
	v, err := parse(e)
	if err != nil {
		panic(err)
	}
	cache.Store(varname, v)
	return v
}

func Duration(varname string, def time.Duration) time.Duration {
	return lookup(varname, def, time.ParseDuration)
}

func Int(varname string, def int) int {
	return lookup(varname, def, func(s string) (int, error) {
		i, err := strconv.ParseInt(s, 10, strconv.IntSize)
		return int(i), err
	})
}

func Int32(varname string, def int32) int32 {
	return lookup(varname, def, func(s string) (int32, error) {
		i, err := strconv.ParseInt(s, 10, 32)
		return int32(i), err
	})
}

func Int64(varname string, def int64) int64 {
	return lookup(varname, def, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}
