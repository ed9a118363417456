package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/thriftmux/thriftmux/internal/cli"
	"github.com/thriftmux/thriftmux/internal/logging"
	"github.com/thriftmux/thriftmux/internal/rpc/mux"
)

var benchArgs struct {
	sig         signatureArgs
	requests    int
	concurrency int
}

var BenchCmd = &cli.Subcommand{
	Use:   "bench --method NAME [signature flags] [--requests N] [--concurrency C]",
	Short: "issue many concurrent calls over one connection and report latencies",
	SetupFlags: func(f *pflag.FlagSet) {
		benchArgs.sig.setupFlags(f)
		f.IntVar(&benchArgs.requests, "requests", 10000, "total number of calls")
		f.IntVar(&benchArgs.concurrency, "concurrency", 64, "number of calls in flight")
	},
	Run: runBench,
}

type invoker interface {
	Invoke(ctx context.Context, m *mux.Method, args []interface{}, headers map[string]string) (interface{}, error)
}

type benchResult struct {
	// milliseconds, successful calls only
	latencies []float64
	errors    map[string]int
	elapsed   time.Duration
	// wire traffic, framing included
	bytesRead, bytesWritten uint64
}

func errorClass(err error) string {
	switch {
	case mux.IsTimeout(err):
		return "timeout"
	case mux.IsApplicationError(err):
		return "application"
	case mux.IsTransportError(err):
		return "transport"
	default:
		return "other"
	}
}

// runLoad issues requests calls from concurrency workers. It stops early
// only if ctx is done.
func runLoad(ctx context.Context, c invoker, m *mux.Method, args []interface{}, requests, concurrency int) (*benchResult, error) {
	if requests <= 0 || concurrency <= 0 {
		return nil, errors.Errorf("requests and concurrency must be positive")
	}
	var (
		mtx     sync.Mutex
		res     = &benchResult{errors: make(map[string]int)}
		counter atomic.Int64
	)
	res.latencies = make([]float64, 0, requests)

	begin := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for counter.Add(1) <= int64(requests) {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				_, err := c.Invoke(ctx, m, args, nil)
				took := time.Since(start)
				mtx.Lock()
				if err != nil {
					res.errors[errorClass(err)]++
				} else {
					res.latencies = append(res.latencies, float64(took)/float64(time.Millisecond))
				}
				mtx.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	res.elapsed = time.Since(begin)
	return res, err
}

type benchSummary struct {
	Calls      int
	Errors     int
	Throughput float64 // calls per second
	Min        float64
	Mean       float64
	P50        float64
	P90        float64
	P99        float64
	Max        float64
}

func summarize(r *benchResult) (benchSummary, error) {
	s := benchSummary{Calls: len(r.latencies)}
	for _, n := range r.errors {
		s.Errors += n
	}
	s.Calls += s.Errors
	if r.elapsed > 0 {
		s.Throughput = float64(s.Calls) / r.elapsed.Seconds()
	}
	if len(r.latencies) == 0 {
		return s, nil
	}
	data := stats.Float64Data(r.latencies)
	var err error
	for _, x := range []struct {
		dst *float64
		f   func() (float64, error)
	}{
		{&s.Min, data.Min},
		{&s.Mean, data.Mean},
		{&s.P50, func() (float64, error) { return data.Percentile(50) }},
		{&s.P90, func() (float64, error) { return data.Percentile(90) }},
		{&s.P99, func() (float64, error) { return data.Percentile(99) }},
		{&s.Max, data.Max},
	} {
		if *x.dst, err = x.f(); err != nil {
			return s, err
		}
	}
	return s, nil
}

func printReport(w io.Writer, s benchSummary, r *benchResult) {
	fmt.Fprintf(w, "calls:      %d (%d failed)\n", s.Calls, s.Errors)
	fmt.Fprintf(w, "elapsed:    %s\n", r.elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "throughput: %.1f calls/s\n", s.Throughput)
	fmt.Fprintf(w, "traffic:    %d bytes read, %d bytes written\n", r.bytesRead, r.bytesWritten)
	if s.Calls > s.Errors {
		fmt.Fprintf(w, "latency ms: min=%.3f mean=%.3f p50=%.3f p90=%.3f p99=%.3f max=%.3f\n",
			s.Min, s.Mean, s.P50, s.P90, s.P99, s.Max)
	}
	classes := make([]string, 0, len(r.errors))
	for class := range r.errors {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Fprintf(w, "errors:     %s=%d\n", class, r.errors[class])
	}
}

func runBench(ctx context.Context, subcommand *cli.Subcommand, args []string) error {
	m, margs, err := benchArgs.sig.build()
	if err != nil {
		return err
	}

	conf := subcommand.Config()
	ctx, _, err = withLogging(ctx, conf)
	if err != nil {
		return err
	}
	log := logging.GetLogger(ctx, logging.SubsysBench)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := serveMonitoring(ctx, conf); err != nil {
		return err
	}

	c, err := dial(ctx, conf)
	if err != nil {
		return err
	}
	defer c.Close()

	log.WithField("requests", benchArgs.requests).
		WithField("concurrency", benchArgs.concurrency).
		Info("starting benchmark")
	res, err := runLoad(ctx, c, m, margs, benchArgs.requests, benchArgs.concurrency)
	if res == nil {
		return err
	}
	res.bytesRead, res.bytesWritten = c.Traffic()
	if err != nil {
		log.WithError(err).Warn("benchmark interrupted")
	}
	s, serr := summarize(res)
	if serr != nil {
		return errors.Wrap(serr, "cannot compute statistics")
	}
	printReport(os.Stdout, s, res)
	return err
}
