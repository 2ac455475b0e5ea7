// Package metrics exposes slipbot counters in the Prometheus text format
// without pulling in prometheus/client_golang.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector the pre-defined metrics live in.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters and histograms.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the collector has existed.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns the counter with the given name, creating it on first use.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[name]; ok {
		return ctr
	}
	ctr := &Counter{name: name, help: help}
	c.counters[name] = ctr
	return ctr
}

// Histogram returns the histogram with the given name, creating it with
// buckets on first use.
func (c *MetricsCollector) Histogram(name, help string, buckets []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[name]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{name: name, help: help, bounds: bounds, buckets: make([]int64, len(bounds))}
	c.histograms[name] = h
	return h
}

// WriteTo renders every metric, sorted by name.
func (c *MetricsCollector) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	fmt.Fprintf(cw, "# HELP slipbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(cw, "# TYPE slipbot_uptime_seconds gauge\n")
	fmt.Fprintf(cw, "slipbot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	c.mu.Lock()
	counters := make([]*Counter, 0, len(c.counters))
	for _, ctr := range c.counters {
		counters = append(counters, ctr)
	}
	histograms := make([]*Histogram, 0, len(c.histograms))
	for _, h := range c.histograms {
		histograms = append(histograms, h)
	}
	c.mu.Unlock()

	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })
	sort.Slice(histograms, func(i, j int) bool { return histograms[i].name < histograms[j].name })

	for _, ctr := range counters {
		fmt.Fprintf(cw, "# HELP %s %s\n", ctr.name, ctr.help)
		fmt.Fprintf(cw, "# TYPE %s counter\n", ctr.name)
		fmt.Fprintf(cw, "%s %d\n", ctr.name, ctr.Value())
	}

	for _, h := range histograms {
		h.mu.Lock()
		fmt.Fprintf(cw, "# HELP %s %s\n", h.name, h.help)
		fmt.Fprintf(cw, "# TYPE %s histogram\n", h.name)
		for i, le := range h.bounds {
			label := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				label = "+Inf"
			}
			fmt.Fprintf(cw, "%s_bucket{le=\"%s\"} %d\n", h.name, label, h.buckets[i])
		}
		if n := len(h.bounds); n == 0 || !math.IsInf(h.bounds[n-1], 1) {
			fmt.Fprintf(cw, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
		}
		fmt.Fprintf(cw, "%s_count %d\n", h.name, h.count)
		fmt.Fprintf(cw, "%s_sum %f\n", h.name, h.sum)
		h.mu.Unlock()
	}
	return cw.n, cw.err
}

// Handler serves the metrics page.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = c.WriteTo(w)
	}
}

// Serve exposes the collector on addr at path until ctx is cancelled.
func (c *MetricsCollector) Serve(ctx context.Context, addr, path string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}

// --- Pre-defined metrics used across the application ---

var (
	MessagesTotal      = Collector.Counter("slipbot_messages_total", "Inbound messages dispatched")
	CommandsTotal      = Collector.Counter("slipbot_commands_total", "Messages that matched a command")
	DispatchErrors     = Collector.Counter("slipbot_dispatch_errors_total", "Commands that returned an error or panicked")
	RateLimited        = Collector.Counter("slipbot_rate_limited_total", "Commands dropped by the per-sender rate limit")
	PrintJobs          = Collector.Counter("slipbot_print_jobs_total", "Todo slips printed")
	PrintFailures      = Collector.Counter("slipbot_print_failures_total", "Todo slips that failed to print")
	AttachmentsSkipped = Collector.Counter("slipbot_attachments_skipped_total", "Image attachments that could not be decoded")

	PrintLatency = Collector.Histogram("slipbot_print_seconds", "Time spent printing a slip in seconds",
		[]float64{0.25, 0.5, 1, 2, 5, 10, 30})
)
