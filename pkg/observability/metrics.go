package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct {
	value int64
}

func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

func (c *Counter) Add(n int64) {
	atomic.AddInt64(&c.value, n)
}

func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

type Gauge struct {
	value int64
}

func (g *Gauge) Set(v int64) {
	atomic.StoreInt64(&g.value, v)
}

func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// Histogram keeps running totals only.
type Histogram struct {
	mu    sync.Mutex
	sum   float64
	max   float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if v > h.max {
		h.max = v
	}
}

func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(float64(d.Microseconds()) / 1000)
}

func (h *Histogram) Snapshot() (count int64, sum, avg, max float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0, 0, 0, 0
	}
	return h.count, h.sum, h.sum / float64(h.count), h.max
}

type MetricsRegistry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (r *MetricsRegistry) Counter(name string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{}
	r.counters[name] = c
	return c
}

func (r *MetricsRegistry) Gauge(name string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{}
	r.gauges[name] = g
	return g
}

func (r *MetricsRegistry) Histogram(name string) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := &Histogram{}
	r.histograms[name] = h
	return h
}

// Snapshot flattens every metric into a map keyed by "<kind>.<name>[.<stat>]".
func (r *MetricsRegistry) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]interface{})
	for name, c := range r.counters {
		result["counter."+name] = c.Value()
	}
	for name, g := range r.gauges {
		result["gauge."+name] = g.Value()
	}
	for name, h := range r.histograms {
		count, sum, avg, max := h.Snapshot()
		result["histogram."+name+".count"] = count
		result["histogram."+name+".sum"] = sum
		result["histogram."+name+".avg"] = avg
		result["histogram."+name+".max"] = max
	}
	return result
}

// Names lists the snapshot keys in sorted order.
func (r *MetricsRegistry) Names() []string {
	snap := r.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IngestMetrics are the metrics recorded while ingesting configuration repositories.
type IngestMetrics struct {
	ValidationPasses  *Counter
	Findings          *Counter
	Rejected          *Counter
	Reloads           *Counter
	Unchanged         *Counter
	ActiveSources     *Gauge
	ValidationLatency *Histogram
}

func NewIngestMetrics(r *MetricsRegistry) *IngestMetrics {
	return &IngestMetrics{
		ValidationPasses:  r.Counter("configrepo.validation_passes"),
		Findings:          r.Counter("configrepo.findings"),
		Rejected:          r.Counter("configrepo.rejected"),
		Reloads:           r.Counter("configrepo.reloads"),
		Unchanged:         r.Counter("configrepo.unchanged"),
		ActiveSources:     r.Gauge("configrepo.active_sources"),
		ValidationLatency: r.Histogram("configrepo.validation_ms"),
	}
}
