// Package prometheus implements the metrics client on top of the prometheus client library. Metric
// names are mapped to prometheus names by replacing separators with underscores, tags become labels.
package prometheus

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type kind int

const (
	kindCounter kind = iota
	kindGauge
	kindHistogram
)

type collectors struct {
	mu sync.Mutex

	registry *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

type Client struct {
	c    *collectors
	tags metrics.Tags
}

var _ metrics.Client = (*Client)(nil)

// New creates a client registering its collectors with the given registry. A nil registry creates
// a new one.
func New(registry *prometheus.Registry) *Client {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Client{
		c: &collectors{
			registry:   registry,
			counters:   map[string]*prometheus.CounterVec{},
			gauges:     map[string]*prometheus.GaugeVec{},
			histograms: map[string]*prometheus.HistogramVec{},
		},
	}
}

// Registry returns the registry metrics are recorded in
func (c *Client) Registry() *prometheus.Registry {
	return c.c.registry
}

// Handler serves the recorded metrics in the prometheus exposition format
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.c.registry, promhttp.HandlerOpts{})
}

func (c *Client) Counter(name string, tags metrics.Tags, value int64) {
	labels := c.labels(tags)
	if v := c.c.counter(name, labels); v != nil {
		v.With(labels).Add(float64(value))
	}
}

func (c *Client) Gauge(name string, tags metrics.Tags, value int64) {
	labels := c.labels(tags)
	if v := c.c.gauge(name, labels); v != nil {
		v.With(labels).Set(float64(value))
	}
}

func (c *Client) Distribution(name string, tags metrics.Tags, value float64) {
	labels := c.labels(tags)
	if v := c.c.histogram(name, labels); v != nil {
		v.With(labels).Observe(value)
	}
}

// Timing records the duration in seconds
func (c *Client) Timing(name string, tags metrics.Tags, duration time.Duration) {
	labels := c.labels(tags)
	if v := c.c.histogram(name+".seconds", labels); v != nil {
		v.With(labels).Observe(duration.Seconds())
	}
}

func (c *Client) WithTags(tags metrics.Tags) metrics.Client {
	merged := make(metrics.Tags, len(c.tags)+len(tags))
	for k, v := range c.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}

	return &Client{c: c.c, tags: merged}
}

func (c *Client) labels(tags metrics.Tags) prometheus.Labels {
	labels := make(prometheus.Labels, len(c.tags)+len(tags))
	for k, v := range c.tags {
		labels[sanitize(k)] = v
	}
	for k, v := range tags {
		labels[sanitize(k)] = v
	}

	return labels
}

func (cs *collectors) counter(name string, labels prometheus.Labels) *prometheus.CounterVec {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	key, names := vecKey(name, labels)
	if v, ok := cs.counters[key]; ok {
		return v
	}

	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: sanitize(name) + "_total",
		Help: name,
	}, names)
	if !cs.register(v) {
		return nil
	}

	cs.counters[key] = v
	return v
}

func (cs *collectors) gauge(name string, labels prometheus.Labels) *prometheus.GaugeVec {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	key, names := vecKey(name, labels)
	if v, ok := cs.gauges[key]; ok {
		return v
	}

	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: sanitize(name),
		Help: name,
	}, names)
	if !cs.register(v) {
		return nil
	}

	cs.gauges[key] = v
	return v
}

func (cs *collectors) histogram(name string, labels prometheus.Labels) *prometheus.HistogramVec {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	key, names := vecKey(name, labels)
	if v, ok := cs.histograms[key]; ok {
		return v
	}

	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    sanitize(name),
		Help:    name,
		Buckets: prometheus.DefBuckets,
	}, names)
	if !cs.register(v) {
		return nil
	}

	cs.histograms[key] = v
	return v
}

// register returns false if the collector clashes with an existing metric of the same name but a
// different label set or type. Such observations are dropped.
func (cs *collectors) register(c prometheus.Collector) bool {
	return cs.registry.Register(c) == nil
}

func vecKey(name string, labels prometheus.Labels) (string, []string) {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	return name + "|" + strings.Join(names, ","), names
}

var replacer = strings.NewReplacer(".", "_", "-", "_", "/", "_", " ", "_")

func sanitize(name string) string {
	return replacer.Replace(name)
}
