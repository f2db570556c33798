// Package prometheus exposes engine metrics through client_golang.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-provider-link/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "provider_link"

// Recorder maps engine metric names onto counter and histogram vectors,
// created on first use. A metric keeps the label set it was first
// observed with; later observations fill missing labels with "".
type Recorder struct {
	registerer prom.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
	labels     map[string][]string
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(registerer prom.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	recorder := &Recorder{
		registerer: registerer,
		namespace:  defaultNamespace,
		buckets:    []float64{5, 25, 100, 250, 1000, 5000, 30000},
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
		labels:     map[string][]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	vec, labels, err := r.counter(name, tags)
	if err != nil {
		return
	}
	vec.WithLabelValues(labelValues(labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, labels, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	vec.WithLabelValues(labelValues(labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*prom.CounterVec, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := "counter:" + name
	if vec, ok := r.counters[key]; ok {
		return vec, r.labels[key], nil
	}
	labels := labelNames(tags)
	vec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: r.namespace,
		Name:      metricName(name, defaultNamespace),
		Help:      "provider link counter " + name,
	}, labels)
	registered, err := register(r.registerer, vec)
	if err != nil {
		return nil, nil, err
	}
	r.counters[key] = registered
	r.labels[key] = labels
	return registered, labels, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*prom.HistogramVec, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := "histogram:" + name
	if vec, ok := r.histograms[key]; ok {
		return vec, r.labels[key], nil
	}
	labels := labelNames(tags)
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: r.namespace,
		Name:      metricName(name, defaultNamespace),
		Help:      "provider link histogram " + name,
		Buckets:   r.buckets,
	}, labels)
	registered, err := register(r.registerer, vec)
	if err != nil {
		return nil, nil, err
	}
	r.histograms[key] = registered
	r.labels[key] = labels
	return registered, labels, nil
}

// register reuses a collector another Recorder already registered under the
// same descriptor.
func register[T prom.Collector](registerer prom.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		var already prom.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, typed := already.ExistingCollector.(T); typed {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("prometheus: register collector: %w", err)
	}
	return collector, nil
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		names = append(names, sanitize(key))
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[sanitize(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = normalized[label]
	}
	return values
}

// metricName turns `provider_link.connect.total` into `connect_total`.
func metricName(name string, namespace string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(name), namespace+".")
	return sanitize(trimmed)
}

func sanitize(value string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
