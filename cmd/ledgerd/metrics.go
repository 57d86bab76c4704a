// metrics.go - Metrics collection for the ledger runner
package main

import (
	"sort"
	"strings"
	"sync"
	"time"

	"confidential-ledger/internal/ledger"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricsCollector manages metrics collection
type MetricsCollector struct {
	mu         sync.RWMutex
	metrics    map[string]*Metric
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:    make(map[string]*Metric),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter increments a counter metric
func (mc *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	mc.counters[key]++
	mc.updateMetric(key, name, Counter, float64(mc.counters[key]), labels)
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	mc.gauges[key] = value
	mc.updateMetric(key, name, Gauge, value, labels)
}

// RecordHistogram records a value in a histogram
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	values := append(mc.histograms[key], value)
	// Keep only last 1000 values
	if len(values) > 1000 {
		values = values[len(values)-1000:]
	}
	mc.histograms[key] = values
	mc.updateMetric(key, name, Histogram, value, labels)
}

// GetMetric retrieves a metric by name and labels
func (mc *MetricsCollector) GetMetric(name string, labels map[string]string) *Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.metrics[metricKey(name, labels)]
}

// Counter returns the current value of a counter, zero when never incremented.
func (mc *MetricsCollector) Counter(name string, labels map[string]string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[metricKey(name, labels)]
}

// GetMetricsSummary returns a summary of all metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	counters := make(map[string]int64, len(mc.counters))
	for key, v := range mc.counters {
		counters[key] = v
	}
	gauges := make(map[string]float64, len(mc.gauges))
	for key, v := range mc.gauges {
		gauges[key] = v
	}
	histograms := make(map[string]map[string]float64)
	for key, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		h := map[string]float64{"count": float64(len(values)), "min": values[0], "max": values[0]}
		var sum float64
		for _, v := range values {
			if v < h["min"] {
				h["min"] = v
			}
			if v > h["max"] {
				h["max"] = v
			}
			sum += v
		}
		h["sum"] = sum
		h["avg"] = sum / h["count"]
		histograms[key] = h
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// metricKey builds a deterministic key from the name and sorted labels.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString("_")
		b.WriteString(labels[k])
	}
	return b.String()
}

func (mc *MetricsCollector) updateMetric(key, name string, metricType MetricType, value float64, labels map[string]string) {
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      metricType,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Predefined metric names
const (
	MetricOpCount       = "ledger_op_count"
	MetricOpDuration    = "ledger_op_duration"
	MetricRejections    = "ledger_rejection_count"
	MetricRateLimited   = "rate_limited_count"
	MetricDecryptions   = "decryption_count"
	MetricEscrow        = "ledger_escrow"
	MetricActiveAssets  = "ledger_active_assets"
	MetricParticipants  = "ledger_participants"
	MetricPositions     = "ledger_positions"
	MetricJournalErrors = "journal_error_count"
)

// RecordOp counts one submitted operation and its outcome.
func (mc *MetricsCollector) RecordOp(op string, code ledger.Code, d time.Duration) {
	outcome := "ok"
	if code != "" {
		outcome = "rejected"
		mc.IncrementCounter(MetricRejections, map[string]string{"code": string(code)})
	}
	mc.IncrementCounter(MetricOpCount, map[string]string{"op": op, "outcome": outcome})
	mc.RecordHistogram(MetricOpDuration, d.Seconds(), map[string]string{"op": op})
}

func (mc *MetricsCollector) RecordRateLimited(principal string) {
	mc.IncrementCounter(MetricRateLimited, map[string]string{"principal": principal})
}

func (mc *MetricsCollector) RecordDecryption(outcome string) {
	mc.IncrementCounter(MetricDecryptions, map[string]string{"outcome": outcome})
}

// RecordLedgerStats mirrors the public ledger counters into gauges.
func (mc *MetricsCollector) RecordLedgerStats(s ledger.Stats) {
	mc.SetGauge(MetricEscrow, float64(s.Escrow), nil)
	mc.SetGauge(MetricActiveAssets, float64(s.ActiveAssets), nil)
	mc.SetGauge(MetricParticipants, float64(s.Participants), nil)
	mc.SetGauge(MetricPositions, float64(s.Positions), nil)
}
