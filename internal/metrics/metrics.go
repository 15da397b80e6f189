// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting mailnotify runtime metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch results.
const (
	ResultSent     = "sent"
	ResultFailed   = "failed"
	ResultSkipped  = "skipped"
	ResultUnrouted = "unrouted"
)

// 1. Internal State (Source of Truth)
var (
	eventsTotal         int64
	storeErrors         int64
	ingestErrors        int64
	automationPublished int64
	automationFailed    int64
	lastEvent           int64

	channelMu    sync.Mutex
	channelStats = map[string]*ChannelStats{}
)

const counterInc int64 = 1

// 2. Prometheus Collectors
var (
	promEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailnotify_events_total",
			Help: "Mail events received, by kind",
		},
		[]string{"kind"},
	)
	promDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailnotify_dispatches_total",
			Help: "Channel dispatch outcomes",
		},
		[]string{"channel", "result"},
	)
	promDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mailnotify_dispatch_duration_seconds",
			Help: "Duration of outbound channel requests",
			Buckets: []float64{
				0.05,
				0.1,
				0.25,
				0.5,
				1,
				2,
				4,
				8,
			},
		},
		[]string{"channel"},
	)
	promStoreErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailnotify_option_store_errors_total",
			Help: "Option store reads that failed and dropped an event",
		},
	)
	promIngestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailnotify_ingest_errors_total",
			Help: "Undecodable inbound events, by source",
		},
		[]string{"source"},
	)
	promAutomation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailnotify_automation_messages_total",
			Help: "Automation payload publish attempts",
		},
		[]string{"status"},
	)
	promLastEvent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailnotify_last_event_timestamp_seconds",
			Help: "Unix timestamp of the last mail event",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promEvents,
		promDispatches,
		promDispatchDuration,
		promStoreErrors,
		promIngestErrors,
		promAutomation,
		promLastEvent,
	)
}

// 3. Public API (Updates both Atomic and Prometheus)

// IncEvent counts one mail event of the given kind and stamps the last event
// time.
func IncEvent(kind string, at time.Time) {
	atomic.AddInt64(&eventsTotal, counterInc)
	atomic.StoreInt64(&lastEvent, at.Unix())
	promEvents.WithLabelValues(kind).Inc()
	promLastEvent.Set(float64(at.Unix()))
}

// IncDispatch counts one dispatch outcome for a channel.
func IncDispatch(channel, result string) {
	channelMu.Lock()
	cs, ok := channelStats[channel]
	if !ok {
		cs = &ChannelStats{}
		channelStats[channel] = cs
	}
	switch result {
	case ResultSent:
		cs.Sent++
	case ResultFailed:
		cs.Failed++
	case ResultSkipped:
		cs.Skipped++
	case ResultUnrouted:
		cs.Unrouted++
	}
	channelMu.Unlock()
	promDispatches.WithLabelValues(channel, result).Inc()
}

// ObserveDispatchDuration records the duration (in seconds) of one outbound
// channel request.
func ObserveDispatchDuration(channel string, seconds float64) {
	promDispatchDuration.WithLabelValues(channel).Observe(seconds)
}

// IncStoreError counts an option store failure.
func IncStoreError() {
	atomic.AddInt64(&storeErrors, counterInc)
	promStoreErrors.Inc()
}

// IncIngestError counts an undecodable inbound event.
func IncIngestError(source string) {
	atomic.AddInt64(&ingestErrors, counterInc)
	promIngestErrors.WithLabelValues(source).Inc()
}

// IncAutomationPublished counts a published automation payload.
func IncAutomationPublished() {
	atomic.AddInt64(&automationPublished, counterInc)
	promAutomation.WithLabelValues("published").Inc()
}

// IncAutomationFailed counts an automation payload that could not be
// published.
func IncAutomationFailed() {
	atomic.AddInt64(&automationFailed, counterInc)
	promAutomation.WithLabelValues("failed").Inc()
}

// 4. JSON Snapshot Struct (For dashboards/API)

// ChannelStats holds per-channel dispatch outcomes.
type ChannelStats struct {
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Skipped  int64 `json:"skipped"`
	Unrouted int64 `json:"unrouted"`
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Events              int64                   `json:"events"`
	DispatchSent        int64                   `json:"dispatch_sent"`
	DispatchFailed      int64                   `json:"dispatch_failed"`
	DispatchSkipped     int64                   `json:"dispatch_skipped"`
	DispatchUnrouted    int64                   `json:"dispatch_unrouted"`
	StoreErrors         int64                   `json:"store_errors"`
	IngestErrors        int64                   `json:"ingest_errors"`
	AutomationPublished int64                   `json:"automation_published"`
	AutomationFailed    int64                   `json:"automation_failed"`
	Channels            map[string]ChannelStats `json:"channels"`
	LastEvent           int64                   `json:"last_event_timestamp"`
	LastEventHuman      string                  `json:"last_event_human"`
}

// GetSnapshot returns a StatsSnapshot with the current values of all
// internal counters and timestamps.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastEvent)
	s := StatsSnapshot{
		Events:              atomic.LoadInt64(&eventsTotal),
		StoreErrors:         atomic.LoadInt64(&storeErrors),
		IngestErrors:        atomic.LoadInt64(&ingestErrors),
		AutomationPublished: atomic.LoadInt64(&automationPublished),
		AutomationFailed:    atomic.LoadInt64(&automationFailed),
		Channels:            map[string]ChannelStats{},
		LastEvent:           ts,
	}
	if ts > 0 {
		s.LastEventHuman = time.Unix(ts, 0).Format(time.RFC3339)
	}
	channelMu.Lock()
	defer channelMu.Unlock()
	for name, cs := range channelStats {
		s.Channels[name] = *cs
		s.DispatchSent += cs.Sent
		s.DispatchFailed += cs.Failed
		s.DispatchSkipped += cs.Skipped
		s.DispatchUnrouted += cs.Unrouted
	}
	return s
}

// ChannelNames returns the channels that have recorded at least one outcome,
// sorted.
func (s StatsSnapshot) ChannelNames() []string {
	names := make([]string, 0, len(s.Channels))
	for n := range s.Channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// 5. Handlers

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
