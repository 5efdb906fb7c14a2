package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	requestDuration map[string]time.Duration
	errorCount      map[string]int64
	transitionCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string]time.Duration),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts a lifecycle operation by subject, action and outcome
// (an error code, or "ok").
func (m *Metrics) RecordTransition(subject, action, outcome string) {
	if m == nil {
		return
	}
	key := subject + "|" + action + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[key]++
}

// Counter is one exported series.
type Counter struct {
	Labels []string `json:"labels"`
	Value  int64    `json:"value"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests    []Counter `json:"requests"`
	Errors      []Counter `json:"errors"`
	Transitions []Counter `json:"transitions"`
	// AvgLatencyMS is keyed like Requests.
	AvgLatencyMS map[string]float64 `json:"avg_latency_ms"`
}

// Snapshot copies the counters, sorted by label for stable output.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[string]float64, len(m.requestCount))
	for key, n := range m.requestCount {
		if n > 0 {
			latency[key] = float64(m.requestDuration[key].Milliseconds()) / float64(n)
		}
	}
	return Snapshot{
		Requests:     counters(m.requestCount),
		Errors:       counters(m.errorCount),
		Transitions:  counters(m.transitionCount),
		AvgLatencyMS: latency,
	}
}

// TransitionCount returns one transition counter.
func (m *Metrics) TransitionCount(subject, action, outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionCount[subject+"|"+action+"|"+outcome]
}

func counters(src map[string]int64) []Counter {
	out := make([]Counter, 0, len(src))
	for key, v := range src {
		out = append(out, Counter{Labels: strings.Split(key, "|"), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Join(out[i].Labels, "|") < strings.Join(out[j].Labels, "|")
	})
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
