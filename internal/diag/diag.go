// Package diag collects what went wrong (or was skipped) during a run:
// structured slog records, Prometheus counters and an end-of-run summary.
package diag

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// Event names a diagnostic category.
type Event string

const (
	ParseFailed  Event = "parse.failed"
	ParseTimeout Event = "parse.timeout"
	Unsupported  Event = "parse.unsupported"
	Unresolved   Event = "resolve.unresolved"
	Degraded     Event = "resolve.degraded"
	Ambiguous    Event = "resolve.ambiguous"
	EmbedSkipped Event = "embed.skipped"
	StoreFailed  Event = "store.failed"
)

// Record is one diagnostic.
type Record struct {
	Event    Event
	File     string
	Language lang.Language
	Line     int
	Message  string
	Attrs    map[string]any
	Time     time.Time
}

// LangStats counts per-language parse outcomes.
type LangStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RefStats counts reference resolution outcomes.
type RefStats struct {
	Resolved  int `json:"resolved"`
	FileLevel int `json:"file_level"`
	Degraded  int `json:"degraded"`
	Dropped   int `json:"dropped"`
	Ambiguous int `json:"ambiguous"`
}

// Summary is produced at the end of every run, successful or not.
type Summary struct {
	RunID         string                      `json:"run_id"`
	Started       time.Time                   `json:"started"`
	Elapsed       time.Duration               `json:"elapsed"`
	Languages     map[lang.Language]LangStats `json:"languages"`
	References    RefStats                    `json:"references"`
	Entities      int                         `json:"entities"`
	Relationships int                         `json:"relationships"`
	Embedded      int                         `json:"embedded"`
	EmbedSkipped  int                         `json:"embed_skipped"`
	Events        map[Event]int               `json:"events"`
	UpToDate      bool                        `json:"up_to_date,omitempty"`
	StoreError    string                      `json:"store_error,omitempty"`
}

// Metrics are the Prometheus collectors shared by every sink registered
// against the same registry.
type Metrics struct {
	files   *prometheus.CounterVec
	events  *prometheus.CounterVec
	refs    *prometheus.CounterVec
	elapsed prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graph_codebase",
			Name:      "files_total",
			Help:      "Files handed to the parse coordinator, by language and status.",
		}, []string{"language", "status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graph_codebase",
			Name:      "diagnostics_total",
			Help:      "Diagnostics recorded, by event.",
		}, []string{"event"}),
		refs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graph_codebase",
			Name:      "references_total",
			Help:      "Pending references by resolution outcome.",
		}, []string{"outcome"}),
		elapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graph_codebase",
			Name:      "run_duration_seconds",
			Help:      "Wall time of indexing runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.files, m.events, m.refs, m.elapsed)
	}
	return m
}

// Sink is safe for concurrent use.
type Sink struct {
	metrics *Metrics
	runID   string
	started time.Time

	mu       sync.Mutex
	records  []Record
	langs    map[lang.Language]*LangStats
	events   map[Event]int
	refs     RefStats
	counts   struct{ entities, relationships, embedded int }
	upToDate bool
	storeErr error
}

// New starts a run. metrics may be nil.
func New(metrics *Metrics) *Sink {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Sink{
		metrics: metrics,
		runID:   uuid.New().String(),
		started: time.Now(),
		langs:   make(map[lang.Language]*LangStats),
		events:  make(map[Event]int),
	}
}

// RunID identifies the run in logs and in the store.
func (s *Sink) RunID() string { return s.runID }

// Record logs and keeps one diagnostic.
func (s *Sink) Record(r Record) {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	args := []any{"run", s.runID}
	if r.File != "" {
		args = append(args, "file", r.File)
	}
	if r.Language != "" {
		args = append(args, "lang", string(r.Language))
	}
	if r.Line > 0 {
		args = append(args, "line", r.Line)
	}
	if r.Message != "" {
		args = append(args, "err", r.Message)
	}
	keys := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, r.Attrs[k])
	}
	switch r.Event {
	case Unresolved, Degraded:
		slog.Debug(string(r.Event), args...)
	case EmbedSkipped, Unsupported, Ambiguous:
		slog.Warn(string(r.Event), args...)
	default:
		slog.Error(string(r.Event), args...)
	}

	s.metrics.events.WithLabelValues(string(r.Event)).Inc()
	s.mu.Lock()
	s.records = append(s.records, r)
	s.events[r.Event]++
	s.mu.Unlock()
}

// Records returns a copy of every diagnostic recorded so far.
func (s *Sink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// File outcomes, as reported by the parse coordinator.
const (
	FileOK      = "ok"
	FileFailed  = "failed"
	FileSkipped = "skipped"
	FileTimeout = "timeout"
)

// FileDone counts one attempted file.
func (s *Sink) FileDone(l lang.Language, status string) {
	label := string(l)
	if label == "" {
		label = "unknown"
	}
	s.metrics.files.WithLabelValues(label, status).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.langs[l]
	if st == nil {
		st = &LangStats{}
		s.langs[l] = st
	}
	st.Attempted++
	switch status {
	case FileOK:
		st.Succeeded++
	case FileSkipped:
		st.Skipped++
	default:
		st.Failed++
	}
}

// References records the resolver's counts.
func (s *Sink) References(r RefStats) {
	s.metrics.refs.WithLabelValues("resolved").Add(float64(r.Resolved))
	s.metrics.refs.WithLabelValues("file_level").Add(float64(r.FileLevel))
	s.metrics.refs.WithLabelValues("degraded").Add(float64(r.Degraded))
	s.metrics.refs.WithLabelValues("dropped").Add(float64(r.Dropped))
	s.metrics.refs.WithLabelValues("ambiguous").Add(float64(r.Ambiguous))
	s.mu.Lock()
	s.refs = r
	s.mu.Unlock()
}

// Graph records the size of the final graph.
func (s *Sink) Graph(entities, relationships int) {
	s.mu.Lock()
	s.counts.entities, s.counts.relationships = entities, relationships
	s.mu.Unlock()
}

// Embedded counts entities that received a vector.
func (s *Sink) Embedded(n int) {
	s.mu.Lock()
	s.counts.embedded += n
	s.mu.Unlock()
}

// UpToDate marks a run that found nothing changed.
func (s *Sink) UpToDate() {
	s.mu.Lock()
	s.upToDate = true
	s.mu.Unlock()
}

// StoreError records a persistence failure; the summary still completes.
func (s *Sink) StoreError(err error) {
	s.Record(Record{Event: StoreFailed, Message: err.Error()})
	s.mu.Lock()
	s.storeErr = err
	s.mu.Unlock()
}

// Summary closes the run and returns its counts.
func (s *Sink) Summary() Summary {
	elapsed := time.Since(s.started)
	s.metrics.elapsed.Observe(elapsed.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	out := Summary{
		RunID:         s.runID,
		Started:       s.started,
		Elapsed:       elapsed,
		Languages:     make(map[lang.Language]LangStats, len(s.langs)),
		References:    s.refs,
		Entities:      s.counts.entities,
		Relationships: s.counts.relationships,
		Embedded:      s.counts.embedded,
		EmbedSkipped:  s.events[EmbedSkipped],
		Events:        make(map[Event]int, len(s.events)),
		UpToDate:      s.upToDate,
	}
	for l, st := range s.langs {
		out.Languages[l] = *st
	}
	for e, n := range s.events {
		out.Events[e] = n
	}
	if s.storeErr != nil {
		out.StoreError = s.storeErr.Error()
	}
	return out
}

// String renders the summary the way the CLI prints it.
func (sum Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s)\n", sum.RunID, sum.Elapsed.Round(time.Millisecond))
	if sum.UpToDate {
		b.WriteString("up to date\n")
		return b.String()
	}
	langs := make([]string, 0, len(sum.Languages))
	for l := range sum.Languages {
		langs = append(langs, string(l))
	}
	sort.Strings(langs)
	for _, l := range langs {
		st := sum.Languages[lang.Language(l)]
		fmt.Fprintf(&b, "  %-12s attempted=%d ok=%d failed=%d skipped=%d\n", l, st.Attempted, st.Succeeded, st.Failed, st.Skipped)
	}
	r := sum.References
	fmt.Fprintf(&b, "  references   resolved=%d file_level=%d degraded=%d dropped=%d ambiguous=%d\n",
		r.Resolved, r.FileLevel, r.Degraded, r.Dropped, r.Ambiguous)
	fmt.Fprintf(&b, "  graph        entities=%d relationships=%d\n", sum.Entities, sum.Relationships)
	if sum.Embedded > 0 || sum.EmbedSkipped > 0 {
		fmt.Fprintf(&b, "  embeddings   embedded=%d skipped=%d\n", sum.Embedded, sum.EmbedSkipped)
	}
	if sum.StoreError != "" {
		fmt.Fprintf(&b, "  store error: %s\n", sum.StoreError)
	}
	return b.String()
}
