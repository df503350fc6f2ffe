package progress

import (
	"sync"
	"time"
)

// Stage represents a pipeline stage
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageGroup     Stage = "group"
	StageAssemble  Stage = "assemble"
	StageMix       Stage = "mix"
	StageTrim      Stage = "trim"
	StagePackage   Stage = "package"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// Update holds a progress update
type Update struct {
	JobID     string
	Unit      string
	Stage     Stage
	Percent   float64
	Message   string
	Timestamp time.Time
}

// Reporter is the interface for progress reporting
type Reporter interface {
	Report(update Update)
}

// ChannelReporter sends updates to a channel
type ChannelReporter struct {
	ch chan<- Update
}

// NewChannelReporter creates a reporter that sends updates to ch
func NewChannelReporter(ch chan<- Update) *ChannelReporter {
	return &ChannelReporter{ch: ch}
}

func (r *ChannelReporter) Report(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	select {
	case r.ch <- update:
	default: // non-blocking: drop if channel is full
	}
}

// MultiReporter fans out to multiple reporters
type MultiReporter struct {
	mu        sync.RWMutex
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) Add(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

func (m *MultiReporter) Report(update Update) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reporters {
		r.Report(update)
	}
}

// RecordingReporter keeps every update; safe for concurrent unit pipelines
type RecordingReporter struct {
	mu      sync.Mutex
	updates []Update
}

func (r *RecordingReporter) Report(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

// Updates returns a copy of everything recorded so far
func (r *RecordingReporter) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Update, len(r.updates))
	copy(out, r.updates)
	return out
}

// NoopReporter discards all updates
type NoopReporter struct{}

func (n NoopReporter) Report(_ Update) {}
