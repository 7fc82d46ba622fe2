package worker

import (
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Task sources
const (
	sourceNotification = "notification"
	sourceReconcile    = "reconcile"
	sourceResume       = "resume"
)

// task is one attempt at a job. Notification tasks carry the delivery that
// must be settled once the attempt ends.
type task struct {
	jobID    uint64
	source   string
	delivery *amqp.Delivery
}

// Phase is where a job stands in this coordinator's processing
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseClaiming   Phase = "claiming"
	PhaseLost       Phase = "lost"
	PhaseAssigned   Phase = "assigned"
	PhaseComputing  Phase = "computing"
	PhaseSubmitting Phase = "submitting"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
	PhaseSkipped    Phase = "skipped"
)

// tracker records the phase of every in-flight job. A job can be in flight
// once, which makes duplicate notifications and reconcile hits no-ops.
type tracker struct {
	mu     sync.Mutex
	phases map[uint64]Phase
}

func newTracker() *tracker {
	return &tracker{phases: make(map[uint64]Phase)}
}

// begin reserves jobID and reports false if it is already in flight
func (t *tracker) begin(jobID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.phases[jobID]; ok {
		return false
	}
	t.phases[jobID] = PhaseIdle
	jobsInPhase.WithLabelValues(string(PhaseIdle)).Inc()
	return true
}

func (t *tracker) set(jobID uint64, phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.phases[jobID]
	if !ok {
		return
	}
	jobsInPhase.WithLabelValues(string(prev)).Dec()
	jobsInPhase.WithLabelValues(string(phase)).Inc()
	t.phases[jobID] = phase
}

// finish releases jobID with its final phase
func (t *tracker) finish(jobID uint64, final Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.phases[jobID]
	if !ok {
		return
	}
	jobsInPhase.WithLabelValues(string(prev)).Dec()
	delete(t.phases, jobID)
	jobOutcomes.WithLabelValues(string(final)).Inc()
}

func (t *tracker) phase(jobID uint64) (Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.phases[jobID]
	return p, ok
}

func (t *tracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.phases)
}

func (t *task) logAttrs() []any {
	return []any{slog.Uint64("job_id", t.jobID), slog.String("source", t.source)}
}
