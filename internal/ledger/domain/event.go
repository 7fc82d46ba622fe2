package domain

import "time"

// EventType names a state transition accepted by the ledger
type EventType string

const (
	EventWorkerRegistered     EventType = "worker.registered"
	EventWorkerDeregistered   EventType = "worker.deregistered"
	EventJobCreated           EventType = "job.created"
	EventJobAssigned          EventType = "job.assigned"
	EventResultSubmitted      EventType = "job.result_submitted"
	EventJobCompleted         EventType = "job.completed"
	EventJobCancelled         EventType = "job.cancelled"
	EventResultDecrypted      EventType = "job.result_decrypted"
	EventPlatformFeeWithdrawn EventType = "platform.fees_withdrawn"
)

// Event is one entry of the ledger's append-only notification history.
// Seq is assigned by the store and totally orders all events.
type Event struct {
	Seq         uint64          `json:"seq"`
	Type        EventType       `json:"type"`
	JobID       uint64          `json:"job_id,omitempty"`
	Actor       string          `json:"actor"`
	Kind        ComputationKind `json:"computation_kind,omitempty"`
	Amount      Amount          `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}
