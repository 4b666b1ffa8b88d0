package model

import "time"

// JobState is one state of the discovery pipeline. No state is re-entered
// within a single job.
type JobState string

const (
	StateIndexLookup JobState = "index_lookup"
	StateFanOut      JobState = "fan_out"
	StateReconcile   JobState = "reconcile"
	StateScore       JobState = "score"
	StatePersist     JobState = "persist"
	StateDone        JobState = "done"
	StatePartialDone JobState = "partial_done"
	StateFailed      JobState = "failed"
)

// Terminal reports whether the state ends the job.
func (s JobState) Terminal() bool {
	return s == StateDone || s == StatePartialDone || s == StateFailed
}

// OutcomeStatus is the discovery outcome reported to the transport layer.
type OutcomeStatus string

const (
	OutcomeFreshHit   OutcomeStatus = "fresh-hit"
	OutcomeReconciled OutcomeStatus = "reconciled"
	OutcomePartial    OutcomeStatus = "partial"
	OutcomeFailed     OutcomeStatus = "failed"
)

// DiscoveryJob is the transient unit of work for one discovery request. It is
// not persisted beyond its run; the terminal outcome is written to the audit
// log for operability.
type DiscoveryJob struct {
	ID         string    `json:"id"`
	Slug       string    `json:"slug"`
	Identifier string    `json:"identifier"`
	State      JobState  `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Transition advances the job to the next state. The orchestrator drives the
// pipeline forward only; callers never move a job backwards.
func (j *DiscoveryJob) Transition(next JobState) {
	j.State = next
	if next.Terminal() {
		j.FinishedAt = time.Now().UTC()
	}
}
