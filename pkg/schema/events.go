package schema

import "encoding/json"

// Event names on the run event channel.
const (
	EventSnapshot = "snapshot"
	EventUpdate   = "update"
)

// Update payload discriminators.
const (
	UpdateTypeStep = "step"
	UpdateTypeRun  = "run"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusPaused    RunStatus = "PAUSED"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCanceled  RunStatus = "CANCELED"
)

// Terminal reports whether the status ends the run's lifecycle.
// A retried run is a distinct resource, never a resurrection.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of a single run step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// UpdateEvent is the incremental payload carried by an "update" event.
// Type selects which fields are meaningful: "step" updates carry
// StepIndex + Status (a StepStatus), "run" updates carry Status
// (a RunStatus) + ProgressPct.
type UpdateEvent struct {
	Type        string   `json:"type"`
	StepIndex   int      `json:"step_index,omitempty"`
	Status      string   `json:"status"`
	ProgressPct *float64 `json:"progress_pct,omitempty"`
}

// RunStatusValue interprets the status field as a run status.
// Only meaningful when Type == UpdateTypeRun.
func (u UpdateEvent) RunStatusValue() RunStatus { return RunStatus(u.Status) }

// StepStatusValue interprets the status field as a step status.
// Only meaningful when Type == UpdateTypeStep.
func (u UpdateEvent) StepStatusValue() StepStatus { return StepStatus(u.Status) }

// ChannelEvent is one framed event off the live channel, before
// normalization into a snapshot or update.
type ChannelEvent struct {
	Name string
	Data json.RawMessage
}
