package entities

import (
	"time"
)

// BackfillState is the backfill engine's lifecycle state.
type BackfillState string

const (
	BackfillIdle     BackfillState = "idle"
	BackfillRunning  BackfillState = "running"
	BackfillComplete BackfillState = "complete"
	BackfillStopped  BackfillState = "stopped"
	BackfillFailed   BackfillState = "failed"
)

// StreamMode identifies which transport the stream engine is using.
type StreamMode string

const (
	StreamModeIdle         StreamMode = "idle"
	StreamModeSubscription StreamMode = "subscription"
	StreamModeFilterPoll   StreamMode = "filter_poll"
	StreamModeRangePoll    StreamMode = "range_poll"
)

// BackfillStatus is a point-in-time snapshot of backfill progress.
type BackfillStatus struct {
	State            BackfillState `json:"state"`
	StartBlock       uint64        `json:"start_block"`
	CurrentBlock     uint64        `json:"current_block"`
	TargetBlock      uint64        `json:"target_block"`
	PercentComplete  float64       `json:"percent_complete"`
	BlocksPerSecond  float64       `json:"blocks_per_second"`
	ETASeconds       int64         `json:"eta_seconds"`
	LogsProcessed    int64         `json:"logs_processed"`
	LogsFailed       int64         `json:"logs_failed"`
	BatchesCompleted int64         `json:"batches_completed"`
	LastError        string        `json:"last_error,omitempty"`
}

// StreamStatus is a point-in-time snapshot of the stream engine.
type StreamStatus struct {
	Running           bool       `json:"running"`
	Mode              StreamMode `json:"mode"`
	LastBlock         uint64     `json:"last_block"`
	LogsProcessed     int64      `json:"logs_processed"`
	TransportRestarts int64      `json:"transport_restarts"`
	LastError         string     `json:"last_error,omitempty"`
}

// ReconcileStatus summarizes the most recent reconciliation pass.
type ReconcileStatus struct {
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	Checked      int        `json:"checked"`
	Repaired     int        `json:"repaired"`
	DLQRetried   int        `json:"dlq_retried"`
	DLQRecovered int        `json:"dlq_recovered"`
	LagBlocks    int64      `json:"lag_blocks"`
	LastError    string     `json:"last_error,omitempty"`
}

// HealthStatus exposes the monitor's current view of the engine.
type HealthStatus struct {
	LagSeconds        int64            `json:"lag_seconds"`
	DLQCount          int64            `json:"dlq_count"`
	ConsecutiveErrors int              `json:"consecutive_batch_errors"`
	ViolationStreaks  map[string]int   `json:"violation_streaks"`
	LastActions       map[string]int64 `json:"last_action_unix,omitempty"`
}

// EngineStatus aggregates every component's status for the read surface.
type EngineStatus struct {
	Running   bool            `json:"running"`
	Phase     string          `json:"phase"`
	Backfill  BackfillStatus  `json:"backfill"`
	Stream    StreamStatus    `json:"stream"`
	Reconcile ReconcileStatus `json:"reconcile"`
	Health    HealthStatus    `json:"health"`
	Store     MappingStats    `json:"store"`
}
