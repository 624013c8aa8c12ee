package session

import (
	"time"

	"backend-runlink/internal/motion"
)

// SchemaVersion tags persisted queue payloads and published records so the
// shape can evolve without breaking old entries.
const SchemaVersion = 1

// State of a tracking session. Stopped is terminal.
type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Elevation holds accumulated climb and descent.
type Elevation struct {
	GainM float64 `json:"gainMeters"`
	LossM float64 `json:"lossMeters"`
}

// Record is the immutable snapshot produced once per stopped session.
// ID doubles as the idempotency key for queueing and publication; it is
// assigned when tracking starts and never regenerated.
type Record struct {
	ID             string         `json:"id"`
	RunnerID       string         `json:"runnerId"`
	StartedAt      time.Time      `json:"startedAt"`
	DistanceM      float64        `json:"distanceMeters"`
	DurationSec    float64        `json:"durationSeconds"`
	Elevation      Elevation      `json:"elevation"`
	Splits         []motion.Split `json:"splits"`
	CreatedOffline bool           `json:"createdOffline"`
	SchemaVersion  int            `json:"schemaVersion"`
}

// Snapshot is the live view of a session for the stats UI.
type Snapshot struct {
	ID             string         `json:"id"`
	RunnerID       string         `json:"runnerId"`
	State          State          `json:"state"`
	StartedAt      time.Time      `json:"startedAt"`
	DistanceM      float64        `json:"distanceMeters"`
	DurationSec    float64        `json:"durationSeconds"`
	Elevation      Elevation      `json:"elevation"`
	Splits         []motion.Split `json:"splits"`
	PausedFixCount int            `json:"pausedFixCount"`
}
