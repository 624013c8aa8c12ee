package feed

import (
	"time"

	"backend-runlink/internal/motion"
	"backend-runlink/internal/session"
)

// Event is one published session record as seen on the shared feed. The id
// is the record's idempotency key; publishing the same id again changes
// nothing.
type Event struct {
	ID             string            `json:"id"`
	RunnerID       string            `json:"runnerId"`
	StartedAt      time.Time         `json:"startedAt"`
	DistanceM      float64           `json:"distanceMeters"`
	DurationSec    float64           `json:"durationSeconds"`
	Elevation      session.Elevation `json:"elevation"`
	Splits         []motion.Split    `json:"splits"`
	CreatedOffline bool              `json:"createdOffline"`
	SchemaVersion  int               `json:"schemaVersion"`
	PublishedAt    time.Time         `json:"publishedAt"`
}
