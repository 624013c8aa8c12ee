package feed

import (
	"context"
	"encoding/json"
	"time"

	"backend-runlink/internal/db"
	"backend-runlink/internal/motion"
	"backend-runlink/internal/session"
)

type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Publish creates the event for a session record. The insert is keyed by
// the record id with ON CONFLICT DO NOTHING, so a resend after a crash or
// retry never creates a duplicate externally-visible event.
func (s *Store) Publish(ctx context.Context, rec session.Record) error {
	splits, err := json.Marshal(rec.Splits)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO activity_events
			(id, runner_id, started_at, distance_m, duration_sec,
			 elevation_gain_m, elevation_loss_m, splits, created_offline, schema_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.RunnerID, rec.StartedAt, rec.DistanceM, rec.DurationSec,
		rec.Elevation.GainM, rec.Elevation.LossM, string(splits), rec.CreatedOffline, rec.SchemaVersion)
	return err
}

// Events returns the published feed, most recent first.
func (s *Store) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, runner_id, started_at, distance_m, duration_sec,
		       elevation_gain_m, elevation_loss_m, splits, created_offline, schema_version, published_at
		FROM activity_events
		ORDER BY published_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForRunners returns every published event for the given runners, the
// input collection for a leaderboard.
func (s *Store) EventsForRunners(ctx context.Context, runnerIDs []string, since time.Time) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, runner_id, started_at, distance_m, duration_sec,
		       elevation_gain_m, elevation_loss_m, splits, created_offline, schema_version, published_at
		FROM activity_events
		WHERE runner_id = ANY($1) AND started_at >= $2
		ORDER BY started_at
	`, runnerIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows rowScanner) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var splits string
		if err := rows.Scan(&e.ID, &e.RunnerID, &e.StartedAt, &e.DistanceM, &e.DurationSec,
			&e.Elevation.GainM, &e.Elevation.LossM, &splits, &e.CreatedOffline, &e.SchemaVersion, &e.PublishedAt); err != nil {
			return nil, err
		}
		if splits != "" {
			if err := json.Unmarshal([]byte(splits), &e.Splits); err != nil {
				return nil, err
			}
		}
		if e.Splits == nil {
			e.Splits = []motion.Split{}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
