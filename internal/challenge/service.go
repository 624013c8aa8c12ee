package challenge

import (
	"context"
	"time"

	"backend-runlink/internal/db"
	"backend-runlink/internal/feed"
	"backend-runlink/internal/leaderboard"

	"github.com/google/uuid"
)

type Service struct {
	db   db.Querier
	feed *feed.Store
}

func NewService(q db.Querier, feedStore *feed.Store) *Service {
	return &Service{db: q, feed: feedStore}
}

func (s *Service) Create(ctx context.Context, input Challenge) (Challenge, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO challenges (id, name, description, target_distance_m, start_date, end_date, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, input.ID, input.Name, input.Description, input.TargetM, timePtr(input.StartDate), timePtr(input.EndDate), input.CreatedBy)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Challenge{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (Challenge, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, target_distance_m,
		       COALESCE(start_date, 'epoch'::timestamptz), COALESCE(end_date, 'epoch'::timestamptz),
		       created_by, created_at
		FROM challenges WHERE id=$1
	`, id)
	var ch Challenge
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.TargetM,
		&ch.StartDate, &ch.EndDate, &ch.CreatedBy, &ch.CreatedAt); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

func (s *Service) List(ctx context.Context) ([]Challenge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, target_distance_m,
		       COALESCE(start_date, 'epoch'::timestamptz), COALESCE(end_date, 'epoch'::timestamptz),
		       created_by, created_at
		FROM challenges
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []Challenge
	for rows.Next() {
		var ch Challenge
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.TargetM,
			&ch.StartDate, &ch.EndDate, &ch.CreatedBy, &ch.CreatedAt); err != nil {
			return nil, err
		}
		challenges = append(challenges, ch)
	}
	return challenges, rows.Err()
}

// Join is idempotent; re-joining refreshes the display name only.
func (s *Service) Join(ctx context.Context, challengeID, runnerID, displayName string) (Member, error) {
	if displayName == "" {
		displayName = runnerID
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO challenge_members (challenge_id, runner_id, display_name)
		VALUES ($1,$2,$3)
		ON CONFLICT (challenge_id, runner_id) DO UPDATE SET display_name=EXCLUDED.display_name
		RETURNING joined_at
	`, challengeID, runnerID, displayName)
	member := Member{ChallengeID: challengeID, RunnerID: runnerID, DisplayName: displayName}
	if err := row.Scan(&member.JoinedAt); err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *Service) Members(ctx context.Context, challengeID string) ([]Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT challenge_id, runner_id, display_name, joined_at
		FROM challenge_members WHERE challenge_id=$1
		ORDER BY joined_at
	`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ChallengeID, &m.RunnerID, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Leaderboard derives the current standings from the published events of the
// challenge roster. Nothing is cached; every call recomputes from scratch.
func (s *Service) Leaderboard(ctx context.Context, challengeID string) ([]leaderboard.Entry, error) {
	ch, err := s.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	members, err := s.Members(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	roster := make([]leaderboard.Participant, 0, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		roster = append(roster, leaderboard.Participant{ID: m.RunnerID, Name: m.DisplayName})
		ids = append(ids, m.RunnerID)
	}

	var events []feed.Event
	if len(ids) > 0 {
		events, err = s.feed.EventsForRunners(ctx, ids, ch.StartDate)
		if err != nil {
			return nil, err
		}
	}
	return leaderboard.Aggregate(events, roster, ch.TargetM), nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
