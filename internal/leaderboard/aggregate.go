package leaderboard

import (
	"sort"
	"time"

	"backend-runlink/internal/feed"
)

// completionFraction of the configured target that counts as finishing the
// challenge.
const completionFraction = 0.8

// Participant is one roster member; everyone on the roster appears in the
// standings even with zero published activity.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Entry is one derived standings row. Never stored; recomputed per call.
type Entry struct {
	ParticipantID  string  `json:"participantId"`
	Name           string  `json:"name"`
	TotalDistanceM float64 `json:"totalDistanceMeters"`
	TotalDuration  float64 `json:"totalDurationSeconds"`
	ElevationGainM float64 `json:"elevationGainMeters"`
	WorkoutCount   int     `json:"workoutCount"`
	Completed      bool    `json:"completed"`
	Rank           int     `json:"rank"`

	lastActivity time.Time
}

// Aggregate reduces published events plus a roster into ranked standings.
// targetM <= 0 means no completion target is configured. The function is
// stateless and fully re-derives the output on every call.
//
// Order: completed before incomplete; among completed, ascending total
// duration (fastest first); otherwise descending distance, then descending
// workout count, then most recent activity first.
func Aggregate(events []feed.Event, roster []Participant, targetM float64) []Entry {
	byID := make(map[string]*Entry, len(roster))
	entries := make([]Entry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, Entry{ParticipantID: p.ID, Name: p.Name})
	}
	for i := range entries {
		byID[entries[i].ParticipantID] = &entries[i]
	}

	for _, ev := range events {
		e, ok := byID[ev.RunnerID]
		if !ok {
			// Not on this roster.
			continue
		}
		e.TotalDistanceM += ev.DistanceM
		e.TotalDuration += ev.DurationSec
		e.ElevationGainM += ev.Elevation.GainM
		e.WorkoutCount++
		if ev.StartedAt.After(e.lastActivity) {
			e.lastActivity = ev.StartedAt
		}
	}

	if targetM > 0 {
		for i := range entries {
			entries[i].Completed = entries[i].TotalDistanceM >= completionFraction*targetM
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// less is the full deterministic tie-break chain; every comparison falls
// through completely before two entries count as equal.
func less(a, b Entry) bool {
	if a.Completed != b.Completed {
		return a.Completed
	}
	if a.Completed && b.Completed && a.TotalDuration != b.TotalDuration {
		return a.TotalDuration < b.TotalDuration
	}
	if a.TotalDistanceM != b.TotalDistanceM {
		return a.TotalDistanceM > b.TotalDistanceM
	}
	if a.WorkoutCount != b.WorkoutCount {
		return a.WorkoutCount > b.WorkoutCount
	}
	return a.lastActivity.After(b.lastActivity)
}
