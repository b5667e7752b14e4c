package model

import (
	"strings"
	"time"
)

// SubmissionStatus is the judging lifecycle state of a submission.
type SubmissionStatus string

const (
	SubmissionPending SubmissionStatus = "pending"
	SubmissionRunning SubmissionStatus = "running"
	SubmissionJudged  SubmissionStatus = "judged"
	SubmissionError   SubmissionStatus = "error"
)

// CanTransition reports whether moving from s to next is allowed.
// Status only moves forward: pending -> running -> judged|error.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	switch s {
	case SubmissionPending:
		return next == SubmissionRunning
	case SubmissionRunning:
		return next == SubmissionJudged || next == SubmissionError
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionJudged || s == SubmissionError
}

// Submission is one uploaded solution attempt.
type Submission struct {
	ID          string           `json:"id"`
	TeamID      string           `json:"team_id"`
	TrackID     string           `json:"track_id"`
	Title       string           `json:"title"`
	ArchivePath string           `json:"archive_path"`
	Status      SubmissionStatus `json:"status"`
	Score       *float64         `json:"score,omitempty"`
	Message     string           `json:"message,omitempty"`
	JudgedAt    *time.Time       `json:"judged_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Team is the submitting party.
type Team struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	TrackID string `json:"track_id"`
}

// SortOrder is the leaderboard direction of a track.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Track is a competition category with its own scoring rule.
type Track struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	CompetitionSlug string    `json:"competition_slug"`
	Title           string    `json:"title"`
	SortBy          SortOrder `json:"sort_by"`
}

// ScorerKey is the registry key of the track's scoring strategy.
func (t Track) ScorerKey() string {
	return ScorerKey(t.CompetitionSlug, t.Slug)
}

// ScorerKey normalizes a competition/track slug pair into a registry key.
// An empty competition yields the bare track slug.
func ScorerKey(competition, track string) string {
	competition = strings.ToLower(strings.TrimSpace(competition))
	track = strings.ToLower(strings.TrimSpace(track))
	if competition == "" {
		return track
	}
	return competition + "/" + track
}
