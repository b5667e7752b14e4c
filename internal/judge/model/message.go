package model

import (
	"strconv"
	"strings"
	"time"
)

// JudgeTask is the Kafka payload that triggers judging.
type JudgeTask struct {
	SubmissionID string `json:"submission_id"`
}

// ResultEvent is the notification payload published once a submission reaches a terminal state.
type ResultEvent struct {
	SubmissionID string       `json:"submission_id"`
	TeamID       string       `json:"team_id"`
	TrackID      string       `json:"track_id"`
	Title        string       `json:"title"`
	Status       ResultStatus `json:"status"`
	Value        *float64     `json:"value,omitempty"`
	Message      string       `json:"message"`
	Text         string       `json:"text"`
	CreatedAt    time.Time    `json:"created_at"`
}

// FormatValue renders a score with four decimals and trailing zeros trimmed.
// A missing value renders as an em dash.
func FormatValue(v *float64) string {
	if v == nil {
		return "—"
	}
	s := strconv.FormatFloat(*v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}

// NotificationText is the human-readable summary sent to the submitter.
func NotificationText(title string, r AutoJudgeResult) string {
	if title == "" {
		title = "submission"
	}
	if r.Succeeded() {
		return "Judging finished for \"" + title + "\": score " + FormatValue(r.Value) + ". " + r.Message
	}
	return "Judging failed for \"" + title + "\": " + r.Message
}
