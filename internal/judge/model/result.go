package model

import (
	"math"
	"time"

	appErr "smartsolution/pkg/errors"
)

// ResultStatus is the outcome of one judging attempt.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// AutoJudgeResult is the immutable outcome of judging a submission.
// Value is set only on success, and is then finite and non-negative.
type AutoJudgeResult struct {
	Status   ResultStatus `json:"status"`
	Value    *float64     `json:"value,omitempty"`
	Message  string       `json:"message"`
	Kind     string       `json:"kind,omitempty"`
	JudgedAt time.Time    `json:"judged_at"`
}

// SuccessResult builds a success result. Non-finite or negative values are clamped to 0.
func SuccessResult(value float64, message string) AutoJudgeResult {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		value = 0
	}
	v := value
	return AutoJudgeResult{
		Status:   ResultSuccess,
		Value:    &v,
		Message:  message,
		JudgedAt: time.Now(),
	}
}

// ErrorResult builds an error result carrying the error kind and a "<Kind>: <detail>" message.
func ErrorResult(kind, message string) AutoJudgeResult {
	return AutoJudgeResult{
		Status:   ResultError,
		Message:  message,
		Kind:     kind,
		JudgedAt: time.Now(),
	}
}

// ResultFromError converts a judging failure into an error result.
// Only the kind and message are kept; stacks and wrapped causes are dropped.
func ResultFromError(err error) AutoJudgeResult {
	return ErrorResult(appErr.GetCode(err).Name(), appErr.Describe(err))
}

// Succeeded reports whether the result carries a score.
func (r AutoJudgeResult) Succeeded() bool {
	return r.Status == ResultSuccess && r.Value != nil
}

// CacheEntry is a cached result with its lifetime.
type CacheEntry struct {
	Result    AutoJudgeResult `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}
