package service

import (
	"context"
	"time"

	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
	"smartsolution/pkg/utils/logger"

	"go.uber.org/zap"
)

func (s *Service) markRunning(ctx context.Context, submissionID string) error {
	ctxStore, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.MarkRunning(ctxStore, submissionID)
}

// finish caches, persists and announces a terminal result.
// Each step is best-effort and detached from caller cancellation; a failed delivery
// never changes the result itself.
func (s *Service) finish(ctx context.Context, sub model.Submission, result model.AutoJudgeResult, started time.Time) {
	detached := context.WithoutCancel(ctx)
	s.metrics.ObserveResult(string(result.Status), result.Kind, time.Since(started))
	logger.Info(ctx, "judging finished",
		zap.String("status", string(result.Status)),
		zap.String("kind", result.Kind),
		zap.String("message", result.Message),
		zap.Duration("elapsed", time.Since(started)),
	)

	if err := s.cache.Put(detached, sub.ID, result, s.resultTTL); err != nil {
		s.metrics.DeliveryFailed("cache")
		logger.Warn(ctx, "cache result failed", zap.Error(err))
	}

	ctxStore, cancel := context.WithTimeout(detached, s.storeTimeout)
	err := s.store.PersistResult(ctxStore, sub.ID, result)
	cancel()
	if err != nil {
		s.metrics.DeliveryFailed("persist")
		logger.Error(ctx, "persist result failed", zap.Error(err))
	}

	if s.notifier == nil {
		return
	}
	ctxNotify, cancel := context.WithTimeout(detached, s.notifyTimeout)
	err = s.notifier.NotifySubmitter(ctxNotify, sub, result)
	cancel()
	if err != nil {
		s.metrics.DeliveryFailed("notify")
		logger.Error(ctx, "notify submitter failed", zap.Error(err))
	}
}

// Result returns the judging state of a submission: a cached result first, then the stored row.
func (s *Service) Result(ctx context.Context, submissionID string) (StatusView, error) {
	if submissionID == "" {
		return StatusView{}, appErr.ValidationError("submission_id", "required")
	}
	if entry, ok, err := s.cache.Get(ctx, submissionID); err != nil {
		logger.Warn(ctx, "read cached result failed", zap.String("submission_id", submissionID), zap.Error(err))
	} else if ok {
		return viewFromResult(submissionID, entry.Result), nil
	}

	ctxStore, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	sub, err := s.store.GetSubmission(ctxStore, submissionID)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		Value:        sub.Score,
		Message:      sub.Message,
		JudgedAt:     sub.JudgedAt,
	}
	if sub.Status.Terminal() {
		view.Text = model.NotificationText(sub.Title, resultFromRow(sub))
	}
	return view, nil
}

// StatusView is the read-back shape of a submission's judging state.
type StatusView struct {
	SubmissionID string                 `json:"submission_id"`
	Status       model.SubmissionStatus `json:"status"`
	Value        *float64               `json:"value,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Kind         string                 `json:"kind,omitempty"`
	Text         string                 `json:"text,omitempty"`
	JudgedAt     *time.Time             `json:"judged_at,omitempty"`
}

func viewFromResult(submissionID string, result model.AutoJudgeResult) StatusView {
	status := model.SubmissionJudged
	if !result.Succeeded() {
		status = model.SubmissionError
	}
	judgedAt := result.JudgedAt
	return StatusView{
		SubmissionID: submissionID,
		Status:       status,
		Value:        result.Value,
		Message:      result.Message,
		Kind:         result.Kind,
		Text:         model.NotificationText("", result),
		JudgedAt:     &judgedAt,
	}
}

func resultFromRow(sub model.Submission) model.AutoJudgeResult {
	res := model.AutoJudgeResult{Status: model.ResultError, Message: sub.Message}
	if sub.Status == model.SubmissionJudged && sub.Score != nil {
		res.Status = model.ResultSuccess
		res.Value = sub.Score
	}
	if sub.JudgedAt != nil {
		res.JudgedAt = *sub.JudgedAt
	}
	return res
}
