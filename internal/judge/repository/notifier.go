package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartsolution/internal/common/mq"
	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
)

// ResultNotifier publishes terminal results for delivery to the submitter.
type ResultNotifier struct {
	producer mq.Producer
	topic    string
}

// NewResultNotifier creates a notifier publishing to topic.
func NewResultNotifier(producer mq.Producer, topic string) *ResultNotifier {
	return &ResultNotifier{producer: producer, topic: topic}
}

// NotifySubmitter publishes one ResultEvent keyed by submission id.
func (p *ResultNotifier) NotifySubmitter(ctx context.Context, submission model.Submission, result model.AutoJudgeResult) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("result notifier is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("result topic is required")
	}
	if submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	event := model.ResultEvent{
		SubmissionID: submission.ID,
		TeamID:       submission.TeamID,
		TrackID:      submission.TrackID,
		Title:        submission.Title,
		Status:       result.Status,
		Value:        result.Value,
		Message:      result.Message,
		Text:         model.NotificationText(submission.Title, result),
		CreatedAt:    time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = submission.ID
	message.SetHeader("content-type", "application/json")
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish result event failed")
	}
	return nil
}
