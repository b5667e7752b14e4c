package service

import (
	"context"
	"encoding/json"
	"strings"

	"smartsolution/internal/common/mq"
	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
	"smartsolution/pkg/utils/logger"

	"go.uber.org/zap"
)

// HandleMessage is the queue trigger. It always returns nil once the payload names a
// submission: judging outcomes, duplicates and stale triggers must not cause redelivery.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return nil
	}
	submissionID := parseTask(msg)
	if submissionID == "" {
		logger.Warn(ctx, "judge task without submission id dropped", zap.String("message_id", msg.ID))
		return nil
	}

	_, err := s.Judge(ctx, submissionID)
	switch {
	case err == nil:
	case appErr.Is(err, appErr.AlreadyJudging), appErr.Is(err, appErr.SubmissionNotPending):
		logger.Info(ctx, "judge task skipped", zap.String("submission_id", submissionID), zap.String("reason", appErr.GetCode(err).Name()))
	default:
		logger.Error(ctx, "judge task failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
	return nil
}

func parseTask(msg *mq.Message) string {
	var task model.JudgeTask
	if len(msg.Body) > 0 && json.Unmarshal(msg.Body, &task) == nil {
		if id := strings.TrimSpace(task.SubmissionID); id != "" {
			return id
		}
	}
	return strings.TrimSpace(msg.ID)
}
