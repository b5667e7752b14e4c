package service

import (
	"context"

	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
)

type judgeMeta struct {
	submission model.Submission
	team       model.Team
	track      model.Track
}

// loadMeta resolves the submission with its team and track. The submission must still be pending.
func (s *Service) loadMeta(ctx context.Context, submissionID string) (judgeMeta, error) {
	ctxStore, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sub, err := s.store.GetSubmission(ctxStore, submissionID)
	if err != nil {
		return judgeMeta{}, err
	}
	if sub.Status != model.SubmissionPending {
		return judgeMeta{}, appErr.New(appErr.SubmissionNotPending).
			WithDetail("submission_id", submissionID).
			WithDetail("status", string(sub.Status))
	}
	team, err := s.store.GetTeam(ctxStore, sub.TeamID)
	if err != nil {
		return judgeMeta{}, err
	}
	trackID := sub.TrackID
	if trackID == "" {
		trackID = team.TrackID
	}
	if trackID == "" {
		return judgeMeta{}, appErr.New(appErr.JudgeSystemError).
			WithMessage("team is not assigned to a track").
			WithDetail("team_id", team.ID)
	}
	track, err := s.store.GetTrack(ctxStore, trackID)
	if err != nil {
		return judgeMeta{}, err
	}
	sub.TrackID = track.ID
	return judgeMeta{submission: sub, team: team, track: track}, nil
}
