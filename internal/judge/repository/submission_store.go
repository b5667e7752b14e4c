package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
	"unicode/utf8"

	"smartsolution/internal/common/cache"
	"smartsolution/internal/common/db"
	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
	"smartsolution/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTrackCacheTTL = 10 * time.Minute
	trackCacheKeyPrefix  = "judge:track:"

	maxMessageRunes = 1000
)

// SubmissionStore reads judging metadata and writes results back over SQL.
// Tracks are immutable, so they are cached when a cache client is given.
type SubmissionStore struct {
	db       db.Database
	cache    cache.Cache
	trackTTL time.Duration
}

// NewSubmissionStore creates a store. cacheClient may be nil.
func NewSubmissionStore(database db.Database, cacheClient cache.Cache, trackTTL time.Duration) *SubmissionStore {
	if trackTTL <= 0 {
		trackTTL = defaultTrackCacheTTL
	}
	return &SubmissionStore{db: database, cache: cacheClient, trackTTL: trackTTL}
}

const submissionQuery = `
	SELECT s.id, tu.team_id, t.track_id, s.title, s.file_path, s.status, s.value, s.message, s.judged_at, s.created_at
	FROM submission s
	JOIN team_user tu ON tu.id = s.team_user_id
	JOIN team t ON t.id = tu.team_id
	WHERE s.id = ?
`

// GetSubmission loads a submission with its owning team and track ids.
func (r *SubmissionStore) GetSubmission(ctx context.Context, submissionID string) (model.Submission, error) {
	if submissionID == "" {
		return model.Submission{}, appErr.ValidationError("submission_id", "required")
	}
	var (
		sub      model.Submission
		trackID  sql.NullString
		status   string
		value    sql.NullFloat64
		message  sql.NullString
		judgedAt sql.NullTime
	)
	err := r.db.QueryRow(ctx, submissionQuery, submissionID).Scan(
		&sub.ID, &sub.TeamID, &trackID, &sub.Title, &sub.ArchivePath,
		&status, &value, &message, &judgedAt, &sub.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Submission{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return model.Submission{}, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	sub.TrackID = trackID.String
	sub.Status = model.SubmissionStatus(status)
	sub.Message = message.String
	if value.Valid {
		v := value.Float64
		sub.Score = &v
	}
	if judgedAt.Valid {
		t := judgedAt.Time
		sub.JudgedAt = &t
	}
	return sub, nil
}

// GetTeam loads a team.
func (r *SubmissionStore) GetTeam(ctx context.Context, teamID string) (model.Team, error) {
	if teamID == "" {
		return model.Team{}, appErr.ValidationError("team_id", "required")
	}
	var (
		team    model.Team
		trackID sql.NullString
	)
	err := r.db.QueryRow(ctx, "SELECT id, title, track_id FROM team WHERE id = ?", teamID).Scan(&team.ID, &team.Name, &trackID)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Team{}, appErr.NotFoundError("team").WithDetail("team_id", teamID)
		}
		return model.Team{}, appErr.Wrapf(err, appErr.DatabaseError, "load team failed")
	}
	team.TrackID = trackID.String
	return team, nil
}

const trackQuery = `
	SELECT tr.id, tr.slug, c.slug, tr.title, tr.sort_by
	FROM track tr
	JOIN competition c ON c.id = tr.competition_id
	WHERE tr.id = ?
`

// GetTrack loads a track with its competition slug, serving from cache when possible.
func (r *SubmissionStore) GetTrack(ctx context.Context, trackID string) (model.Track, error) {
	if trackID == "" {
		return model.Track{}, appErr.ValidationError("track_id", "required")
	}
	if track, ok := r.cachedTrack(ctx, trackID); ok {
		return track, nil
	}

	var (
		track  model.Track
		sortBy string
	)
	err := r.db.QueryRow(ctx, trackQuery, trackID).Scan(&track.ID, &track.Slug, &track.CompetitionSlug, &track.Title, &sortBy)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Track{}, appErr.NotFoundError("track").WithDetail("track_id", trackID)
		}
		return model.Track{}, appErr.Wrapf(err, appErr.DatabaseError, "load track failed")
	}
	track.SortBy = model.SortOrder(sortBy)
	r.cacheTrack(ctx, track)
	return track, nil
}

func (r *SubmissionStore) cachedTrack(ctx context.Context, trackID string) (model.Track, bool) {
	if r.cache == nil {
		return model.Track{}, false
	}
	val, err := r.cache.Get(ctx, trackCacheKeyPrefix+trackID)
	if err != nil {
		logger.Warn(ctx, "read track cache failed", zap.String("track_id", trackID), zap.Error(err))
		return model.Track{}, false
	}
	if val == "" {
		return model.Track{}, false
	}
	var track model.Track
	if err := json.Unmarshal([]byte(val), &track); err != nil {
		return model.Track{}, false
	}
	return track, true
}

func (r *SubmissionStore) cacheTrack(ctx context.Context, track model.Track) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(track)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, trackCacheKeyPrefix+track.ID, string(data), cache.JitterTTL(r.trackTTL)); err != nil {
		logger.Warn(ctx, "write track cache failed", zap.String("track_id", track.ID), zap.Error(err))
	}
}

// MarkRunning moves a pending submission to running.
// It fails with SubmissionNotPending when the row is not pending anymore.
func (r *SubmissionStore) MarkRunning(ctx context.Context, submissionID string) error {
	res, err := r.db.Exec(ctx,
		"UPDATE submission SET status = ? WHERE id = ? AND status = ?",
		string(model.SubmissionRunning), submissionID, string(model.SubmissionPending),
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark submission running failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark submission running failed")
	}
	if affected == 0 {
		return appErr.New(appErr.SubmissionNotPending).WithDetail("submission_id", submissionID)
	}
	return nil
}

// PersistResult moves a running submission to its terminal state with score and message.
func (r *SubmissionStore) PersistResult(ctx context.Context, submissionID string, result model.AutoJudgeResult) error {
	status := model.SubmissionError
	var value interface{}
	if result.Succeeded() {
		status = model.SubmissionJudged
		value = *result.Value
	}
	judgedAt := result.JudgedAt
	if judgedAt.IsZero() {
		judgedAt = time.Now()
	}

	res, err := r.db.Exec(ctx,
		"UPDATE submission SET status = ?, value = ?, message = ?, judged_at = ? WHERE id = ? AND status = ?",
		string(status), value, truncateMessage(result.Message), judgedAt.UTC(), submissionID, string(model.SubmissionRunning),
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "persist result failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "persist result failed")
	}
	if affected == 0 {
		return appErr.New(appErr.DatabaseError).
			WithMessage("submission is not running").
			WithDetail("submission_id", submissionID)
	}
	return nil
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxMessageRunes {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxMessageRunes])
}
