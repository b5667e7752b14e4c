// Package service orchestrates judging: lookup, sandboxed scoring, caching and delivery.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartsolution/internal/judge/archive"
	"smartsolution/internal/judge/metrics"
	"smartsolution/internal/judge/model"
	"smartsolution/internal/judge/resultcache"
	"smartsolution/internal/judge/scorer"
	appErr "smartsolution/pkg/errors"
	"smartsolution/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultJudgeTimeout  = 5 * time.Minute
	defaultResultTTL     = time.Hour
	defaultStoreTimeout  = 5 * time.Second
	defaultNotifyTimeout = 5 * time.Second
)

// SubmissionStore reads judging metadata and records outcomes.
type SubmissionStore interface {
	GetSubmission(ctx context.Context, submissionID string) (model.Submission, error)
	GetTeam(ctx context.Context, teamID string) (model.Team, error)
	GetTrack(ctx context.Context, trackID string) (model.Track, error)
	// MarkRunning fails with SubmissionNotPending if the submission left pending meanwhile.
	MarkRunning(ctx context.Context, submissionID string) error
	PersistResult(ctx context.Context, submissionID string, result model.AutoJudgeResult) error
}

// Notifier delivers a terminal result to the submitter.
type Notifier interface {
	NotifySubmitter(ctx context.Context, submission model.Submission, result model.AutoJudgeResult) error
}

// ScorerResolver looks up the strategy of a track.
type ScorerResolver interface {
	Resolve(key string) (scorer.Strategy, error)
}

// Service handles judge requests.
type Service struct {
	store         SubmissionStore
	notifier      Notifier
	scorers       ScorerResolver
	archives      archive.Source
	cache         resultcache.Cache
	metrics       *metrics.Metrics
	workRoot      string
	judgeTimeout  time.Duration
	resultTTL     time.Duration
	storeTimeout  time.Duration
	notifyTimeout time.Duration

	locks *lockTable
	slots *semaphore.Weighted
}

// Config holds service dependencies and settings.
type Config struct {
	Store    SubmissionStore
	Notifier Notifier
	Scorers  ScorerResolver
	Archives archive.Source
	Cache    resultcache.Cache
	Metrics  *metrics.Metrics

	WorkRoot string
	// Workers bounds concurrent judging host-wide. Default 1.
	Workers       int
	JudgeTimeout  time.Duration
	ResultTTL     time.Duration
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Scorers == nil {
		return nil, fmt.Errorf("scorer registry is required")
	}
	if cfg.Archives == nil {
		return nil, fmt.Errorf("archive source is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("result cache is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = defaultJudgeTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return &Service{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		scorers:       cfg.Scorers,
		archives:      cfg.Archives,
		cache:         cfg.Cache,
		metrics:       cfg.Metrics,
		workRoot:      cfg.WorkRoot,
		judgeTimeout:  cfg.JudgeTimeout,
		resultTTL:     cfg.ResultTTL,
		storeTimeout:  cfg.StoreTimeout,
		notifyTimeout: cfg.NotifyTimeout,
		locks:         newLockTable(),
		slots:         semaphore.NewWeighted(int64(workers)),
	}, nil
}

// Judge runs one judging attempt for a pending submission.
//
// A second call for a submission that is being judged fails fast with AlreadyJudging.
// Errors before the submission is marked running (lookups, SubmissionNotPending) are
// returned as Go errors and leave the submission untouched. Once running, every failure
// is turned into a terminal error result, which is returned with a nil error.
func (s *Service) Judge(ctx context.Context, submissionID string) (model.AutoJudgeResult, error) {
	if submissionID == "" {
		return model.AutoJudgeResult{}, appErr.ValidationError("submission_id", "required")
	}
	ctx = logger.WithSubmission(ctx, submissionID)

	unlock, ok := s.locks.TryLock(submissionID)
	if !ok {
		s.metrics.Rejected(appErr.AlreadyJudging.Name())
		logger.Warn(ctx, "duplicate judge trigger rejected")
		return model.AutoJudgeResult{}, appErr.New(appErr.AlreadyJudging).WithDetail("submission_id", submissionID)
	}
	defer unlock()

	meta, err := s.loadMeta(ctx, submissionID)
	if err != nil {
		s.metrics.Rejected(appErr.GetCode(err).Name())
		return model.AutoJudgeResult{}, err
	}
	if err := s.markRunning(ctx, submissionID); err != nil {
		s.metrics.Rejected(appErr.GetCode(err).Name())
		return model.AutoJudgeResult{}, err
	}
	started := time.Now()
	logger.Info(ctx, "judging started",
		zap.String("track", meta.track.ScorerKey()), zap.String("team_id", meta.team.ID))

	if err := s.cache.Invalidate(ctx, submissionID); err != nil {
		logger.Warn(ctx, "invalidate cached result failed", zap.Error(err))
	}

	result := s.execute(ctx, meta)
	s.finish(ctx, meta.submission, result, started)
	return result, nil
}

// execute runs the scorer under a worker slot and always returns a terminal result.
func (s *Service) execute(ctx context.Context, meta judgeMeta) (result model.AutoJudgeResult) {
	if err := s.acquireSlot(ctx); err != nil {
		return model.ResultFromError(err)
	}
	defer s.releaseSlot()

	strategy, err := s.scorers.Resolve(meta.track.ScorerKey())
	if err != nil {
		return model.ResultFromError(err)
	}

	workDir, err := s.newWorkDir(meta.submission.ID)
	if err != nil {
		return model.ResultFromError(err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "remove work dir failed", zap.String("work_dir", workDir), zap.Error(err))
		}
	}()

	judgeCtx, cancel := context.WithTimeout(ctx, s.judgeTimeout)
	defer cancel()

	archivePath, err := s.archives.Fetch(judgeCtx, meta.submission.ArchivePath, workDir)
	if err != nil {
		return s.failure(ctx, judgeCtx, err)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "scorer panicked", zap.Any("panic", r))
			result = model.ResultFromError(appErr.Newf(appErr.JudgeSystemError, "scorer failed unexpectedly"))
		}
	}()
	res, err := strategy.Judge(judgeCtx, scorer.Request{
		ArchivePath: archivePath,
		WorkDir:     workDir,
		Submission:  meta.submission,
		Team:        meta.team,
		Track:       meta.track,
	})
	if err != nil {
		return s.failure(ctx, judgeCtx, err)
	}
	return normalizeResult(res)
}

// failure maps an error to a result. Hitting the overall judge deadline counts as a timeout.
func (s *Service) failure(ctx, judgeCtx context.Context, err error) model.AutoJudgeResult {
	if ctx.Err() == nil && judgeCtx.Err() == context.DeadlineExceeded && !appErr.Is(err, appErr.SandboxTimeout) {
		err = appErr.New(appErr.SandboxTimeout).WithMessagef("judging exceeded %s", s.judgeTimeout)
	}
	return model.ResultFromError(err)
}

// normalizeResult makes whatever a scorer returned well formed.
func normalizeResult(res model.AutoJudgeResult) model.AutoJudgeResult {
	switch res.Status {
	case model.ResultSuccess:
		if res.Value == nil {
			return model.ResultFromError(appErr.New(appErr.JudgeSystemError).WithMessage("scorer returned no value"))
		}
		out := model.SuccessResult(*res.Value, res.Message)
		if !res.JudgedAt.IsZero() {
			out.JudgedAt = res.JudgedAt
		}
		return out
	case model.ResultError:
		res.Value = nil
		if res.Kind == "" {
			res.Kind = appErr.InternalServerError.Name()
		}
		if res.JudgedAt.IsZero() {
			res.JudgedAt = time.Now()
		}
		return res
	default:
		return model.ResultFromError(appErr.New(appErr.JudgeSystemError).WithMessage("scorer returned no result"))
	}
}

// newWorkDir creates a directory no other attempt can share.
func (s *Service) newWorkDir(submissionID string) (string, error) {
	name := uuid.NewString()
	if safe := filepath.Base(submissionID); safe == submissionID && !strings.HasPrefix(safe, ".") {
		name = safe + "-" + name
	}
	dir := filepath.Join(s.workRoot, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir failed")
	}
	return dir, nil
}
