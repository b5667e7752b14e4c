// Package scorer maps tracks to the strategies that judge their submissions.
package scorer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
)

// Request carries everything a strategy needs for one attempt.
// WorkDir is exclusive to the attempt and removed by the caller afterwards.
type Request struct {
	ArchivePath string
	WorkDir     string
	Submission  model.Submission
	Team        model.Team
	Track       model.Track
}

// Strategy judges one submission archive.
// Recoverable judging failures should come back as an error result; a returned error
// is recorded as a terminal error result by the caller.
type Strategy interface {
	Judge(ctx context.Context, req Request) (model.AutoJudgeResult, error)
}

// Func adapts a plain function to Strategy.
type Func func(ctx context.Context, req Request) (model.AutoJudgeResult, error)

// Judge calls f.
func (f Func) Judge(ctx context.Context, req Request) (model.AutoJudgeResult, error) {
	return f(ctx, req)
}

// Key normalizes a competition/track slug pair.
func Key(competition, track string) string {
	return model.ScorerKey(competition, track)
}

// Registry holds the track-to-strategy bindings.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register binds key to strategy. A key can only be bound once.
func (r *Registry) Register(key string, strategy Strategy) error {
	key = normalize(key)
	if key == "" {
		return appErr.ValidationError("key", "required")
	}
	if strategy == nil {
		return appErr.ValidationError("strategy", "required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[key]; ok {
		return appErr.New(appErr.DuplicateScorer).WithMessagef("scorer %q is already registered", key)
	}
	r.strategies[key] = strategy
	return nil
}

// MustRegister is Register for start-up wiring; it panics on error.
func (r *Registry) MustRegister(key string, strategy Strategy) {
	if err := r.Register(key, strategy); err != nil {
		panic(err)
	}
}

// Resolve returns the strategy bound to key.
func (r *Registry) Resolve(key string) (Strategy, error) {
	key = normalize(key)
	r.mu.RLock()
	strategy, ok := r.strategies[key]
	r.mu.RUnlock()
	if !ok {
		return nil, appErr.New(appErr.ScorerNotRegistered).WithMessagef("no scorer for %q", key).WithDetail("key", key)
	}
	return strategy, nil
}

// Keys lists the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// normalize applies Key rules to an already joined key.
func normalize(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return Key("", key)
	}
	return Key(key[:i], key[i+1:])
}
