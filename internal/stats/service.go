package stats

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fleetdash/fleetdash/internal/quotes"
)

// QuoteLister is the slice of the quote repository the dashboard reads.
type QuoteLister interface {
	List(ctx context.Context) ([]quotes.Quote, error)
}

// Service builds dashboard stats through the versioned cache.
type Service struct {
	repo  QuoteLister
	cache *Cache
	loc   *time.Location
	now   func() time.Time
	group singleflight.Group
}

// NewService wires the quote lister with an optional cache. A nil loc means UTC.
func NewService(repo QuoteLister, cache *Cache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, cache: cache, loc: loc, now: time.Now}
}

// Invalidate bumps the cache version so the next Dashboard call rebuilds.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Dashboard returns the current stats, sharing one build among concurrent callers.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	key, err := s.cache.BuildKey(ctx, "stats", "dashboard", s.loc.String())
	if err != nil {
		return Dashboard{}, err
	}
	val, err, _ := s.do(ctx, key, func(ctx context.Context) (any, error) {
		var out Dashboard
		built := false
		loader := func(ctx context.Context) (any, error) {
			built = true
			return s.build(ctx)
		}
		if err := s.cache.FetchJSON(ctx, key, &out, loader); err != nil {
			return nil, err
		}
		if built {
			recordCacheMiss()
		} else {
			recordCacheHit()
		}
		return out, nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return val.(Dashboard), nil
}

func (s *Service) build(ctx context.Context) (Dashboard, error) {
	start := time.Now()
	list, err := s.repo.List(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	out := Aggregate(list, s.now(), s.loc)
	observeAggregate(time.Since(start))
	return out, nil
}

func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
