package stats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/workflow"
)

type mockLister struct {
	mu    sync.Mutex
	list  []quotes.Quote
	err   error
	calls int
}

func (m *mockLister) List(context.Context) ([]quotes.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.list, m.err
}

func (m *mockLister) set(list []quotes.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = list
}

func (m *mockLister) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var fixedNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo QuoteLister) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute), time.UTC)
	svc.now = func() time.Time { return fixedNow }
	return svc, mr
}

func TestDashboardCachesUntilBump(t *testing.T) {
	repo := &mockLister{list: []quotes.Quote{
		approvedQuote(at(2025, time.March, 2), workflow.ColumnAwaitingDelivery, "100"),
	}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ThisMonthOrders)
	assert.True(t, decimal.NewFromInt(100).Equal(first.Revenue))

	repo.set(append(repo.list, approvedQuote(at(2025, time.March, 3), workflow.ColumnAwaitingDelivery, "50")))
	second, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.ThisMonthOrders)
	assert.Equal(t, 1, repo.callCount())

	require.NoError(t, svc.Invalidate(ctx))
	third, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, third.ThisMonthOrders)
	assert.True(t, decimal.NewFromInt(150).Equal(third.Revenue))
	assert.Equal(t, 2, repo.callCount())
}

func TestDashboardWithoutCache(t *testing.T) {
	repo := &mockLister{}
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return fixedNow }

	_, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	_, err = svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount())
	assert.NoError(t, svc.Invalidate(context.Background()))
}

func TestDashboardPropagatesRepositoryError(t *testing.T) {
	repo := &mockLister{err: errors.New("db down")}
	svc, mr := newTestService(t, repo)

	_, err := svc.Dashboard(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "stats:dashboard", "failed builds must not be cached")
	}
}

func TestCacheVersionInitialisesAndBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "stats", "dashboard")
	require.NoError(t, err)
	assert.Equal(t, "stats:dashboard:1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "stats", "dashboard")
	require.NoError(t, err)
	assert.Equal(t, "stats:dashboard:2", key)
}

func TestListenForInvalidationAdoptsNewerVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.ListenForInvalidation(ctx, ""))

	require.NoError(t, client.Publish(ctx, bumpChannel, "7").Err())
	assert.Eventually(t, func() bool {
		ver, err := cache.Version(ctx)
		return err == nil && ver == 7
	}, time.Second, 10*time.Millisecond)
}

func TestDashboardHandler(t *testing.T) {
	repo := &mockLister{list: []quotes.Quote{
		approvedQuote(at(2025, time.March, 2), workflow.ColumnAwaitingBank, "100"),
	}}
	svc, _ := newTestService(t, repo)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["thisMonthOrders"])
	assert.Equal(t, "+100%", body["ordersChange"])
	assert.Equal(t, "100", body["revenue"])
	columns := body["columns"].(map[string]any)
	assert.Equal(t, float64(1), columns["awaiting_bank"])
	assert.Equal(t, float64(0), columns["completed"])
}

func TestDashboardHandlerError(t *testing.T) {
	svc, _ := newTestService(t, &mockLister{err: errors.New("boom")})
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
