package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fleetdash/fleetdash/internal/jobs"
	"github.com/fleetdash/fleetdash/internal/stats"
)

// DashboardWarmer is the subset of stats.Service used by the warmup job.
type DashboardWarmer interface {
	Invalidate(ctx context.Context) error
	Dashboard(ctx context.Context) (stats.Dashboard, error)
}

// StatsWarmupJob pre-populates the dashboard cache.
type StatsWarmupJob struct {
	Stats   DashboardWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(svc DashboardWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{Stats: svc, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes TaskStatsWarmup tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Stats == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("stats warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskStatsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	if payload.Invalidate {
		if err := j.Stats.Invalidate(ctx); err != nil {
			logger.Error("invalidate stats cache", slog.Any("error", err))
			return err
		}
	}
	dash, err := j.Stats.Dashboard(ctx)
	if err != nil {
		logger.Error("rebuild dashboard", slog.Any("error", err))
		return err
	}
	logger.Info("completed stats warmup",
		slog.Int("this_month_orders", dash.ThisMonthOrders),
		slog.Int("outstanding", dash.Outstanding),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}

func (j *StatsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
