package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuoteSend mails a quote summary to the customer.
	TaskQuoteSend = "quote:send"
	// TaskStatsWarmup rebuilds the cached dashboard stats.
	TaskStatsWarmup = "stats:warmup"
)

// QuoteSendPayload identifies the quote to mail.
type QuoteSendPayload struct {
	QuoteID   int64  `json:"quote_id"`
	Recipient string `json:"recipient"`
}

// NewQuoteSendTask constructs the quote mail task.
func NewQuoteSendTask(payload QuoteSendPayload) (*asynq.Task, error) {
	if payload.QuoteID <= 0 {
		return nil, errors.New("jobs: quote id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteSend, data), nil
}

// StatsWarmupPayload controls the dashboard warmup.
type StatsWarmupPayload struct {
	// Invalidate bumps the cache version before rebuilding.
	Invalidate bool `json:"invalidate"`
}

// NewStatsWarmupTask builds the dashboard warmup task.
func NewStatsWarmupTask(invalidate bool) (*asynq.Task, error) {
	data, err := json.Marshal(StatsWarmupPayload{Invalidate: invalidate})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data), nil
}
