package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/fleetdash/fleetdash/internal/jobs"
	"github.com/fleetdash/fleetdash/internal/pricing"
	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/shared"
	"github.com/fleetdash/fleetdash/internal/stats"
)

type fakeLoader struct {
	quotes map[int64]quotes.Quote
	err    error
}

func (f fakeLoader) Get(_ context.Context, id int64) (quotes.Quote, error) {
	if f.err != nil {
		return quotes.Quote{}, f.err
	}
	q, ok := f.quotes[id]
	if !ok {
		return quotes.Quote{}, shared.ErrNotFound
	}
	return q, nil
}

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeWarmer struct {
	invalidated int
	built       int
	err         error
}

func (f *fakeWarmer) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

func (f *fakeWarmer) Dashboard(context.Context) (stats.Dashboard, error) {
	f.built++
	return stats.Dashboard{ThisMonthOrders: 3}, f.err
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func sampleQuote() quotes.Quote {
	return quotes.Quote{
		ID: 9,
		CustomerDetails: quotes.CustomerDetails{
			RecipientName: "Jane Buyer",
			CompanyName:   "Acme Logistics",
			Email:         "jane@acme.test",
		},
		Parts: []pricing.Part{{
			Product:        pricing.Product{ID: "veh-hilux", Make: "Toyota", Model: "Hilux"},
			Quantity:       2,
			MasterPrice:    decimal.NewFromInt(510700),
			MasterDiscount: decimal.NewFromInt(5),
			Price:          decimal.NewFromInt(485165),
		}},
	}
}

func TestQuoteSendTaskRequiresID(t *testing.T) {
	_, err := NewQuoteSendTask(QuoteSendPayload{})
	assert.Error(t, err)

	task, err := NewQuoteSendTask(QuoteSendPayload{QuoteID: 4, Recipient: "a@b.test"})
	require.NoError(t, err)
	assert.Equal(t, TaskQuoteSend, task.Type())
	var payload QuoteSendPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(4), payload.QuoteID)
}

func TestQuoteSendJobSendsSummary(t *testing.T) {
	sender := &fakeSender{}
	job := NewQuoteSendJob(fakeLoader{quotes: map[int64]quotes.Quote{9: sampleQuote()}}, sender, nil, testMetrics())
	task, err := NewQuoteSendTask(QuoteSendPayload{QuoteID: 9})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "jane@acme.test", msg.To)
	assert.Equal(t, "Your quote #9", msg.Subject)
	assert.Contains(t, msg.Body, "Dear Jane Buyer")
	assert.Contains(t, msg.Body, "2 x Toyota Hilux @ 485165.00")
	assert.Contains(t, msg.Body, "Total: 970330.00")
}

func TestQuoteSendJobMissingQuoteSkipsRetry(t *testing.T) {
	sender := &fakeSender{}
	job := NewQuoteSendJob(fakeLoader{}, sender, nil, testMetrics())
	task, err := NewQuoteSendTask(QuoteSendPayload{QuoteID: 1})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, sender.sent)
}

func TestQuoteSendJobSenderFailureRetries(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	job := NewQuoteSendJob(fakeLoader{quotes: map[int64]quotes.Quote{9: sampleQuote()}}, sender, nil, testMetrics())
	task, err := NewQuoteSendTask(QuoteSendPayload{QuoteID: 9, Recipient: "ops@acme.test"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestQuoteSendJobBadPayload(t *testing.T) {
	job := NewQuoteSendJob(fakeLoader{}, &fakeSender{}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskQuoteSend, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestClientEnqueueQuoteSend(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	require.NoError(t, client.EnqueueQuoteSend(context.Background(), 12, "jane@acme.test"))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskQuoteSend, enq.tasks[0].Type())

	info, err := client.EnqueueStatsWarmup(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, TaskStatsWarmup, info.Type)

	enq.err = errors.New("redis down")
	assert.Error(t, client.EnqueueQuoteSend(context.Background(), 12, ""))
}

func TestStatsWarmupJob(t *testing.T) {
	warmer := &fakeWarmer{}
	job := NewStatsWarmupJob(warmer, nil, testMetrics())

	task, err := NewStatsWarmupTask(true)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, warmer.invalidated)
	assert.Equal(t, 1, warmer.built)

	task, err = NewStatsWarmupTask(false)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, warmer.invalidated)
	assert.Equal(t, 2, warmer.built)

	warmer.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), task))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   float64
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, http.StatusOK, 4},
		{"redis down", fakeInspector{err: errors.New("down")}, http.StatusServiceUnavailable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tt.inspector, nil).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tt.status, rr.Code)
			if tt.status != http.StatusOK {
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.pending, body["pending"])
		})
	}
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opt.Addr)

	opt, err = RedisOpt("redis://:secret@queue.internal:6380/3")
	require.NoError(t, err)
	assert.Equal(t, "queue.internal:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 3, opt.DB)
}
