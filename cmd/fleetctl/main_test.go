package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdash/fleetdash/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, nil }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s stubInspector) Close() error { return nil }

func run(t *testing.T, cli *jobsCLI, args ...string) string {
	t.Helper()
	cmd := rootCmd(func(string) (*jobsCLI, error) { return cli, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--redis", "127.0.0.1:0"}, args...))
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestWarmupCommand(t *testing.T) {
	enq := &stubEnqueuer{}
	out := run(t, &jobsCLI{client: jobs.NewClientWith(enq)}, "warmup", "--invalidate")
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskStatsWarmup, enq.tasks[0].Type())
	assert.JSONEq(t, `{"invalidate":true}`, string(enq.tasks[0].Payload()))
	assert.Contains(t, out, "enqueued stats:warmup id=t1")
}

func TestQueueStatsCommand(t *testing.T) {
	cli := &jobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}}}
	out := run(t, cli, "queue", "stats")
	assert.Contains(t, out, "PENDING")
	assert.Regexp(t, `default\s+3\s+0\s+0\s+1\s+0`, out)
}

func TestQueueScheduledCommand(t *testing.T) {
	next := time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)
	cli := &jobsCLI{inspector: stubInspector{scheduled: []*asynq.TaskInfo{{ID: "abc", Type: jobs.TaskQuoteSend, NextProcessAt: next}}}}
	out := run(t, cli, "queue", "scheduled")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "2025-03-01 06:00:00")
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	cli := &jobsCLI{client: jobs.NewClientWith(&stubEnqueuer{})}
	_, err := cli.Trigger(context.Background(), "mail:send", false)
	assert.Error(t, err)
}
