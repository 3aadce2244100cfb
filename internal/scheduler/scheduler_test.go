package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/clock"
	obsmetrics "github.com/smallbiznis/pasarku/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrders struct {
	mu        sync.Mutex
	expired   int
	delivered int
	actors    []actor.Actor
	failWith  error
}

func (f *fakeOrders) take(ctx context.Context, pending *int, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := actor.FromContext(ctx); ok {
		f.actors = append(f.actors, a)
	}
	if f.failWith != nil {
		return 0, f.failWith
	}
	n := *pending
	if n > limit {
		n = limit
	}
	*pending -= n
	return n, nil
}

func (f *fakeOrders) CancelExpiredConfirmations(ctx context.Context, limit int) (int, error) {
	return f.take(ctx, &f.expired, limit)
}

func (f *fakeOrders) CompleteDelivered(ctx context.Context, limit int) (int, error) {
	return f.take(ctx, &f.delivered, limit)
}

type fakeQuota struct{ due int64 }

func (f *fakeQuota) ExpireSubscriptions(_ context.Context, limit int) (int64, error) {
	n := f.due
	if n > int64(limit) {
		n = int64(limit)
	}
	f.due -= n
	return n, nil
}

type fakeRedeliverer struct {
	calls  int
	cutoff time.Time
	rows   int
}

func (f *fakeRedeliverer) Redeliver(_ context.Context, olderThan time.Time, limit int) (int, error) {
	f.calls++
	f.cutoff = olderThan
	if f.rows > limit {
		return limit, nil
	}
	return f.rows, nil
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *fakeOrders, *fakeQuota, *fakeRedeliverer, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	orders := &fakeOrders{}
	quota := &fakeQuota{}
	redeliverer := &fakeRedeliverer{}
	s := &Scheduler{
		log:         zap.NewNop(),
		cfg:         cfg.withDefaults(),
		genID:       node,
		clock:       fc,
		orders:      orders,
		quota:       quota,
		redeliverer: redeliverer,
	}
	return s, orders, quota, redeliverer, fc
}

func TestRunOnceDrainsSweeps(t *testing.T) {
	s, orders, quota, redeliverer, fc := newTestScheduler(t, Config{BatchSize: 2, RedeliverAfter: time.Minute})
	orders.expired = 5
	orders.delivered = 3
	quota.due = 1
	redeliverer.rows = 7

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Zero(t, orders.expired)
	assert.Zero(t, orders.delivered)
	assert.Zero(t, quota.due)
	assert.Equal(t, 1, redeliverer.calls, "redelivery runs one batch per tick")
	assert.Equal(t, fc.Now().Add(-time.Minute), redeliverer.cutoff)

	require.NotEmpty(t, orders.actors)
	for _, a := range orders.actors {
		assert.Equal(t, actor.TypeSystem, a.Type)
	}
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	s, orders, _, redeliverer, _ := newTestScheduler(t, Config{EnabledJobs: []string{" AUTO_CANCEL_UNCONFIRMED "}})
	orders.expired = 1
	orders.delivered = 1

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, orders.expired)
	assert.Equal(t, 1, orders.delivered)
	assert.Zero(t, redeliverer.calls)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	s, orders, quota, _, _ := newTestScheduler(t, Config{})
	boom := errors.New("boom")
	orders.failWith = boom
	quota.due = 2

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobAutoCancelUnconfirmed)
	assert.Contains(t, err.Error(), JobAutoCompleteDelivered)
	assert.Zero(t, quota.due, "a failing job does not block the others")
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "pasarku",
		Environment: "test",
	})

	s, _, _, _, _ := newTestScheduler(t, Config{})
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "pasarku", "env": "test", "job": "timeout_job"}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "pasarku_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "pasarku",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "pasarku_scheduler_job_errors_total", errorLabels))
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, orders, _, _, _ := newTestScheduler(t, Config{EnabledJobs: []string{JobAutoCancelUnconfirmed}})
	s.locker = NewLocker(client)
	orders.expired = 1

	other := NewLocker(client)
	token, ok, err := other.TryLock(context.Background(), "pasarku:scheduler:"+JobAutoCancelUnconfirmed, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, orders.expired, "another instance holds the job")

	require.NoError(t, other.Release(context.Background(), "pasarku:scheduler:"+JobAutoCancelUnconfirmed, token))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, orders.expired)
	assert.False(t, mr.Exists("pasarku:scheduler:"+JobAutoCancelUnconfirmed), "lock released after the run")
}

func TestLockerReleaseOnlyByOwner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "someone-else"))
	assert.True(t, mr.Exists("k"))
	require.NoError(t, locker.Release(ctx, "k", token))
	assert.False(t, mr.Exists("k"))

	assert.Nil(t, NewLocker(nil))
	_, _, err = locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
