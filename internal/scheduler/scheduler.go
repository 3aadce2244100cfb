package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/clock"
	"github.com/smallbiznis/pasarku/internal/events"
	obsmetrics "github.com/smallbiznis/pasarku/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type OrderSweeper interface {
	CancelExpiredConfirmations(ctx context.Context, limit int) (int, error)
	CompleteDelivered(ctx context.Context, limit int) (int, error)
}

type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context, limit int) (int64, error)
}

type OutboxRedeliverer interface {
	Redeliver(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	OrderSvc   orderdomain.Service
	QuotaSvc   quotadomain.Service
	Dispatcher *events.Dispatcher
	Locker     *Locker `optional:"true"`
	Config     Config  `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	orders      OrderSweeper
	quota       SubscriptionExpirer
	redeliverer OutboxRedeliverer
	locker      *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.OrderSvc == nil || p.QuotaSvc == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		orders:      p.OrderSvc,
		quota:       p.QuotaSvc,
		redeliverer: p.Dispatcher,
		locker:      p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	schedMetrics := obsmetrics.Scheduler()

	if s.locker != nil {
		key := "pasarku:scheduler:" + name
		token, ok, err := s.locker.TryLock(parent, key, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("scheduler lock unavailable, running without it", zap.String("job", name), zap.Error(err))
		} else if !ok {
			schedMetrics.IncBatchDeferred(name, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(parent), key, token); err != nil {
					s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = actor.WithActor(ctx, actor.System())
	ctx, run := s.newJobRun(ctx, name, s.cfg.BatchSize)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next run picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context, *jobRun) error
	}{
		{JobAutoCancelUnconfirmed, s.AutoCancelUnconfirmedJob},
		{JobAutoCompleteDelivered, s.AutoCompleteDeliveredJob},
		{JobExpireSubscriptions, s.ExpireSubscriptionsJob},
		{JobOutboxRedeliver, s.OutboxRedeliverJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// AutoCancelUnconfirmedJob cancels orders whose confirmation window elapsed.
func (s *Scheduler) AutoCancelUnconfirmedJob(ctx context.Context, run *jobRun) error {
	return s.drain(ctx, run, "orders", s.orders.CancelExpiredConfirmations)
}

// AutoCompleteDeliveredJob closes orders the buyer never confirmed.
func (s *Scheduler) AutoCompleteDeliveredJob(ctx context.Context, run *jobRun) error {
	return s.drain(ctx, run, "orders", s.orders.CompleteDelivered)
}

func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context, run *jobRun) error {
	return s.drain(ctx, run, "subscriptions", func(ctx context.Context, limit int) (int, error) {
		n, err := s.quota.ExpireSubscriptions(ctx, limit)
		return int(n), err
	})
}

// OutboxRedeliverJob runs a single batch. Rows that fail again stay
// undelivered, so draining would spin while the broker is down.
func (s *Scheduler) OutboxRedeliverJob(ctx context.Context, run *jobRun) error {
	cutoff := s.clock.Now().Add(-s.cfg.RedeliverAfter)
	n, err := s.redeliverer.Redeliver(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.outbox.redeliver.failed", err)
		return err
	}
	run.AddProcessed(n)
	obsmetrics.Scheduler().AddBatchProcessed(run.job, "order_events", n)
	return nil
}

// drain repeats a batch until it comes back empty.
func (s *Scheduler) drain(ctx context.Context, run *jobRun, resource string, batch func(context.Context, int) (int, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := batch(ctx, s.cfg.BatchSize)
		run.AddProcessed(n)
		obsmetrics.Scheduler().AddBatchProcessed(run.job, resource, n)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.batch.failed", err)
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
