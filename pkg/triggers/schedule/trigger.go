package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrNoSchedules is returned when a trigger is created without any schedule.
var ErrNoSchedules = errors.New("at least one schedule is required")

// Runner starts runs and reports on them. *services.Runs satisfies it.
type Runner interface {
	Start(ctx context.Context, req models.ExecutionRequest) (string, error)
	Get(ctx context.Context, runID string) (*models.RunRecord, error)
}

// Trigger starts a run of each scheduled workflow whenever its cron expression fires.
// A tick is skipped while the run started by the previous tick of the same schedule is
// still active.
type Trigger struct {
	runner   Runner
	request  models.ExecutionRequest
	logger   *slog.Logger
	cron     *cron.Cron
	mu       sync.Mutex
	entries  []*entry
	ctx      context.Context
	cancel   context.CancelFunc
	now      func() time.Time
	started  bool
	stopOnce sync.Once
}

type entry struct {
	schedule *models.Schedule
	lastRun  string
}

// NewTrigger validates every schedule. request carries the run options applied to each
// started run; its WorkflowID is replaced by the schedule's.
func NewTrigger(
	logger *slog.Logger,
	runner Runner,
	request models.ExecutionRequest,
	schedules ...*models.Schedule,
) (*Trigger, error) {
	if len(schedules) == 0 {
		return nil, ErrNoSchedules
	}

	entries := make([]*entry, 0, len(schedules))

	for _, s := range schedules {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
		}

		entries = append(entries, &entry{schedule: s})
	}

	return &Trigger{
		runner:  runner,
		request: request,
		logger:  logger.With("module", "schedule_trigger"),
		entries: entries,
		now:     time.Now,
	}, nil
}

// Start registers one cron job per active schedule and starts the cron loop. Runs are
// started with a context derived from ctx, so cancelling it stops new runs from starting.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(t.logger.Handler(), slog.LevelWarn))
	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))
	t.ctx, t.cancel = context.WithCancel(ctx)

	for _, e := range t.entries {
		if !e.schedule.Active {
			t.logger.Info("Schedule is disabled", "schedule_id", e.schedule.ID)

			continue
		}

		jobID, err := t.cron.AddFunc(e.schedule.CronExpression, func() { t.fire(t.ctx, e) })
		if err != nil {
			t.cancel()

			return fmt.Errorf("failed to add cron job for schedule %s: %w", e.schedule.ID, err)
		}

		t.logger.Info("Scheduled workflow",
			"schedule_id", e.schedule.ID,
			"workflow_id", e.schedule.WorkflowID,
			"cron", e.schedule.CronExpression,
			"next_due_at", e.schedule.NextDueAt,
			"job_id", jobID)
	}

	t.cron.Start()
	t.started = true

	return nil
}

// Stop halts the cron loop and waits for in-flight ticks or ctx, whichever ends first.
// Runs already started keep going; they belong to the runner.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	if !started {
		return nil
	}

	var done context.Context

	t.stopOnce.Do(func() {
		t.logger.Info("Stopping schedule trigger")
		done = t.cron.Stop()
		t.cancel()
	})

	if done == nil {
		return nil
	}

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedules returns a copy of the schedules with their next due times.
func (t *Trigger) Schedules() []models.Schedule {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Schedule, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e.schedule)
	}

	return out
}

func (t *Trigger) fire(ctx context.Context, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := t.logger.With("schedule_id", e.schedule.ID, "workflow_id", e.schedule.WorkflowID)

	if err := e.schedule.Advance(t.now().UTC()); err != nil {
		logger.Error("Failed to compute next due time", "error", err)
	}

	if e.lastRun != "" {
		record, err := t.runner.Get(ctx, e.lastRun)
		if err == nil && !record.Finished() {
			logger.Warn("Previous run still active, skipping tick", "run_id", e.lastRun)

			return
		}
	}

	req := t.request
	req.WorkflowID = e.schedule.WorkflowID

	runID, err := t.runner.Start(ctx, req)
	if err != nil {
		logger.Error("Failed to start scheduled run", "error", err)

		return
	}

	e.lastRun = runID
	logger.Info("Started scheduled run", "run_id", runID, "next_due_at", e.schedule.NextDueAt)
}
