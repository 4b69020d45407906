package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canvasflow/canvasflow/pkg/cmd"
	"github.com/canvasflow/canvasflow/pkg/events"
	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/triggers/schedule"
)

const stopTimeout = 10 * time.Second

// Scheduler starts runs of stored workflows on cron schedules and logs how they end.
type Scheduler struct {
	logger    *slog.Logger
	engine    *cmd.Engine
	schedules []*models.Schedule
	trigger   *schedule.Trigger

	completed atomic.Int64
	failed    atomic.Int64
}

// NewScheduler parses every "<workflow-id>=<cron>" value. request carries the run options.
func NewScheduler(
	logger *slog.Logger,
	engine *cmd.Engine,
	request models.ExecutionRequest,
	values []string,
) (*Scheduler, error) {
	schedules := make([]*models.Schedule, 0, len(values))

	for _, value := range values {
		s, err := models.ParseSchedule(value)
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, s)
	}

	trigger, err := schedule.NewTrigger(logger, engine.Runs, request, schedules...)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		logger:    logger,
		engine:    engine,
		schedules: schedules,
		trigger:   trigger,
	}, nil
}

// Run checks that every scheduled workflow exists and validates, then fires schedules
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, sched := range s.schedules {
		if _, err := s.engine.Workflows.Validate(ctx, sched.WorkflowID); err != nil {
			return fmt.Errorf("schedule %s: %w", sched.ID, err)
		}
	}

	if err := s.engine.EventBus.Handle(events.RunCompletedEvent, s.onRunCompleted); err != nil {
		return fmt.Errorf("failed to register run.completed handler: %w", err)
	}

	if err := s.engine.EventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	if err := s.trigger.Start(ctx); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Scheduler started", "schedules", len(s.schedules))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	err := s.trigger.Stop(stopCtx)

	s.logger.Info("Scheduler stopped",
		"runs_completed", s.completed.Load(),
		"runs_failed", s.failed.Load())

	return err
}

// Completed returns how many scheduled runs have finished.
func (s *Scheduler) Completed() int64 {
	return s.completed.Load()
}

func (s *Scheduler) onRunCompleted(ctx context.Context, event any) error {
	completed, ok := event.(*events.RunCompleted)
	if !ok {
		return nil
	}

	s.completed.Add(1)

	logger := s.logger.With(
		"workflow_id", completed.WorkflowID,
		"run_id", completed.RunID,
		"outcome", completed.Outcome,
		"duration_ms", completed.DurationMs,
	)

	if completed.Outcome == models.RunOutcomeSucceeded {
		logger.InfoContext(ctx, "Scheduled run completed")

		return nil
	}

	s.failed.Add(1)
	logger.WarnContext(ctx, "Scheduled run did not fully succeed", "cancelled", completed.Cancelled)

	return nil
}
