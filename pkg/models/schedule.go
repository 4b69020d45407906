package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule triggers runs of a workflow on a cron expression.
type Schedule struct {
	ID string `json:"id" validate:"required"`

	WorkflowID string `json:"workflow_id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday)
	// or a descriptor such as @hourly.
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is the precomputed next execution time.
	NextDueAt time.Time `json:"next_due_at"`

	Active bool `json:"active"`
}

// NewSchedule creates a Schedule with the next execution time calculated from now.
func NewSchedule(id, workflowID, cronExpression string) (*Schedule, error) {
	schedule := &Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		Active:         true,
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := schedule.Advance(time.Now().UTC()); err != nil {
		return nil, err
	}

	return schedule, nil
}

// ParseSchedule parses the "<workflow-id>=<cron expression>" form used on the command line.
func ParseSchedule(value string) (*Schedule, error) {
	workflowID, expression, ok := strings.Cut(value, "=")
	if !ok {
		return nil, fmt.Errorf("%w: expected <workflow-id>=<cron>, got %q", ErrInvalidSchedule, value)
	}

	workflowID = strings.TrimSpace(workflowID)

	return NewSchedule("schedule-"+workflowID, workflowID, strings.TrimSpace(expression))
}

// Advance computes the next execution time after referenceTime.
func (s *Schedule) Advance(referenceTime time.Time) error {
	cronSchedule, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return nil
}
