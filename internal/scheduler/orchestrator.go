package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

// TriggerFunc fires when a schedule's cron expression matches. The
// orchestrator does not know how runs are created or enqueued; the
// composition root injects that.
type TriggerFunc func(schedule models.Schedule)

// JobID names the registered cron job for a schedule.
func JobID(scheduleID int64) string {
	return fmt.Sprintf("schedule_%d", scheduleID)
}

// Job describes one registered schedule for inspection endpoints.
type Job struct {
	ID      string    `json:"id"`
	NextRun time.Time `json:"next_run"`
}

// Orchestrator keeps the in-process cron runner in sync with the
// schedules table. Sync replaces any existing registration for the same
// schedule, so it is idempotent.
type Orchestrator struct {
	cron      *cron.Cron
	schedules repository.ScheduleRepository
	trigger   TriggerFunc
	logger    zerolog.Logger

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

func NewOrchestrator(schedules repository.ScheduleRepository, trigger TriggerFunc, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cron:      cron.New(),
		schedules: schedules,
		trigger:   trigger,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		entries:   make(map[int64]cron.EntryID),
	}
}

// ValidateCron checks a five-field cron expression and timezone without
// registering anything. Handlers call it before persisting a schedule.
func ValidateCron(expr, timezone string) error {
	if len(strings.Fields(expr)) != 5 {
		return errors.Errorf("cron expression must have five fields, got %q", expr)
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return errors.Wrapf(err, "invalid timezone %q", timezone)
		}
	}
	return nil
}

// Sync registers or replaces the cron job for a schedule. Inactive
// schedules are removed.
func (o *Orchestrator) Sync(schedule models.Schedule) error {
	if !schedule.IsActive {
		o.Remove(schedule.ID)
		return nil
	}
	if err := ValidateCron(schedule.CronExpression, schedule.Timezone); err != nil {
		return err
	}

	spec := schedule.CronExpression
	if schedule.Timezone != "" {
		spec = "CRON_TZ=" + schedule.Timezone + " " + spec
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if entryID, ok := o.entries[schedule.ID]; ok {
		o.cron.Remove(entryID)
		delete(o.entries, schedule.ID)
	}

	sched := schedule
	entryID, err := o.cron.AddFunc(spec, func() { o.trigger(sched) })
	if err != nil {
		return errors.Wrapf(err, "failed to register schedule %d", schedule.ID)
	}
	o.entries[schedule.ID] = entryID

	o.logger.Info().
		Str("job_id", JobID(schedule.ID)).
		Str("cron", schedule.CronExpression).
		Str("timezone", schedule.Timezone).
		Msg("Schedule registered")
	return nil
}

// Remove unregisters a schedule's cron job if present.
func (o *Orchestrator) Remove(scheduleID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entryID, ok := o.entries[scheduleID]
	if !ok {
		return
	}
	o.cron.Remove(entryID)
	delete(o.entries, scheduleID)
	o.logger.Info().Str("job_id", JobID(scheduleID)).Msg("Schedule removed")
}

// SyncAll rebuilds the job table from every active schedule in the
// database and returns the count actually registered. Schedules with
// malformed expressions are skipped and logged, never fatal.
func (o *Orchestrator) SyncAll() (int, error) {
	schedules, err := o.schedules.ListActive()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active schedules")
	}
	registered := 0
	for _, s := range schedules {
		if err := o.Sync(s); err != nil {
			o.logger.Error().Err(err).
				Str("job_id", JobID(s.ID)).
				Msg("Failed to register schedule")
			continue
		}
		registered++
	}
	o.logger.Info().
		Int("registered", registered).
		Int("skipped", len(schedules)-registered).
		Msg("Schedules synced")
	return registered, nil
}

// GetJob reports the registration for a schedule, or false when none
// exists.
func (o *Orchestrator) GetJob(scheduleID int64) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entryID, ok := o.entries[scheduleID]
	if !ok {
		return Job{}, false
	}
	entry := o.cron.Entry(entryID)
	return Job{ID: JobID(scheduleID), NextRun: entry.Next}, true
}

// Start begins firing cron jobs in a background goroutine.
func (o *Orchestrator) Start() {
	o.cron.Start()
	o.logger.Info().Msg("Scheduler started")
}

// Shutdown stops the cron runner and waits for in-flight trigger
// callbacks to return.
func (o *Orchestrator) Shutdown() {
	ctx := o.cron.Stop()
	<-ctx.Done()
	o.logger.Info().Msg("Scheduler stopped")
}
