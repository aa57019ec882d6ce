// Package scheduler runs periodic housekeeping next to the HTTP server.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"trekreg/internal/admin"
	"trekreg/internal/model"
)

const jobTimeout = 30 * time.Second

type Store interface {
	GetAll(ctx context.Context) ([]model.Registration, error)
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

type Scheduler struct {
	store Store
	log   *zerolog.Logger
	loc   *time.Location
	now   func() time.Time
	sched gocron.Scheduler
}

func New(store Store, loc *time.Location, log *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{store: store, log: log, loc: loc, now: time.Now}
}

// Start registers the session purge every purgeEvery and a daily stats
// line at statsAt ("HH:MM" in the scheduler's location).
func (s *Scheduler) Start(purgeEvery time.Duration, statsAt string) error {
	hour, minute, err := parseClock(statsAt)
	if err != nil {
		return err
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(s.loc))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(purgeEvery),
		gocron.NewTask(s.run, "purge_sessions", s.PurgeSessions),
		gocron.WithName("purge_sessions"),
	); err != nil {
		return fmt.Errorf("failed to schedule session purge: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(s.run, "daily_stats", s.LogStats),
		gocron.WithName("daily_stats"),
	); err != nil {
		return fmt.Errorf("failed to schedule daily stats: %w", err)
	}

	sched.Start()
	s.sched = sched
	s.log.Info().Dur("purge_every", purgeEvery).Str("stats_at", statsAt).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.sched == nil {
		return
	}
	if err := s.sched.Shutdown(); err != nil {
		s.log.Warn().Err(err).Msg("scheduler shutdown failed")
	}
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := job(ctx); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
	}
}

func (s *Scheduler) PurgeSessions(ctx context.Context) error {
	n, err := s.store.PurgeExpiredSessions(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("expired admin sessions purged")
	}
	return nil
}

func (s *Scheduler) LogStats(ctx context.Context) error {
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}
	st := admin.ComputeStats(rows, s.now().In(s.loc))
	s.log.Info().
		Int("total", st.Total).
		Int("completed", st.Completed).
		Int("pending", st.Pending).
		Int("failed", st.Failed).
		Int("registered_today", st.RegisteredToday).
		Msg("daily registration stats")
	return nil
}

func parseClock(v string) (uint, uint, error) {
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", v)
	}
	h, err := strconv.ParseUint(hh, 10, 8)
	if err != nil || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.ParseUint(mm, 10, 8)
	if err != nil || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return uint(h), uint(m), nil
}
