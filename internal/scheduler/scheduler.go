// Package scheduler triggers the rotate-all workflow once a day at a
// jittered time.
//
// The [Scheduler] is a two-state machine, Inactive and Armed. [Scheduler.Activate]
// computes the next run as the next future occurrence of a time of day plus a
// uniformly random offset of up to the configured jitter, arms the scheduler
// and starts the background loop if it is not already running. The loop polls
// an injected clock; when the next run is due it invokes the trigger, logs any
// failure, and schedules the following day.
//
// All state lives behind a single mutex so status queries never observe a
// half-applied transition.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"sessionrotor/internal/history"
)

// DefaultPollInterval is how often the loop compares the clock to the next run.
const DefaultPollInterval = 30 * time.Second

// TimeOfDayLayout is the accepted format for [ParseTimeOfDay].
const TimeOfDayLayout = "15:04"

var (
	// ErrInvalidTimeOfDay is returned for a time of day that is not HH:MM.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")

	// ErrInvalidJitter is returned for a negative jitter.
	ErrInvalidJitter = errors.New("invalid jitter")
)

// Trigger runs the scheduled workflow.
type Trigger func(ctx context.Context) error

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" in 24-hour notation.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(TimeOfDayLayout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String renders the time of day as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the occurrence of t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// Status is a consistent snapshot of the scheduler state.
type Status struct {
	Active        bool                `json:"active"`
	NextRun       *time.Time          `json:"next_run"`
	LastRun       *time.Time          `json:"last_run"`
	TimeOfDay     string              `json:"time,omitempty"`
	JitterMinutes int                 `json:"jitter_minutes"`
	History       []history.RunRecord `json:"history"`
}

// Scheduler owns the schedule state and the background loop.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	trigger  Trigger
	ledger   *history.Ledger
	log      logrus.FieldLogger
	randN    func(n int64) int64

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	active  bool
	tod     TimeOfDay
	jitter  int
	base    time.Time
	nextRun *time.Time
	lastRun *time.Time
	looping bool
	done    chan struct{}
}

// New creates an inactive scheduler. A zero interval selects
// [DefaultPollInterval]. ledger supplies the history reported by [Scheduler.Status].
func New(clock clockwork.Clock, interval time.Duration, trigger Trigger, ledger *history.Ledger, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:    clock,
		interval: interval,
		trigger:  trigger,
		ledger:   ledger,
		log:      log,
		randN:    rand.Int64N,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetRandom replaces the random source. randN must return a value in [0, n).
func (s *Scheduler) SetRandom(randN func(n int64) int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.randN = randN
}

// Activate arms the scheduler for timeOfDay ("HH:MM") with a jitter of up to
// jitterMinutes either side. Invalid input leaves the state unchanged.
// Calling Activate while armed reschedules without starting a second loop.
func (s *Scheduler) Activate(timeOfDay string, jitterMinutes int) error {
	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return err
	}
	if jitterMinutes < 0 {
		return fmt.Errorf("%w: %d minutes", ErrInvalidJitter, jitterMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler is closed")
	}

	s.active = true
	s.tod = tod
	s.jitter = jitterMinutes
	s.base = time.Time{}
	s.arm(s.clock.Now())

	s.log.WithFields(logrus.Fields{
		"time":     tod.String(),
		"jitter":   jitterMinutes,
		"next_run": s.nextRun.Format(time.RFC3339),
	}).Info("Scheduler activated")

	if !s.looping {
		s.looping = true
		s.done = make(chan struct{})
		go s.loop(s.done)
	}
	return nil
}

// Deactivate disarms the scheduler. The loop exits on its next poll.
func (s *Scheduler) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.nextRun = nil
	s.base = time.Time{}
	s.log.Info("Scheduler deactivated")
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Active:        s.active,
		NextRun:       copyTime(s.nextRun),
		LastRun:       copyTime(s.lastRun),
		JitterMinutes: s.jitter,
	}
	if s.active {
		st.TimeOfDay = s.tod.String()
	}
	s.mu.Unlock()

	st.History = []history.RunRecord{}
	if s.ledger != nil {
		st.History = s.ledger.List()
	}
	return st
}

// Close stops the loop and waits for it to exit. A run in progress is not
// cancelled; Close returns once it has finished.
func (s *Scheduler) Close() {
	s.cancel()

	s.mu.Lock()
	done := s.done
	looping := s.looping
	s.mu.Unlock()

	if looping && done != nil {
		<-done
	}
}

// arm computes the next base and next run. s.mu must be held.
//
// The base is the next occurrence of the time of day strictly after now and
// strictly after the base that last fired, so a run that fired early because
// of negative jitter cannot fire again for the same day.
func (s *Scheduler) arm(now time.Time) {
	base := s.tod.On(now)
	if !base.After(now) {
		base = base.AddDate(0, 0, 1)
	}
	for !s.base.IsZero() && !base.After(s.base) {
		base = base.AddDate(0, 0, 1)
	}
	s.base = base

	next := base.Add(s.offset())
	s.nextRun = &next
}

// offset draws a uniform offset in [-jitter, +jitter] at second granularity.
func (s *Scheduler) offset() time.Duration {
	if s.jitter == 0 {
		return 0
	}
	span := int64(s.jitter) * 60
	return time.Duration(s.randN(2*span+1)-span) * time.Second
}

func (s *Scheduler) loop(done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if !s.poll() {
				return
			}
		case <-s.ctx.Done():
			s.mu.Lock()
			s.looping = false
			s.mu.Unlock()
			return
		}
	}
}

// poll fires the trigger when the next run is due. It returns false when the
// scheduler is no longer active and the loop should exit.
func (s *Scheduler) poll() bool {
	s.mu.Lock()
	if !s.active {
		s.looping = false
		s.mu.Unlock()
		s.log.Debug("Scheduler loop stopped")
		return false
	}
	now := s.clock.Now()
	if s.nextRun == nil || now.Before(*s.nextRun) {
		s.mu.Unlock()
		return true
	}
	fired := s.base
	last := now
	s.lastRun = &last
	s.mu.Unlock()

	s.log.WithField("base", fired.Format(time.RFC3339)).Info("Scheduled run starting")
	// A started run proceeds to completion even when Close is called.
	if err := s.trigger(context.WithoutCancel(s.ctx)); err != nil {
		s.log.WithError(err).Error("Scheduled run failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Activate or Deactivate during the run takes precedence.
	if s.active && s.base.Equal(fired) {
		s.arm(s.clock.Now())
		s.log.WithField("next_run", s.nextRun.Format(time.RFC3339)).Info("Next scheduled run")
	}
	return true
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
