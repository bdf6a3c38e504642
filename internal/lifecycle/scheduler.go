// Package lifecycle drives formed table sessions through their timed state
// machine: Loading --(delay elapses)--> Active --(duration elapses)--> Closed.
// Both transitions are one-shot timers, not polling.
package lifecycle

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/monitoring"
	"github.com/kynortleon/TableHop/internal/queue"
)

// Announcer is the slice of the broadcaster the scheduler needs.
type Announcer interface {
	PublishStageStarted(sessionID string, seconds int)
	PublishSessionClosed(sessionID string)
}

// timerPair holds the two one-shot timers for one tracked session. The
// close timer is only ever created from inside the delay timer's callback,
// so the two never overlap for the same session.
type timerPair struct {
	delay *time.Timer
	close *time.Timer
}

// Scheduler owns every pending session timer. Exactly one Scheduler runs
// per process; the entry point constructs it once and stops it at shutdown.
// All methods are safe for concurrent use, and timers for different
// sessions fire concurrently.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*timerPair
	stopped bool

	sessions   queue.SessionStore
	events     Announcer
	delay      time.Duration
	active     time.Duration
	minMinutes int
	logger     *zap.Logger

	// now supplies transition timestamps; overridable in tests.
	now func() time.Time
}

// NewScheduler creates a Scheduler.
//
// Precondition: sessions, events, and logger must be non-nil; delay and
// active must be > 0; minMinutes must be >= 0.
func NewScheduler(sessions queue.SessionStore, events Announcer, delay, active time.Duration, minMinutes int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timers:     make(map[string]*timerPair),
		sessions:   sessions,
		events:     events,
		delay:      delay,
		active:     active,
		minMinutes: minMinutes,
		logger:     logger,
		now:        time.Now,
	}
}

// Track takes ownership of a freshly formed session: it announces the delay
// countdown and schedules the delay timer. Re-tracking a session replaces
// any timers it already had. Tracking after Stop is a no-op.
func (s *Scheduler) Track(sess *queue.TableSession) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if old, ok := s.timers[sess.ID]; ok {
		old.stop()
	}
	id := sess.ID
	tp := &timerPair{}
	tp.delay = time.AfterFunc(s.delay, func() { s.activate(id) })
	s.timers[id] = tp
	s.mu.Unlock()

	s.events.PublishStageStarted(id, int(s.delay/time.Second))
	s.logger.Info("tracking table session",
		zap.String("session", id),
		zap.Duration("delay", s.delay),
	)
}

// Stop cancels every pending timer for every tracked session. No partial
// persistence is attempted for cancelled timers. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for id, tp := range s.timers {
		tp.stop()
		delete(s.timers, id)
	}
	s.logger.Info("lifecycle scheduler stopped")
}

// TrackedCount returns the number of sessions with pending timers.
func (s *Scheduler) TrackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// activate runs when the delay timer fires: persist Active with StartedAt,
// then schedule the close timer. The close timer is scheduled only after
// the status write succeeds.
func (s *Scheduler) activate(id string) {
	startedAt := s.now()
	status := queue.SessionActive
	_, err := s.sessions.Update(context.Background(), id, queue.SessionUpdate{
		Status:    &status,
		StartedAt: &startedAt,
	})
	if err != nil {
		s.logger.Error("activating table session", zap.String("session", id), zap.Error(err))
		// The session leaves tracking here, so it no longer counts as open.
		s.forget(id)
		monitoring.SessionClosed()
		return
	}

	s.mu.Lock()
	tp, ok := s.timers[id]
	if s.stopped || !ok {
		s.mu.Unlock()
		return
	}
	tp.close = time.AfterFunc(s.active, func() { s.close(id, startedAt) })
	s.mu.Unlock()

	s.logger.Info("table session active",
		zap.String("session", id),
		zap.Duration("duration", s.active),
	)
}

// close runs when the duration timer fires: persist Closed with ClosedAt
// and the recorded duration, floored at the configured minimum.
func (s *Scheduler) close(id string, startedAt time.Time) {
	closedAt := s.now()
	minutes := int(math.Round(closedAt.Sub(startedAt).Minutes()))
	if minutes < s.minMinutes {
		minutes = s.minMinutes
	}
	status := queue.SessionClosed
	_, err := s.sessions.Update(context.Background(), id, queue.SessionUpdate{
		Status:          &status,
		ClosedAt:        &closedAt,
		DurationMinutes: &minutes,
	})
	s.forget(id)
	monitoring.SessionClosed()
	if err != nil {
		s.logger.Error("closing table session", zap.String("session", id), zap.Error(err))
		return
	}

	s.events.PublishSessionClosed(id)
	s.logger.Info("table session closed",
		zap.String("session", id),
		zap.Int("duration_minutes", minutes),
	)
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()
}

func (tp *timerPair) stop() {
	if tp.delay != nil {
		tp.delay.Stop()
	}
	if tp.close != nil {
		tp.close.Stop()
	}
}
