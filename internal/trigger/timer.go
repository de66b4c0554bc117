package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jymapp/jym/internal/models"
	"github.com/jymapp/jym/internal/util"
)

// Timer schedules one-shot callbacks. Implementations must tolerate Cancel
// on unknown ids.
type Timer interface {
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	ScheduleAt(when time.Time, fn func()) (string, error)
	Cancel(id string) error
	ListActive() []models.TimerInfo
	Stop()
}

type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	firesAt     time.Time
}

// SimpleTimer implements Timer with time.AfterFunc. Timers live only in
// this process; durability comes from the trigger store, which is replayed
// on startup.
type SimpleTimer struct {
	mu     sync.RWMutex
	timers map[string]*timerEntry
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{timers: make(map[string]*timerEntry)}
}

// ScheduleAfter schedules fn to run after the delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	id := util.GenerateTimerID()
	now := time.Now()

	timer := time.AfterFunc(delay, func() {
		fn()
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
	})

	t.mu.Lock()
	t.timers[id] = &timerEntry{timer: timer, scheduledAt: now, firesAt: now.Add(delay)}
	t.mu.Unlock()

	slog.Debug("SimpleTimer.ScheduleAfter: timer set", "id", id, "delay", delay)
	return id, nil
}

// ScheduleAt schedules fn to run at the given time. A time in the past
// runs fn immediately in its own goroutine.
func (t *SimpleTimer) ScheduleAt(when time.Time, fn func()) (string, error) {
	delay := time.Until(when)
	if delay < 0 {
		slog.Warn("SimpleTimer.ScheduleAt: time in the past, executing immediately", "when", when)
		go fn()
		return "", nil
	}
	return t.ScheduleAfter(delay, fn)
}

// Cancel stops a scheduled timer. Cancelling an unknown id is a no-op.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, exists := t.timers[id]; exists {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer.Cancel: timer stopped", "id", id)
	}
	return nil
}

// ListActive returns information about all pending timers.
func (t *SimpleTimer) ListActive() []models.TimerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]models.TimerInfo, 0, len(t.timers))
	for id, entry := range t.timers {
		result = append(result, models.TimerInfo{
			ID:          id,
			ScheduledAt: entry.scheduledAt,
			FiresAt:     entry.firesAt,
		})
	}
	return result
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	t.timers = make(map[string]*timerEntry)
	slog.Info("SimpleTimer.Stop: all timers stopped")
}
