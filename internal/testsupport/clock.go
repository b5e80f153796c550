// Package testsupport provides deterministic collaborators shared by tests.
package testsupport

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// RecordingClock implements clock.Clock without sleeping. Every wait fires
// immediately, advances Now by the requested duration, and is recorded.
type RecordingClock struct {
	mutex sync.Mutex
	now   time.Time
	waits []time.Duration
}

// NewRecordingClock constructs a clock starting at now.
func NewRecordingClock(now time.Time) *RecordingClock {
	return &RecordingClock{now: now}
}

// Now implements clock.Clock.
func (recordingClock *RecordingClock) Now() time.Time {
	recordingClock.mutex.Lock()
	defer recordingClock.mutex.Unlock()
	return recordingClock.now
}

// After implements clock.Clock.
func (recordingClock *RecordingClock) After(duration time.Duration) <-chan time.Time {
	firedAt := recordingClock.advance(duration)
	notification := make(chan time.Time, 1)
	notification <- firedAt
	return notification
}

// AfterFunc implements clock.Clock by running callback synchronously.
func (recordingClock *RecordingClock) AfterFunc(duration time.Duration, callback func()) clock.Timer {
	firedAt := recordingClock.advance(duration)
	callback()
	return newFiredTimer(firedAt)
}

// NewTimer implements clock.Clock.
func (recordingClock *RecordingClock) NewTimer(duration time.Duration) clock.Timer {
	return newFiredTimer(recordingClock.advance(duration))
}

// At implements clock.Clock by waiting until the requested instant.
func (recordingClock *RecordingClock) At(instant time.Time) <-chan time.Time {
	return recordingClock.After(recordingClock.until(instant))
}

// AtFunc implements clock.Clock by running callback synchronously.
func (recordingClock *RecordingClock) AtFunc(instant time.Time, callback func()) clock.Alarm {
	firedAt := recordingClock.advance(recordingClock.until(instant))
	callback()
	return newFiredAlarm(firedAt)
}

// NewAlarm implements clock.Clock.
func (recordingClock *RecordingClock) NewAlarm(instant time.Time) clock.Alarm {
	return newFiredAlarm(recordingClock.advance(recordingClock.until(instant)))
}

// Waits returns the recorded wait durations in order.
func (recordingClock *RecordingClock) Waits() []time.Duration {
	recordingClock.mutex.Lock()
	defer recordingClock.mutex.Unlock()
	return append([]time.Duration{}, recordingClock.waits...)
}

func (recordingClock *RecordingClock) until(instant time.Time) time.Duration {
	return instant.Sub(recordingClock.Now())
}

func (recordingClock *RecordingClock) advance(duration time.Duration) time.Time {
	recordingClock.mutex.Lock()
	defer recordingClock.mutex.Unlock()
	recordingClock.waits = append(recordingClock.waits, duration)
	if duration > 0 {
		recordingClock.now = recordingClock.now.Add(duration)
	}
	return recordingClock.now
}

type firedTimer struct {
	notification chan time.Time
}

func newFiredTimer(firedAt time.Time) *firedTimer {
	notification := make(chan time.Time, 1)
	notification <- firedAt
	return &firedTimer{notification: notification}
}

func (timer *firedTimer) Chan() <-chan time.Time {
	return timer.notification
}

func (timer *firedTimer) Reset(time.Duration) bool {
	return false
}

func (timer *firedTimer) Stop() bool {
	return false
}

type firedAlarm struct {
	notification chan time.Time
}

func newFiredAlarm(firedAt time.Time) *firedAlarm {
	notification := make(chan time.Time, 1)
	notification <- firedAt
	return &firedAlarm{notification: notification}
}

func (alarm *firedAlarm) Chan() <-chan time.Time {
	return alarm.notification
}

func (alarm *firedAlarm) Reset(time.Time) bool {
	return false
}

func (alarm *firedAlarm) Stop() bool {
	return false
}
