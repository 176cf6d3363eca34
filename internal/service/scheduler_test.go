package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"media-tracker/internal/timeutil"
)

func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	timeutil.SetNowFunc(func() time.Time { return at })
	t.Cleanup(func() { timeutil.SetNowFunc(nil) })
}

func TestCalculateNextDigestTimeLaterToday(t *testing.T) {
	freezeTime(t, time.Date(2024, 6, 3, 6, 30, 0, 0, time.UTC)) // Monday 06:30

	s := NewScheduler(nil, nil, "08:00")
	next := s.calculateNextDigestTime()

	assert.Equal(t, time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC), next)
}

func TestCalculateNextDigestTimeRollsToTomorrow(t *testing.T) {
	freezeTime(t, time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC))

	s := NewScheduler(nil, nil, "08:00")
	next := s.calculateNextDigestTime()

	assert.Equal(t, time.Date(2024, 6, 4, 8, 0, 0, 0, time.UTC), next)
}

func TestCalculateNextDigestTimeDefaultsOnEmptyConfig(t *testing.T) {
	freezeTime(t, time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC))

	s := NewScheduler(nil, nil, "")
	next := s.calculateNextDigestTime()

	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestCalculateNextBackupTime(t *testing.T) {
	// Wednesday: next Sunday is June 9th.
	freezeTime(t, time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))

	s := NewScheduler(nil, nil, "08:00")
	next := s.calculateNextBackupTime()

	assert.Equal(t, time.Date(2024, 6, 9, 3, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestCalculateNextBackupTimeSundayBeforeThree(t *testing.T) {
	freezeTime(t, time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC)) // Sunday 01:00

	s := NewScheduler(nil, nil, "08:00")
	next := s.calculateNextBackupTime()

	assert.Equal(t, time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestCalculateNextBackupTimeSundayAfterThree(t *testing.T) {
	freezeTime(t, time.Date(2024, 6, 2, 4, 0, 0, 0, time.UTC)) // Sunday 04:00

	s := NewScheduler(nil, nil, "08:00")
	next := s.calculateNextBackupTime()

	assert.Equal(t, time.Date(2024, 6, 9, 3, 0, 0, 0, time.UTC), next)
}
