package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 5, 1, 14, 30, 0, 0, time.UTC)

	days, ok := DaysUntil("2026-05-04", now)
	assert.True(t, ok)
	assert.Equal(t, 3, days)

	// same day counts as 0 regardless of the time of day
	days, ok = DaysUntil("2026-05-01", now)
	assert.True(t, ok)
	assert.Equal(t, 0, days)

	// already expired goes negative
	days, ok = DaysUntil("2026-04-28", now)
	assert.True(t, ok)
	assert.Equal(t, -3, days)
}

func TestDaysUntilUnknownDate(t *testing.T) {
	now := time.Now()

	_, ok := DaysUntil(UnknownExpiration, now)
	assert.False(t, ok)

	_, ok = DaysUntil("", now)
	assert.False(t, ok)

	_, ok = DaysUntil("4-mai-2026", now)
	assert.False(t, ok)
}
