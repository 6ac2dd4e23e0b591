package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayNormalizesToMidnightUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// Late evening in New York is already the next day in UTC.
	late := time.Date(2025, 3, 10, 22, 30, 0, 0, loc)
	norm := Day(late)
	assert.Equal(t, "2025-03-11", norm.Format(DayLayout))
	assert.Equal(t, time.UTC, norm.Location())
	assert.Zero(t, norm.Hour())
	assert.Zero(t, norm.Minute())
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())

	_, err = ParseDay("02/06/2025")
	assert.Error(t, err)
}

func TestIsWorkingDay(t *testing.T) {
	holidays := map[string]bool{"2025-01-01": true}

	wednesday, _ := ParseDay("2025-01-08")
	saturday, _ := ParseDay("2025-01-04")
	sunday, _ := ParseDay("2025-01-05")
	newYear, _ := ParseDay("2025-01-01")

	assert.True(t, IsWorkingDay(wednesday, holidays))
	assert.False(t, IsWorkingDay(saturday, holidays))
	assert.False(t, IsWorkingDay(sunday, holidays))
	assert.False(t, IsWorkingDay(newYear, holidays))
	assert.True(t, IsWorkingDay(newYear, nil))
}
