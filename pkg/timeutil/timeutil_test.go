package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsWeekend(t *testing.T) {
	saturday := time.Date(2024, 3, 9, 12, 0, 0, 0, ParisTZ)
	sunday := time.Date(2024, 3, 10, 12, 0, 0, 0, ParisTZ)
	monday := time.Date(2024, 3, 11, 12, 0, 0, 0, ParisTZ)

	assert.True(t, IsWeekend(saturday))
	assert.True(t, IsWeekend(sunday))
	assert.False(t, IsWeekend(monday))
}

func TestIsSameDay(t *testing.T) {
	morning := time.Date(2024, 3, 11, 8, 0, 0, 0, ParisTZ)
	evening := time.Date(2024, 3, 11, 23, 59, 0, 0, ParisTZ)
	nextDay := time.Date(2024, 3, 12, 0, 0, 0, 0, ParisTZ)

	assert.True(t, IsSameDay(morning, evening))
	assert.False(t, IsSameDay(evening, nextDay))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 11, 10, 0, 0, 0, ParisTZ)
	b := time.Date(2024, 3, 19, 9, 0, 0, 0, ParisTZ)
	c := time.Date(2024, 3, 18, 12, 0, 0, 0, ParisTZ)

	// 7.96 days rounds up to 8, in either argument order; 7.08 rounds down.
	assert.Equal(t, 8, DaysBetween(a, b))
	assert.Equal(t, 8, DaysBetween(b, a))
	assert.Equal(t, 7, DaysBetween(a, c))
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestStartOfDay(t *testing.T) {
	at := time.Date(2024, 3, 11, 17, 42, 13, 0, ParisTZ)
	start := StartOfDay(at)

	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 0, start.Minute())
	assert.Equal(t, at.Day(), start.Day())
	assert.Equal(t, ParisTZ, start.Location())
}

func TestFormatDateStr(t *testing.T) {
	at := time.Date(2024, 3, 11, 17, 42, 0, 0, ParisTZ)
	assert.Equal(t, "2024-03-11", FormatDateStr(at))
}
