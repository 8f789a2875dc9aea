package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vietnam(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return loc
}

func TestCalendar_ResolveAccountingMonth(t *testing.T) {
	loc := vietnam(t)
	cal := NewCalendar(loc)

	t.Run("should return the current month mid-month", func(t *testing.T) {
		// when
		w := cal.ResolveAccountingMonth(time.Date(2025, time.March, 10, 12, 0, 0, 0, loc))

		// then
		assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, loc), w.Start)
		assert.Equal(t, time.Date(2025, time.March, 31, 23, 59, 59, 0, loc), w.End)
	})

	t.Run("should roll over to next month on the last day", func(t *testing.T) {
		// when
		w := cal.ResolveAccountingMonth(time.Date(2025, time.February, 28, 8, 0, 0, 0, loc))

		// then
		assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, loc), w.Start)
		assert.Equal(t, time.Date(2025, time.March, 31, 23, 59, 59, 0, loc), w.End)
	})

	t.Run("should roll December over into January of the next year", func(t *testing.T) {
		// when
		w := cal.ResolveAccountingMonth(time.Date(2024, time.December, 31, 23, 30, 0, 0, loc))

		// then
		assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, loc), w.Start)
		assert.Equal(t, time.Date(2025, time.January, 31, 23, 59, 59, 0, loc), w.End)
	})

	t.Run("should judge the last day in the civil timezone", func(t *testing.T) {
		// 2025-04-29 18:00 UTC is already 2025-04-30 01:00 in Vietnam
		w := cal.ResolveAccountingMonth(time.Date(2025, time.April, 29, 18, 0, 0, 0, time.UTC))

		assert.Equal(t, time.May, w.Start.Month())
	})

	t.Run("should handle leap years", func(t *testing.T) {
		assert.Equal(t, time.February, cal.ResolveAccountingMonth(time.Date(2024, time.February, 28, 9, 0, 0, 0, loc)).Start.Month())
		assert.Equal(t, time.March, cal.ResolveAccountingMonth(time.Date(2024, time.February, 29, 9, 0, 0, 0, loc)).Start.Month())
	})
}

func TestCalendar_CalendarMonth(t *testing.T) {
	loc := vietnam(t)
	cal := NewCalendar(loc)

	w := cal.CalendarMonth(time.Date(2025, time.January, 31, 9, 0, 0, 0, loc))

	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, loc), w.Start)
	assert.True(t, w.Contains(time.Date(2025, time.January, 31, 23, 59, 59, 0, loc).Unix()))
	assert.False(t, w.Contains(time.Date(2025, time.February, 1, 0, 0, 0, 0, loc).Unix()))
}

func TestCalendar_BookingTime(t *testing.T) {
	loc := vietnam(t)
	cal := NewCalendar(loc)

	t.Run("should book month-end approvals at 01:00 on the first of next month", func(t *testing.T) {
		booked := cal.BookingTime(time.Date(2024, time.December, 31, 15, 0, 0, 0, loc))

		assert.True(t, booked.Equal(time.Date(2025, time.January, 1, 1, 0, 0, 0, loc)))
	})

	t.Run("should keep other days unchanged", func(t *testing.T) {
		now := time.Date(2025, time.March, 10, 15, 0, 0, 0, loc)

		assert.True(t, cal.BookingTime(now).Equal(now))
	})
}

func TestCalendar_RefundTime(t *testing.T) {
	loc := vietnam(t)
	cal := NewCalendar(loc)

	t.Run("should move a plus refund near month end to next month", func(t *testing.T) {
		booked := cal.RefundTime(time.Date(2025, time.March, 27, 10, 0, 0, 0, loc), "+")

		assert.True(t, booked.Equal(time.Date(2025, time.April, 1, 0, 0, 0, 0, loc)))
	})

	t.Run("should ignore plus early in the month", func(t *testing.T) {
		now := time.Date(2025, time.March, 20, 10, 0, 0, 0, loc)

		assert.True(t, cal.RefundTime(now, "+").Equal(now))
	})

	t.Run("should move a minus refund early in the month to the previous month", func(t *testing.T) {
		booked := cal.RefundTime(time.Date(2025, time.January, 3, 10, 0, 0, 0, loc), "-")

		assert.True(t, booked.Equal(time.Date(2024, time.December, 31, 23, 59, 59, 0, loc)))
	})

	t.Run("should ignore minus late in the month and unknown modifiers", func(t *testing.T) {
		now := time.Date(2025, time.January, 6, 10, 0, 0, 0, loc)

		assert.True(t, cal.RefundTime(now, "-").Equal(now))
		assert.True(t, cal.RefundTime(now, "").Equal(now))
	})
}
