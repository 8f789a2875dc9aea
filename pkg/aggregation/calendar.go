package aggregation

import "time"

// Window is an inclusive accounting range; End is the last second of the period.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) From() int64 { return w.Start.Unix() }
func (w Window) To() int64   { return w.End.Unix() }

func (w Window) Contains(ts int64) bool {
	return ts >= w.From() && ts <= w.To()
}

// Calendar does month arithmetic in one civil timezone.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// ResolveAccountingMonth returns the month ref is booked into. On the last calendar day
// of a month that is the following month.
func (c *Calendar) ResolveAccountingMonth(ref time.Time) Window {
	ref = ref.In(c.loc)
	if c.IsLastDayOfMonth(ref) {
		return c.monthWindow(ref.Year(), ref.Month()+1)
	}
	return c.monthWindow(ref.Year(), ref.Month())
}

// CalendarMonth returns the plain calendar month containing ref.
func (c *Calendar) CalendarMonth(ref time.Time) Window {
	ref = ref.In(c.loc)
	return c.monthWindow(ref.Year(), ref.Month())
}

func (c *Calendar) IsLastDayOfMonth(ref time.Time) bool {
	ref = ref.In(c.loc)
	return ref.Day() == daysIn(ref.Year(), ref.Month(), c.loc)
}

// BookingTime is the accounting time for a split approved at now: 01:00 on the first of
// next month when now is the last day of a month, otherwise now itself.
func (c *Calendar) BookingTime(now time.Time) time.Time {
	local := now.In(c.loc)
	if c.IsLastDayOfMonth(local) {
		return time.Date(local.Year(), local.Month()+1, 1, 1, 0, 0, 0, c.loc)
	}
	return now
}

// RefundTime applies the operator's period modifier. "+" in the last five days of a month
// books at the start of next month; "-" in the first five days books at the last second of
// the previous month. Any other combination books at now.
func (c *Calendar) RefundTime(now time.Time, modifier string) time.Time {
	local := now.In(c.loc)
	switch modifier {
	case "+":
		if local.Day() >= daysIn(local.Year(), local.Month(), c.loc)-4 {
			return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, c.loc)
		}
	case "-":
		if local.Day() <= 5 {
			return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc).Add(-time.Second)
		}
	}
	return now
}

func (c *Calendar) monthWindow(year int, month time.Month) Window {
	// time.Date normalises month 13 to January of the next year.
	start := time.Date(year, month, 1, 0, 0, 0, 0, c.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return Window{Start: start, End: end}
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
