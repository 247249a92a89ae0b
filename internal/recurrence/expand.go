package recurrence

import (
	"iter"
	"slices"
	"time"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

// Expand returns the occurrence start times of the pattern, beginning with first.
// Every occurrence keeps first's time of day and location. The sequence is finite
// and may be ranged over any number of times.
func Expand(first time.Time, p Pattern) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		limit := p.limit()
		produced := 0

		emit := func(t time.Time) bool {
			if p.End.Kind == EndOnDate && calendar.DateOf(t).After(p.End.Date) {
				return false
			}
			if !yield(t) {
				return false
			}
			produced++
			return produced < limit
		}

		if !emit(first) {
			return
		}

		interval := max(p.Interval, 1)
		if days := weekdaySet(p.DaysOfWeek); p.weekly() && len(days) > 0 {
			expandWeekdays(first, interval*weeksPerStep(p.Frequency), days, emit)
			return
		}

		for i := 1; ; i++ {
			next, ok := advance(first, p.Frequency, i*interval)
			if !ok || !emit(next) {
				return
			}
		}
	}
}

// Occurrences collects Expand into a slice.
func Occurrences(first time.Time, p Pattern) []time.Time {
	return slices.Collect(Expand(first, p))
}

func advance(first time.Time, f Frequency, n int) (time.Time, bool) {
	switch f {
	case FrequencyDaily, FrequencyCustom:
		return first.AddDate(0, 0, n), true
	case FrequencyWeekly, FrequencyBiweekly:
		return first.AddDate(0, 0, 7*n*weeksPerStep(f)), true
	case FrequencyMonthly:
		return addMonthsClamped(first, n), true
	}
	return time.Time{}, false
}

func weeksPerStep(f Frequency) int {
	if f == FrequencyBiweekly {
		return 2
	}
	return 1
}

// addMonthsClamped moves t forward n months, clamping the day to the target month's length.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	months := int(m) - 1 + n
	year := y + months/12
	month := time.Month(months%12 + 1)
	day := min(d, calendar.DaysIn(year, month))
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func weekdaySet(days []time.Weekday) map[time.Weekday]struct{} {
	set := make(map[time.Weekday]struct{}, len(days))
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			set[d] = struct{}{}
		}
	}
	return set
}

// expandWeekdays walks Monday-first weeks, stepping strideWeeks at a time, and emits
// the selected weekdays that fall after first.
func expandWeekdays(first time.Time, strideWeeks int, days map[time.Weekday]struct{}, emit func(time.Time) bool) {
	offset := (int(first.Weekday()) + 6) % 7
	weekStart := first.AddDate(0, 0, -offset)

	for week := 0; ; week += strideWeeks {
		for i := 0; i < 7; i++ {
			t := weekStart.AddDate(0, 0, week*7+i)
			if !t.After(first) {
				continue
			}
			if _, ok := days[t.Weekday()]; !ok {
				continue
			}
			if !emit(t) {
				return
			}
		}
	}
}
