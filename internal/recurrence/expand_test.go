package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

func dt(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func mustDate(t *testing.T, s string) calendar.Date {
	t.Helper()
	d, err := calendar.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func assertTimes(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("occurrence %d = %s, want %s", i, got[i].Format(time.RFC3339), want[i].Format(time.RFC3339))
		}
	}
}

func TestExpand_WeeklyEveryOtherWeek(t *testing.T) {
	t.Parallel()

	first := dt(2025, time.January, 6, 10)
	p := Pattern{Frequency: FrequencyWeekly, Interval: 2, End: AfterCount(3)}

	assertTimes(t, Occurrences(first, p), []time.Time{
		dt(2025, time.January, 6, 10),
		dt(2025, time.January, 20, 10),
		dt(2025, time.February, 3, 10),
	})
}

func TestExpand_Frequencies(t *testing.T) {
	t.Parallel()

	first := dt(2025, time.January, 6, 9)

	tests := []struct {
		name    string
		pattern Pattern
		want    []time.Time
	}{
		{
			name:    "daily every 3 days",
			pattern: Pattern{Frequency: FrequencyDaily, Interval: 3, End: AfterCount(3)},
			want:    []time.Time{first, dt(2025, time.January, 9, 9), dt(2025, time.January, 12, 9)},
		},
		{
			name:    "biweekly doubles the interval",
			pattern: Pattern{Frequency: FrequencyBiweekly, Interval: 1, End: AfterCount(3)},
			want:    []time.Time{first, dt(2025, time.January, 20, 9), dt(2025, time.February, 3, 9)},
		},
		{
			name:    "custom counts days",
			pattern: Pattern{Frequency: FrequencyCustom, Interval: 10, End: AfterCount(3)},
			want:    []time.Time{first, dt(2025, time.January, 16, 9), dt(2025, time.January, 26, 9)},
		},
		{
			name: "weekly on selected weekdays",
			pattern: Pattern{
				Frequency:  FrequencyWeekly,
				Interval:   1,
				DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
				End:        AfterCount(5),
			},
			want: []time.Time{
				first,
				dt(2025, time.January, 9, 9),
				dt(2025, time.January, 13, 9),
				dt(2025, time.January, 16, 9),
				dt(2025, time.January, 20, 9),
			},
		},
		{
			name: "biweekly on selected weekdays skips the off week",
			pattern: Pattern{
				Frequency:  FrequencyBiweekly,
				Interval:   1,
				DaysOfWeek: []time.Weekday{time.Wednesday},
				End:        AfterCount(3),
			},
			want: []time.Time{first, dt(2025, time.January, 8, 9), dt(2025, time.January, 22, 9)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.pattern.Validate(first); err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			assertTimes(t, Occurrences(first, tc.pattern), tc.want)
		})
	}
}

func TestExpand_MonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	first := dt(2025, time.January, 31, 14)
	p := Pattern{Frequency: FrequencyMonthly, Interval: 1, End: AfterCount(4)}

	assertTimes(t, Occurrences(first, p), []time.Time{
		first,
		dt(2025, time.February, 28, 14),
		dt(2025, time.March, 31, 14),
		dt(2025, time.April, 30, 14),
	})

	quarterly := Pattern{Frequency: FrequencyMonthly, Interval: 3, End: AfterCount(5)}
	got := Occurrences(dt(2024, time.November, 30, 8), quarterly)
	if last := got[len(got)-1]; !last.Equal(dt(2025, time.November, 30, 8)) {
		t.Fatalf("last quarterly occurrence = %s", last)
	}
	if !got[1].Equal(dt(2025, time.February, 28, 8)) {
		t.Fatalf("february occurrence = %s", got[1])
	}
}

func TestExpand_EndConditions(t *testing.T) {
	t.Parallel()

	first := dt(2025, time.January, 6, 9)

	t.Run("never caps at 52", func(t *testing.T) {
		t.Parallel()
		got := Occurrences(first, Pattern{Frequency: FrequencyDaily, Interval: 1, End: Never()})
		if len(got) != NeverLimit {
			t.Fatalf("got %d occurrences, want %d", len(got), NeverLimit)
		}
	})

	t.Run("on date is inclusive", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Frequency: FrequencyWeekly, Interval: 1, End: OnDate(mustDate(t, "2025-01-27"))}
		assertTimes(t, Occurrences(first, p), []time.Time{
			first,
			dt(2025, time.January, 13, 9),
			dt(2025, time.January, 20, 9),
			dt(2025, time.January, 27, 9),
		})
	})

	t.Run("on date is bounded by the hard limit", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Frequency: FrequencyDaily, Interval: 1, End: OnDate(mustDate(t, "2030-01-01"))}
		if got := len(Occurrences(first, p)); got != HardLimit {
			t.Fatalf("got %d occurrences, want %d", got, HardLimit)
		}
	})

	t.Run("after count of one yields only the first", func(t *testing.T) {
		t.Parallel()
		assertTimes(t, Occurrences(first, Pattern{Frequency: FrequencyMonthly, Interval: 1, End: AfterCount(1)}), []time.Time{first})
	})
}

func TestExpand_IsRestartableAndLazy(t *testing.T) {
	t.Parallel()

	first := dt(2025, time.January, 6, 9)
	seq := Expand(first, Pattern{Frequency: FrequencyDaily, Interval: 1, End: Never()})

	a := Occurrences(first, Pattern{Frequency: FrequencyDaily, Interval: 1, End: Never()})
	var b []time.Time
	for v := range seq {
		b = append(b, v)
	}
	assertTimes(t, b, a)

	taken := 0
	for range seq {
		taken++
		if taken == 3 {
			break
		}
	}
	if taken != 3 {
		t.Fatalf("early break consumed %d", taken)
	}
}

func TestPattern_Validate(t *testing.T) {
	t.Parallel()

	first := dt(2025, time.January, 6, 9)

	tests := []struct {
		name    string
		pattern Pattern
		want    error
	}{
		{"unknown frequency", Pattern{Frequency: "yearly", Interval: 1, End: Never()}, ErrInvalidFrequency},
		{"zero interval", Pattern{Frequency: FrequencyDaily, End: Never()}, ErrInvalidInterval},
		{"zero count", Pattern{Frequency: FrequencyDaily, Interval: 1, End: AfterCount(0)}, ErrInvalidEnd},
		{"end before first", Pattern{Frequency: FrequencyDaily, Interval: 1, End: OnDate(mustDate(t, "2025-01-05"))}, ErrInvalidEnd},
		{"missing end kind", Pattern{Frequency: FrequencyDaily, Interval: 1}, ErrInvalidEnd},
		{"weekdays on daily", Pattern{Frequency: FrequencyDaily, Interval: 1, DaysOfWeek: []time.Weekday{time.Monday}, End: Never()}, ErrInvalidWeekdays},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.pattern.Validate(first); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}
