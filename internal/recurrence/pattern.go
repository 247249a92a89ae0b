package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

const (
	// NeverLimit bounds patterns without an end condition.
	NeverLimit = 52
	// HardLimit bounds every pattern, including on_date ranges.
	HardLimit = 730
)

var (
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	ErrInvalidInterval  = errors.New("recurrence: interval must be positive")
	ErrInvalidEnd       = errors.New("recurrence: invalid end condition")
	ErrInvalidWeekdays  = errors.New("recurrence: days of week only apply to weekly patterns")
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	// FrequencyCustom repeats every Interval days.
	FrequencyCustom Frequency = "custom"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyCustom:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

type EndKind string

const (
	EndNever      EndKind = "never"
	EndOnDate     EndKind = "on_date"
	EndAfterCount EndKind = "after_count"
)

// EndCondition is one of never, on_date(Date) or after_count(Count).
type EndCondition struct {
	Kind  EndKind       `json:"kind"`
	Date  calendar.Date `json:"date,omitempty"`
	Count int           `json:"count,omitempty"`
}

func Never() EndCondition { return EndCondition{Kind: EndNever} }

func OnDate(d calendar.Date) EndCondition { return EndCondition{Kind: EndOnDate, Date: d} }

func AfterCount(n int) EndCondition { return EndCondition{Kind: EndAfterCount, Count: n} }

// Pattern describes how a series repeats from its first occurrence.
type Pattern struct {
	Frequency  Frequency      `json:"frequency"`
	Interval   int            `json:"interval"`
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	End        EndCondition   `json:"end"`
}

func (p Pattern) weekly() bool {
	return p.Frequency == FrequencyWeekly || p.Frequency == FrequencyBiweekly
}

// Validate checks the pattern against the first occurrence it will be expanded from.
func (p Pattern) Validate(first time.Time) error {
	if _, err := ParseFrequency(string(p.Frequency)); err != nil {
		return err
	}
	if p.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, p.Interval)
	}
	if len(p.DaysOfWeek) > 0 && !p.weekly() {
		return ErrInvalidWeekdays
	}
	for _, d := range p.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidWeekdays, d)
		}
	}

	switch p.End.Kind {
	case EndNever:
	case EndOnDate:
		if p.End.Date.IsZero() {
			return fmt.Errorf("%w: on_date requires a date", ErrInvalidEnd)
		}
		if p.End.Date.Before(calendar.DateOf(first)) {
			return fmt.Errorf("%w: end date %s is before first occurrence", ErrInvalidEnd, p.End.Date)
		}
	case EndAfterCount:
		if p.End.Count < 1 || p.End.Count > HardLimit {
			return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidEnd, HardLimit)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidEnd, p.End.Kind)
	}
	return nil
}

// limit is the maximum number of occurrences the pattern may produce.
func (p Pattern) limit() int {
	switch p.End.Kind {
	case EndAfterCount:
		return p.End.Count
	case EndNever:
		return NeverLimit
	}
	return HardLimit
}
