package waitlist

import (
	"fmt"
	"time"
)

// WindowRule is a recurring weekday/time-of-day range during which a patient
// can attend. Minutes are measured from local midnight, end exclusive.
type WindowRule struct {
	Weekday     time.Weekday `json:"weekday"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
}

func (r WindowRule) Validate() error {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", r.Weekday)
	}
	if r.StartMinute < 0 || r.EndMinute > 24*60 || r.StartMinute >= r.EndMinute {
		return fmt.Errorf("invalid minute range %d-%d", r.StartMinute, r.EndMinute)
	}
	return nil
}

// Availability is the set of times a patient can attend. An empty set means
// any time works.
type Availability []WindowRule

func (a Availability) Validate() error {
	for _, r := range a {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Covers reports whether the slot's full time range falls inside one of the
// availability rules. Slots spanning midnight never match a single-day rule.
func (a Availability) Covers(start, end time.Time) bool {
	if len(a) == 0 {
		return true
	}
	if start.Year() != end.Year() || start.YearDay() != end.YearDay() {
		return false
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if end.Second() > 0 || end.Nanosecond() > 0 {
		endMin++
	}

	for _, r := range a {
		if r.Weekday == start.Weekday() && r.StartMinute <= startMin && endMin <= r.EndMinute {
			return true
		}
	}
	return false
}
