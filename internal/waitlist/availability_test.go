package waitlist

import (
	"testing"
	"time"
)

func TestWindowRuleValidate(t *testing.T) {
	cases := []struct {
		name    string
		rule    WindowRule
		wantErr bool
	}{
		{"valid morning", WindowRule{time.Monday, 9 * 60, 12 * 60}, false},
		{"full day", WindowRule{time.Saturday, 0, 24 * 60}, false},
		{"empty range", WindowRule{time.Monday, 600, 600}, true},
		{"inverted range", WindowRule{time.Monday, 700, 600}, true},
		{"negative start", WindowRule{time.Monday, -1, 600}, true},
		{"end past midnight", WindowRule{time.Monday, 600, 24*60 + 1}, true},
		{"bad weekday", WindowRule{time.Weekday(7), 600, 700}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestAvailabilityCovers(t *testing.T) {
	// 2026-03-02 is a Monday.
	monday10 := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	mondayMornings := Availability{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60}}

	cases := []struct {
		name  string
		avail Availability
		start time.Time
		end   time.Time
		want  bool
	}{
		{"empty availability covers anything", nil, monday10, monday10.Add(time.Hour), true},
		{"inside window", mondayMornings, monday10, monday10.Add(time.Hour), true},
		{"exact window bounds", mondayMornings, monday10.Add(-time.Hour), monday10.Add(2 * time.Hour), true},
		{"runs past window end", mondayMornings, monday10, monday10.Add(3 * time.Hour), false},
		{"starts before window", mondayMornings, monday10.Add(-2 * time.Hour), monday10, false},
		{"wrong weekday", mondayMornings, monday10.Add(24 * time.Hour), monday10.Add(25 * time.Hour), false},
		{"spans midnight", mondayMornings, monday10.Add(13 * time.Hour), monday10.Add(15 * time.Hour), false},
		{
			"second rule matches",
			Availability{
				{Weekday: time.Friday, StartMinute: 0, EndMinute: 60},
				{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
			},
			monday10, monday10.Add(time.Hour), true,
		},
		{
			"seconds round the end minute up",
			mondayMornings,
			monday10, time.Date(2026, time.March, 2, 12, 0, 30, 0, time.UTC), false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.avail.Covers(tc.start, tc.end); got != tc.want {
				t.Errorf("Covers(%s, %s) = %v, want %v", tc.start, tc.end, got, tc.want)
			}
		})
	}
}
