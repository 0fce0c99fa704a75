package scheduler

import (
	"testing"
	"time"
)

// 2024-06-01 is a Saturday.
func at(day, hour, min int) time.Time {
	return time.Date(2024, time.June, day, hour, min, 0, 0, time.UTC)
}

func TestScheduler_DayAndDefaultWindows(t *testing.T) {
	s, err := New("Saturday[01:00-03:00]|*[12:00-18:00]", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"inside day window", at(1, 2, 0), true},
		{"falls back to default", at(1, 13, 0), true},
		{"outside day and default windows", at(1, 19, 0), false},
		{"between day and default windows", at(1, 5, 0), false},
		{"lower bound is exclusive", at(1, 1, 0), false},
		{"upper bound is exclusive", at(1, 3, 0), false},
		{"outside default on sunday", at(2, 19, 0), false},
		{"inside default on sunday", at(2, 12, 30), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.IsInTimeWindows(tc.now); got != tc.want {
				t.Fatalf("IsInTimeWindows(%s) = %v, want %v", tc.now.Format(time.RFC1123), got, tc.want)
			}
		})
	}
}

func TestScheduler_EmptyIsAlwaysOpen(t *testing.T) {
	s, err := New("", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, now := range []time.Time{at(1, 0, 0), at(3, 23, 59), at(5, 12, 0)} {
		if !s.IsInTimeWindows(now) {
			t.Fatalf("expected open at %s", now)
		}
	}
	if s.String() != DefaultSchedule {
		t.Fatalf("unexpected expression %q", s.String())
	}
}

func TestScheduler_UnlistedDaysOpenWithoutDefault(t *testing.T) {
	s, err := New("monday[09:00-10:00]", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.IsInTimeWindows(at(1, 4, 0)) {
		t.Fatal("saturday has no entry and no default, expected open")
	}
	if s.IsInTimeWindows(at(3, 11, 0)) {
		t.Fatal("monday 11:00 is outside its window")
	}
}

func TestScheduler_MultipleWindowsAndSeconds(t *testing.T) {
	s, err := New("Saturday[ 01:00-02:00 ; 05:00:30-24:00 ]", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.IsInTimeWindows(time.Date(2024, time.June, 1, 5, 0, 31, 0, time.UTC)) {
		t.Fatal("expected open after 05:00:30")
	}
	if s.IsInTimeWindows(at(1, 3, 0)) {
		t.Fatal("expected closed between windows")
	}
}

func TestScheduler_RejectsMalformed(t *testing.T) {
	for _, expr := range []string{
		"Someday[01:00-02:00]",
		"*[*]|*[01:00-02:00]",
		"Monday[01:00]",
		"Monday[01:00-02:00-03:00]",
		"Monday[03:00-02:00]",
		"Monday[25:00-26:00]",
		"Monday01:00-02:00",
		"*[]",
	} {
		if _, err := New(expr, false); err == nil {
			t.Fatalf("expected error for %q", expr)
		}
	}
}

func TestScheduler_EmptyDayIsClosedWithoutDefault(t *testing.T) {
	s, err := New("Saturday[]|Monday[09:00-10:00]", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, now := range []time.Time{at(1, 0, 30), at(1, 12, 0), at(1, 23, 59)} {
		if s.IsInTimeWindows(now) {
			t.Fatalf("saturday is listed without windows, expected closed at %s", now)
		}
	}
	if !s.IsInTimeWindows(at(2, 12, 0)) {
		t.Fatal("sunday has no entry and no default, expected open")
	}
}

func TestScheduler_EmptyDayKeepsDefault(t *testing.T) {
	s, err := New("Saturday[]|*[12:00-18:00]", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.IsInTimeWindows(at(1, 13, 0)) {
		t.Fatal("expected default window to apply on saturday")
	}
	if s.IsInTimeWindows(at(1, 9, 0)) {
		t.Fatal("expected closed outside the default window")
	}
}
