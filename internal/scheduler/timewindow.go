// Package scheduler decides whether the periodic cycle may run at a given
// moment, from a compact weekday/time-window expression such as
//
//	Saturday[01:00-03:00]|*[12:00-18:00]
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSchedule is always open.
const DefaultSchedule = "*[*]"

const dayLength = 24 * time.Hour

type window struct {
	from, to time.Duration
}

func (w window) contains(t time.Duration) bool { return w.from < t && t < w.to }

type Scheduler struct {
	expr     string
	utc      bool
	days     map[time.Weekday][]window
	fallback []window
	// hasFallback is false when no "*[...]" entry exists; unlisted days are then open.
	hasFallback bool
}

// New parses expr. An empty expression means DefaultSchedule.
func New(expr string, utc bool) (*Scheduler, error) {
	expr = strings.Join(strings.Fields(expr), "")
	if expr == "" {
		expr = DefaultSchedule
	}
	s := &Scheduler{expr: expr, utc: utc, days: map[time.Weekday][]window{}}

	for _, entry := range strings.Split(expr, "|") {
		if entry == "" {
			continue
		}
		open := strings.IndexByte(entry, '[')
		if open <= 0 || !strings.HasSuffix(entry, "]") {
			return nil, fmt.Errorf("schedule %q: malformed entry %q", expr, entry)
		}
		day := entry[:open]
		windows, err := parseWindows(entry[open+1 : len(entry)-1])
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %s: %w", expr, day, err)
		}

		if day == "*" {
			if len(windows) == 0 {
				return nil, fmt.Errorf("schedule %q: default (*) entry has no windows", expr)
			}
			if s.hasFallback {
				return nil, fmt.Errorf("schedule %q: more than one default (*) entry", expr)
			}
			s.hasFallback = true
			s.fallback = windows
			continue
		}
		wd, ok := parseWeekday(day)
		if !ok {
			return nil, fmt.Errorf("schedule %q: unknown day %q", expr, day)
		}
		// Day[] lists the day with no windows of its own
		s.days[wd] = append(s.days[wd], windows...)
	}
	return s, nil
}

func (s *Scheduler) String() string { return s.expr }

// IsInTimeWindows reports whether now falls strictly inside one of the windows
// of its weekday or, failing that, one of the default (*) windows. A day with
// no entry is open when there is no default.
func (s *Scheduler) IsInTimeWindows(now time.Time) bool {
	if s.utc {
		now = now.UTC()
	} else {
		now = now.Local()
	}
	windows, listed := s.days[now.Weekday()]
	if !listed && !s.hasFallback {
		return true
	}

	h, m, sec := now.Clock()
	t := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second +
		time.Duration(now.Nanosecond())
	return anyContains(windows, t) || (s.hasFallback && anyContains(s.fallback, t))
}

func anyContains(windows []window, t time.Duration) bool {
	for _, w := range windows {
		if w.contains(t) {
			return true
		}
	}
	return false
}

func parseWindows(s string) ([]window, error) {
	var out []window
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part == "*" {
			// open at both ends so that every instant of the day is inside
			out = append(out, window{from: -1, to: dayLength + 1})
			continue
		}
		bounds := strings.Split(part, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("window %q must have exactly two bounds", part)
		}
		from, err := parseClock(bounds[0])
		if err != nil {
			return nil, err
		}
		to, err := parseClock(bounds[1])
		if err != nil {
			return nil, err
		}
		if from > to {
			return nil, fmt.Errorf("window %q starts after it ends", part)
		}
		out = append(out, window{from: from, to: to})
	}
	return out, nil
}

// parseClock accepts hh:mm or hh:mm:ss up to 24:00.
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	var vals [3]int
	limits := [3]int{24, 59, 59}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		vals[i] = v
	}
	d := time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute + time.Duration(vals[2])*time.Second
	if d > dayLength {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return d, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, true
		}
	}
	return 0, false
}
