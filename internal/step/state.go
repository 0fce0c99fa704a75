// Package step runs the probes of one configured step, with its optional
// before and after steps, and reports the results.
package step

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/probe"
)

type Group struct {
	Name   string
	Order  int
	Probes []probe.Probe
}

// State is a built step. It lives for the whole process so probes keep their
// last-run times and the step can wait on its previous run.
type State struct {
	Name   string
	Groups []Group
	Before *State
	After  *State

	// Zero durations and a nil SendReport inherit from the enclosing step.
	MinDuration      time.Duration
	MaxDuration      time.Duration
	FinishBeforeNext bool
	SendReport       *bool

	mu   sync.Mutex
	last *Handle
}

// NewState builds the probes of s and its nested steps. A nil s yields a nil
// State. All build errors are reported together.
func NewState(name string, s *config.Step, deps probe.Deps) (*State, error) {
	if s == nil {
		return nil, nil
	}
	st := &State{
		Name:             name,
		MinDuration:      s.MinDuration,
		MaxDuration:      s.MaxDuration,
		FinishBeforeNext: s.FinishesBeforeNext(),
		SendReport:       s.SendReport,
	}

	var err error
	for i := range s.Groups {
		g := &s.Groups[i]
		grp := Group{Name: g.Name, Order: g.Order}
		for _, def := range g.Probes {
			p, perr := probe.Build(def, g, deps)
			if perr != nil {
				err = multierr.Append(err, fmt.Errorf("%s.%s: %w", name, g.Name, perr))
				continue
			}
			grp.Probes = append(grp.Probes, p)
		}
		sort.SliceStable(grp.Probes, func(a, b int) bool { return grp.Probes[a].Order() < grp.Probes[b].Order() })
		if len(grp.Probes) > 0 {
			st.Groups = append(st.Groups, grp)
		}
	}
	sort.SliceStable(st.Groups, func(a, b int) bool { return st.Groups[a].Order < st.Groups[b].Order })

	var berr, aerr error
	st.Before, berr = NewState(name+".before", s.Before, deps)
	st.After, aerr = NewState(name+".after", s.After, deps)
	err = multierr.Combine(err, berr, aerr)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Last returns the handle of the latest run, or a completed handle when the
// step never ran. A nil State is always complete.
func (s *State) Last() *Handle {
	if s == nil {
		return Completed()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Completed()
	}
	return s.last
}

func (s *State) setLast(h *Handle) {
	s.mu.Lock()
	s.last = h
	s.mu.Unlock()
}

// Wait blocks until the latest runs of s and its nested steps finished.
func (s *State) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return multierr.Combine(
		s.Last().Wait(ctx),
		s.Before.Wait(ctx),
		s.After.Wait(ctx),
	)
}

// ProbeCount counts the probes of s and its nested steps.
func (s *State) ProbeCount() int {
	if s == nil {
		return 0
	}
	n := s.Before.ProbeCount() + s.After.ProbeCount()
	for _, g := range s.Groups {
		n += len(g.Probes)
	}
	return n
}

func (s *State) bounds(inherited Bounds) Bounds {
	b := inherited
	if s.MinDuration > 0 {
		b.Min = s.MinDuration
	}
	if s.MaxDuration > 0 {
		b.Max = s.MaxDuration
	}
	if s.SendReport != nil {
		b.SendReport = *s.SendReport
	}
	if b.Max <= 0 {
		b.Max = MaxDurationUnbounded
	}
	return b
}
