package scheduler

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// GroupSpec names a group and its issuance limit. A nil Limit means unbounded.
type GroupSpec[G cmp.Ordered] struct {
	Code  G
	Limit *int
}

// GroupStatus reports the counters of one group.
type GroupStatus[G cmp.Ordered] struct {
	Code        G
	Limit       *int
	Issued      int
	Fixed       int
	Outstanding int
}

// GroupEntry is the serialisable form of one group.
type GroupEntry[G cmp.Ordered] struct {
	Code      G           `json:"code"`
	Limit     *int        `json:"limit"`
	Scheduler SimpleState `json:"scheduler"`
}

// GroupState is the serialisable form of a GroupScheduler, sorted by code.
type GroupState[G cmp.Ordered] []GroupEntry[G]

// GroupScheduler schedules several sequences of games in parallel.
//
// It issues from the group (of those below their limit) with the fewest
// issued tokens, with the smallest group code breaking ties. Tokens count
// up from zero independently for each group.
type GroupScheduler[G cmp.Ordered] struct {
	mu         sync.Mutex
	allocators map[G]*Simple
	limits     map[G]*int
}

// NewGroupScheduler returns a scheduler with no groups.
func NewGroupScheduler[G cmp.Ordered]() *GroupScheduler[G] {
	return &GroupScheduler[G]{
		allocators: make(map[G]*Simple),
		limits:     make(map[G]*int),
	}
}

// Limit is a convenience for building GroupSpec limits.
func Limit(n int) *int {
	return &n
}

// SetGroups replaces the group set.
//
// Groups that persist keep their scheduler (and so their outstanding and
// reissue history); groups not listed are forgotten. Limits are always
// overwritten.
func (g *GroupScheduler[G]) SetGroups(specs []GroupSpec[G]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	allocators := make(map[G]*Simple, len(specs))
	limits := make(map[G]*int, len(specs))
	for _, spec := range specs {
		if s, ok := g.allocators[spec.Code]; ok {
			allocators[spec.Code] = s
		} else {
			allocators[spec.Code] = NewSimple()
		}
		limits[spec.Code] = copyLimit(spec.Limit)
	}
	g.allocators = allocators
	g.limits = limits
}

// Issue chooses the next game to start.
// ok is false when every group has reached its limit; that is the normal
// end-of-work condition, not an error.
func (g *GroupScheduler[G]) Issue() (code G, token int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var bestIssued int
	found := false
	for c, s := range g.allocators {
		issued := s.CountIssued()
		if limit := g.limits[c]; limit != nil && issued >= *limit {
			continue
		}
		if !found || issued < bestIssued || (issued == bestIssued && c < code) {
			code, bestIssued, found = c, issued, true
		}
	}
	if !found {
		var zero G
		return zero, 0, false
	}
	return code, g.allocators[code].Issue(), true
}

// Fix notes that a game's result has been reliably stored.
func (g *GroupScheduler[G]) Fix(code G, token int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.allocators[code]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownGroup, code)
	}
	return s.Fix(token)
}

// Record marks a token of a group as fixed; see Simple.Record.
func (g *GroupScheduler[G]) Record(code G, token int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.allocators[code]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownGroup, code)
	}
	return s.Record(token)
}

// Rollback makes issued-but-not-fixed tokens of every group available again.
func (g *GroupScheduler[G]) Rollback() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.allocators {
		s.Rollback()
	}
}

// Groups returns the status of each group, sorted by code.
func (g *GroupScheduler[G]) Groups() []GroupStatus[G] {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]GroupStatus[G], 0, len(g.allocators))
	for c, s := range g.allocators {
		out = append(out, GroupStatus[G]{
			Code:        c,
			Limit:       copyLimit(g.limits[c]),
			Issued:      s.CountIssued(),
			Fixed:       s.CountFixed(),
			Outstanding: len(s.Outstanding()),
		})
	}
	slices.SortFunc(out, func(a, b GroupStatus[G]) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// State returns a copy of the scheduler state, sorted by group code.
func (g *GroupScheduler[G]) State() GroupState[G] {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := make(GroupState[G], 0, len(g.allocators))
	for c, s := range g.allocators {
		st = append(st, GroupEntry[G]{Code: c, Limit: copyLimit(g.limits[c]), Scheduler: s.State()})
	}
	slices.SortFunc(st, func(a, b GroupEntry[G]) int { return cmp.Compare(a.Code, b.Code) })
	return st
}

// Restore replaces the scheduler state.
func (g *GroupScheduler[G]) Restore(st GroupState[G]) error {
	allocators := make(map[G]*Simple, len(st))
	limits := make(map[G]*int, len(st))
	for _, e := range st {
		if _, dup := allocators[e.Code]; dup {
			return fmt.Errorf("%w: duplicate group %v", ErrInvalidState, e.Code)
		}
		s := NewSimple()
		if err := s.Restore(e.Scheduler); err != nil {
			return fmt.Errorf("group %v: %w", e.Code, err)
		}
		allocators[e.Code] = s
		limits[e.Code] = copyLimit(e.Limit)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allocators = allocators
	g.limits = limits
	return nil
}

func copyLimit(l *int) *int {
	if l == nil {
		return nil
	}
	n := *l
	return &n
}
