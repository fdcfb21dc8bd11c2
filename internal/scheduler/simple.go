// ============================================================================
// Ringmaster Token Scheduler - issue / fix / rollback of game tokens
// ============================================================================
//
// Package: internal/scheduler
// File: simple.go
//
// Token lifecycle:
//
//	never issued ──Issue()──▶ outstanding ──Fix()──▶ fixed (permanent)
//	                             │
//	                         Rollback()
//	                             ▼
//	                         toReissue ──Issue()──▶ outstanding
//
// Invariants:
//   - every token in [0, nextNew) has been issued at least once
//   - outstanding ∩ toReissue = ∅
//   - toReissue ⊆ [0, nextNew)
//
// Reissued tokens are handed out lowest-first, so a resumed competition
// replays abandoned games in a reproducible order.
//
// ============================================================================

package scheduler

import (
	"fmt"
	"slices"
	"sync"
)

// Simple issues integer tokens counting up from zero.
type Simple struct {
	mu          sync.Mutex
	nextNew     int              // smallest never-issued token
	outstanding map[int]struct{} // issued, not yet fixed or rolled back
	toReissue   map[int]struct{} // rolled back, waiting to be issued again
}

// SimpleState is the serialisable form of a Simple scheduler.
// Slices are kept sorted so that encoding a state is deterministic.
type SimpleState struct {
	NextNew     int   `json:"next_new"`
	Outstanding []int `json:"outstanding"`
	ToReissue   []int `json:"to_reissue"`
}

// NewSimple returns an empty scheduler.
func NewSimple() *Simple {
	return &Simple{
		outstanding: make(map[int]struct{}),
		toReissue:   make(map[int]struct{}),
	}
}

// Issue returns a token that is not currently outstanding.
func (s *Simple) Issue() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token int
	if len(s.toReissue) > 0 {
		token = minKey(s.toReissue)
		delete(s.toReissue, token)
	} else {
		token = s.nextNew
		s.nextNew++
	}
	s.outstanding[token] = struct{}{}
	return token
}

// Fix permanently retires an outstanding token.
//
// Fixing a token that is not outstanding is a caller bug; ErrNotOutstanding
// is returned and the state is unchanged.
func (s *Simple) Fix(token int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outstanding[token]; !ok {
		return fmt.Errorf("%w: %d", ErrNotOutstanding, token)
	}
	delete(s.outstanding, token)
	return nil
}

// Record marks a token as fixed whatever its current state, issuing it
// first if it was never issued. Tokens skipped over on the way are left
// awaiting reissue.
//
// It is used to rebuild state from a results log, where a game may have
// been recorded after the last saved state. Recording a token that is
// already fixed returns ErrAlreadyFixed.
func (s *Simple) Record(token int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token < 0 {
		return fmt.Errorf("%w: negative token %d", ErrInvalidState, token)
	}
	if _, ok := s.outstanding[token]; ok {
		delete(s.outstanding, token)
		return nil
	}
	if _, ok := s.toReissue[token]; ok {
		delete(s.toReissue, token)
		return nil
	}
	if token < s.nextNew {
		return fmt.Errorf("%w: %d", ErrAlreadyFixed, token)
	}
	for t := s.nextNew; t < token; t++ {
		s.toReissue[t] = struct{}{}
	}
	s.nextNew = token + 1
	return nil
}

// Rollback makes every outstanding token available for reissue.
func (s *Simple) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token := range s.outstanding {
		s.toReissue[token] = struct{}{}
	}
	s.outstanding = make(map[int]struct{})
}

// CountIssued returns the number of live tokens (outstanding or fixed).
func (s *Simple) CountIssued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNew - len(s.toReissue)
}

// CountFixed returns the number of permanently completed tokens.
func (s *Simple) CountFixed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNew - len(s.outstanding) - len(s.toReissue)
}

// Outstanding returns the outstanding tokens in ascending order.
func (s *Simple) Outstanding() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.outstanding)
}

// State returns a copy of the scheduler state.
func (s *Simple) State() SimpleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimpleState{
		NextNew:     s.nextNew,
		Outstanding: sortedKeys(s.outstanding),
		ToReissue:   sortedKeys(s.toReissue),
	}
}

// Restore replaces the scheduler state.
// The state is validated first; on error the scheduler is left untouched.
func (s *Simple) Restore(st SimpleState) error {
	if err := st.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNew = st.NextNew
	s.outstanding = toSet(st.Outstanding)
	s.toReissue = toSet(st.ToReissue)
	return nil
}

// Validate checks the scheduler invariants.
func (st SimpleState) Validate() error {
	if st.NextNew < 0 {
		return fmt.Errorf("%w: negative next_new %d", ErrInvalidState, st.NextNew)
	}
	seen := make(map[int]struct{}, len(st.Outstanding))
	for _, t := range st.Outstanding {
		if t < 0 || t >= st.NextNew {
			return fmt.Errorf("%w: outstanding token %d out of range", ErrInvalidState, t)
		}
		seen[t] = struct{}{}
	}
	for _, t := range st.ToReissue {
		if t < 0 || t >= st.NextNew {
			return fmt.Errorf("%w: reissue token %d out of range", ErrInvalidState, t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: token %d both outstanding and awaiting reissue", ErrInvalidState, t)
		}
	}
	return nil
}

func minKey(set map[int]struct{}) int {
	first := true
	var m int
	for k := range set {
		if first || k < m {
			m = k
			first = false
		}
	}
	return m
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func toSet(tokens []int) map[int]struct{} {
	set := make(map[int]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
