package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Separator joins a tag and its token in a tagged id.
const Separator = "_"

// TaggedAllocator manages one Simple scheduler per tag and issues ids of the
// form "<tag>_<n>".
type TaggedAllocator struct {
	mu         sync.Mutex
	allocators map[string]*Simple
}

// TaggedState is the serialisable form of a TaggedAllocator.
// encoding/json writes map keys in sorted order, so the encoding is stable.
type TaggedState map[string]SimpleState

// NewTaggedAllocator returns an allocator with no tags.
func NewTaggedAllocator() *TaggedAllocator {
	return &TaggedAllocator{allocators: make(map[string]*Simple)}
}

// AddTag starts a fresh scheduler for tag, replacing any existing one.
func (a *TaggedAllocator) AddTag(tag string) error {
	if strings.Contains(tag, Separator) {
		return fmt.Errorf("%w: %q", ErrBadTag, tag)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocators[tag] = NewSimple()
	return nil
}

// Issue returns a new id for tag, creating the tag on first use.
func (a *TaggedAllocator) Issue(tag string) (string, error) {
	if strings.Contains(tag, Separator) {
		return "", fmt.Errorf("%w: %q", ErrBadTag, tag)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.allocators[tag]
	if !ok {
		s = NewSimple()
		a.allocators[tag] = s
	}
	return tag + Separator + strconv.Itoa(s.Issue()), nil
}

// Fix retires an id previously returned by Issue.
func (a *TaggedAllocator) Fix(id string) error {
	tag, n, err := SplitID(id)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.allocators[tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return s.Fix(n)
}

// Rollback rolls back every tag.
func (a *TaggedAllocator) Rollback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.allocators {
		s.Rollback()
	}
}

// LowestIssued returns the tag with the fewest issued ids.
// Ties go to the alphabetically first tag.
func (a *TaggedAllocator) LowestIssued() (string, int, error) {
	return a.pick((*Simple).CountIssued, false)
}

// HighestIssued returns the tag with the most issued ids.
// Ties go to the alphabetically last tag.
func (a *TaggedAllocator) HighestIssued() (string, int, error) {
	return a.pick((*Simple).CountIssued, true)
}

// LowestFixed returns the tag with the fewest fixed ids.
// Ties go to the alphabetically first tag.
func (a *TaggedAllocator) LowestFixed() (string, int, error) {
	return a.pick((*Simple).CountFixed, false)
}

// HighestFixed returns the tag with the most fixed ids.
// Ties go to the alphabetically last tag.
func (a *TaggedAllocator) HighestFixed() (string, int, error) {
	return a.pick((*Simple).CountFixed, true)
}

// pick compares (count, tag) pairs, taking the minimum or the maximum.
func (a *TaggedAllocator) pick(count func(*Simple) int, highest bool) (string, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.allocators) == 0 {
		return "", 0, ErrNoTags
	}
	var bestTag string
	var bestN int
	first := true
	for tag, s := range a.allocators {
		n := count(s)
		if first {
			bestTag, bestN, first = tag, n, false
			continue
		}
		var better bool
		if highest {
			better = n > bestN || (n == bestN && tag > bestTag)
		} else {
			better = n < bestN || (n == bestN && tag < bestTag)
		}
		if better {
			bestTag, bestN = tag, n
		}
	}
	return bestTag, bestN, nil
}

// State returns a copy of every tag's scheduler state.
func (a *TaggedAllocator) State() TaggedState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := make(TaggedState, len(a.allocators))
	for tag, s := range a.allocators {
		st[tag] = s.State()
	}
	return st
}

// Restore replaces the allocator state.
func (a *TaggedAllocator) Restore(st TaggedState) error {
	allocators := make(map[string]*Simple, len(st))
	for tag, ss := range st {
		if strings.Contains(tag, Separator) {
			return fmt.Errorf("%w: %q", ErrBadTag, tag)
		}
		s := NewSimple()
		if err := s.Restore(ss); err != nil {
			return fmt.Errorf("tag %q: %w", tag, err)
		}
		allocators[tag] = s
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocators = allocators
	return nil
}

// SplitID splits a tagged id into its tag and token.
func SplitID(id string) (string, int, error) {
	tag, num, ok := strings.Cut(id, Separator)
	if !ok || strings.Contains(num, Separator) {
		return "", 0, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	return tag, n, nil
}
