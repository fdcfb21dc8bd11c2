package scheduler

import "errors"

// Usage errors. These indicate a bug in the caller, not a runtime condition.
var (
	// ErrNotOutstanding is returned when fixing a token that was never issued,
	// or that has already been fixed or rolled back.
	ErrNotOutstanding = errors.New("token is not outstanding")
	// ErrAlreadyFixed is returned when recording a token that is already fixed.
	ErrAlreadyFixed = errors.New("token is already fixed")
	// ErrBadTag is returned for tags containing the id separator.
	ErrBadTag = errors.New("tag must not contain '_'")
	// ErrBadID is returned for composite ids that are not "<tag>_<n>".
	ErrBadID = errors.New("malformed tagged id")
	// ErrUnknownTag is returned when fixing an id whose tag was never used.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrNoTags is returned by the comparison queries of an empty allocator.
	ErrNoTags = errors.New("no tags")
	// ErrUnknownGroup is returned when fixing a token of a group not in the group set.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrInvalidState is returned when restoring a state that breaks the scheduler invariants.
	ErrInvalidState = errors.New("invalid scheduler state")
)
