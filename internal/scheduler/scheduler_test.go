package scheduler

// ============================================================================
// Scheduler tests
// Covers: issue/fix/rollback accounting, reissue order, tagged comparisons,
// group fairness and limits, snapshot round trips, concurrent issue.
// ============================================================================

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Simple
// ============================================================================

func TestSimpleIssueCountsUp(t *testing.T) {
	s := NewSimple()
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, s.Issue())
	}
	assert.Equal(t, 5, s.CountIssued())
	assert.Equal(t, 0, s.CountFixed())
}

func TestSimpleFixAll(t *testing.T) {
	s := NewSimple()
	const n = 10
	for i := 0; i < n; i++ {
		s.Issue()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, s.Fix(i))
	}
	assert.Equal(t, n, s.CountFixed())
	assert.Equal(t, n, s.CountIssued())
	assert.Empty(t, s.Outstanding())
}

func TestSimpleRollbackReissuesLowestFirst(t *testing.T) {
	s := NewSimple()
	for i := 0; i < 4; i++ {
		s.Issue()
	}
	require.NoError(t, s.Fix(0))
	require.NoError(t, s.Fix(2))

	s.Rollback()
	assert.Equal(t, 2, s.CountIssued())
	assert.Equal(t, 2, s.CountFixed())

	assert.Equal(t, 1, s.Issue())
	assert.Equal(t, 3, s.Issue())
	assert.Equal(t, 4, s.Issue(), "reissue pool drained, so a new token follows")
}

func TestSimpleRollbackAllThenIssue(t *testing.T) {
	s := NewSimple()
	const n = 6
	for i := 0; i < n; i++ {
		s.Issue()
	}
	s.Rollback()
	assert.Equal(t, 0, s.CountIssued())
	assert.Equal(t, 0, s.Issue())

	// Rolling back again with only token 0 outstanding.
	s.Rollback()
	s.Rollback()
	assert.Equal(t, 0, s.CountIssued())
}

func TestSimpleRollbackReturnsSmallestFirst(t *testing.T) {
	s := NewSimple()
	const n = 7
	for i := 0; i < n; i++ {
		s.Issue()
	}
	assert.Equal(t, n, s.CountIssued())
	s.Rollback()
	assert.Equal(t, 0, s.Issue(), "smallest previously-outstanding token comes back first")
}

func TestSimpleFixErrors(t *testing.T) {
	s := NewSimple()
	assert.ErrorIs(t, s.Fix(0), ErrNotOutstanding)

	tok := s.Issue()
	require.NoError(t, s.Fix(tok))
	assert.ErrorIs(t, s.Fix(tok), ErrNotOutstanding, "double fix")

	tok = s.Issue()
	s.Rollback()
	assert.ErrorIs(t, s.Fix(tok), ErrNotOutstanding, "fix after rollback")
}

func TestSimpleRecordRebuildsFromLog(t *testing.T) {
	s := NewSimple()

	// Token 2 finished before anything was saved: 0 and 1 await reissue.
	require.NoError(t, s.Record(2))
	assert.Equal(t, SimpleState{NextNew: 3, Outstanding: []int{}, ToReissue: []int{0, 1}}, s.State())
	assert.Equal(t, 1, s.CountFixed())

	require.NoError(t, s.Record(0))
	assert.Equal(t, 1, s.Issue())
	require.NoError(t, s.Record(1))
	assert.Equal(t, 3, s.CountFixed())

	assert.ErrorIs(t, s.Record(2), ErrAlreadyFixed)
	assert.ErrorIs(t, s.Record(-1), ErrInvalidState)
	assert.Equal(t, 3, s.Issue())
}

func TestSimpleRandomSequenceInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewSimple()
	for step := 0; step < 2000; step++ {
		switch rng.Intn(4) {
		case 0, 1:
			s.Issue()
		case 2:
			if out := s.Outstanding(); len(out) > 0 {
				require.NoError(t, s.Fix(out[rng.Intn(len(out))]))
			}
		case 3:
			s.Rollback()
		}

		st := s.State()
		require.NoError(t, st.Validate())
		assert.LessOrEqual(t, s.CountFixed(), s.CountIssued())
		assert.LessOrEqual(t, s.CountIssued(), st.NextNew)
	}
}

func TestSimpleStateRoundTripIsByteIdentical(t *testing.T) {
	s := NewSimple()
	for i := 0; i < 8; i++ {
		s.Issue()
	}
	require.NoError(t, s.Fix(3))
	s.Rollback()
	s.Issue()
	s.Issue()

	first, err := json.Marshal(s.State())
	require.NoError(t, err)

	var st SimpleState
	require.NoError(t, json.Unmarshal(first, &st))
	restored := NewSimple()
	require.NoError(t, restored.Restore(st))

	second, err := json.Marshal(restored.State())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, s.Issue(), restored.Issue())
}

func TestSimpleRestoreRejectsBrokenInvariants(t *testing.T) {
	cases := map[string]SimpleState{
		"overlap":          {NextNew: 3, Outstanding: []int{1}, ToReissue: []int{1}},
		"reissue too high": {NextNew: 2, ToReissue: []int{2}},
		"negative":         {NextNew: -1},
	}
	for name, st := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewSimple()
			assert.ErrorIs(t, s.Restore(st), ErrInvalidState)
			assert.Equal(t, 0, s.Issue(), "state untouched after failed restore")
		})
	}
}

func TestSimpleConcurrentIssueNeverDuplicates(t *testing.T) {
	s := NewSimple()
	const goroutines, perG = 8, 200

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				tok := s.Issue()
				mu.Lock()
				assert.False(t, seen[tok], "token %d issued twice", tok)
				seen[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perG)
}

// ============================================================================
// TaggedAllocator
// ============================================================================

func TestTaggedIssueAndFix(t *testing.T) {
	a := NewTaggedAllocator()
	id, err := a.Issue("x")
	require.NoError(t, err)
	assert.Equal(t, "x_0", id)

	id, err = a.Issue("x")
	require.NoError(t, err)
	assert.Equal(t, "x_1", id)

	require.NoError(t, a.Fix("x_1"))
	assert.ErrorIs(t, a.Fix("x_1"), ErrNotOutstanding)
	assert.ErrorIs(t, a.Fix("y_0"), ErrUnknownTag)
	assert.ErrorIs(t, a.Fix("nonsense"), ErrBadID)
	assert.ErrorIs(t, a.Fix("x_abc"), ErrBadID)
}

func TestTaggedRejectsSeparatorInTag(t *testing.T) {
	a := NewTaggedAllocator()
	_, err := a.Issue("a_b")
	assert.ErrorIs(t, err, ErrBadTag)
	assert.ErrorIs(t, a.AddTag("a_b"), ErrBadTag)
}

func TestTaggedComparisonTieBreaks(t *testing.T) {
	a := NewTaggedAllocator()
	_, _, err := a.LowestIssued()
	assert.ErrorIs(t, err, ErrNoTags)

	require.NoError(t, a.AddTag("x"))
	require.NoError(t, a.AddTag("y"))

	tag, n, err := a.LowestIssued()
	require.NoError(t, err)
	assert.Equal(t, "x", tag)
	assert.Equal(t, 0, n)

	tag, n, err = a.HighestIssued()
	require.NoError(t, err)
	assert.Equal(t, "y", tag)
	assert.Equal(t, 0, n)

	_, err = a.Issue("x")
	require.NoError(t, err)
	tag, n, err = a.LowestIssued()
	require.NoError(t, err)
	assert.Equal(t, "y", tag)
	assert.Equal(t, 0, n)
	tag, n, err = a.HighestIssued()
	require.NoError(t, err)
	assert.Equal(t, "x", tag)
	assert.Equal(t, 1, n)

	require.NoError(t, a.Fix("x_0"))
	tag, n, err = a.HighestFixed()
	require.NoError(t, err)
	assert.Equal(t, "x", tag)
	assert.Equal(t, 1, n)
	tag, n, err = a.LowestFixed()
	require.NoError(t, err)
	assert.Equal(t, "y", tag)
	assert.Equal(t, 0, n)
}

func TestTaggedRollbackAndRestore(t *testing.T) {
	a := NewTaggedAllocator()
	for i := 0; i < 3; i++ {
		_, err := a.Issue("m")
		require.NoError(t, err)
	}
	require.NoError(t, a.Fix("m_0"))
	a.Rollback()

	data, err := json.Marshal(a.State())
	require.NoError(t, err)

	var st TaggedState
	require.NoError(t, json.Unmarshal(data, &st))
	b := NewTaggedAllocator()
	require.NoError(t, b.Restore(st))

	id, err := b.Issue("m")
	require.NoError(t, err)
	assert.Equal(t, "m_1", id)
}

// ============================================================================
// GroupScheduler
// ============================================================================

func TestGroupIssueFairness(t *testing.T) {
	g := NewGroupScheduler[string]()
	g.SetGroups([]GroupSpec[string]{{Code: "b"}, {Code: "a"}})

	var got []string
	for i := 0; i < 4; i++ {
		code, tok, ok := g.Issue()
		require.True(t, ok)
		got = append(got, code)
		assert.Equal(t, i/2, tok)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}

func TestGroupLimitBlocksGroup(t *testing.T) {
	g := NewGroupScheduler[string]()
	g.SetGroups([]GroupSpec[string]{
		{Code: "a", Limit: Limit(2)},
		{Code: "b"},
	})

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		code, _, ok := g.Issue()
		require.True(t, ok)
		counts[code]++
	}
	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 8, counts["b"])

	// Rolling back frees a's tokens, so a is eligible again.
	g.Rollback()
	code, tok, ok := g.Issue()
	require.True(t, ok)
	assert.Equal(t, "a", code)
	assert.Equal(t, 0, tok)
}

func TestGroupNothingToIssue(t *testing.T) {
	g := NewGroupScheduler[int]()
	_, _, ok := g.Issue()
	assert.False(t, ok, "no groups")

	g.SetGroups([]GroupSpec[int]{{Code: 1, Limit: Limit(1)}, {Code: 2, Limit: Limit(0)}})
	code, tok, ok := g.Issue()
	require.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Equal(t, 0, tok)

	_, _, ok = g.Issue()
	assert.False(t, ok)

	require.NoError(t, g.Fix(1, 0))
	_, _, ok = g.Issue()
	assert.False(t, ok, "fixed tokens still count against the limit")
}

func TestGroupSetGroupsKeepsHistory(t *testing.T) {
	g := NewGroupScheduler[string]()
	g.SetGroups([]GroupSpec[string]{{Code: "a"}, {Code: "b"}})
	for i := 0; i < 4; i++ {
		g.Issue()
	}
	require.NoError(t, g.Fix("a", 0))

	g.SetGroups([]GroupSpec[string]{{Code: "a", Limit: Limit(5)}, {Code: "c"}})
	groups := g.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Code)
	assert.Equal(t, 2, groups[0].Issued)
	assert.Equal(t, 1, groups[0].Fixed)
	assert.Equal(t, 5, *groups[0].Limit)
	assert.Equal(t, "c", groups[1].Code)
	assert.Equal(t, 0, groups[1].Issued)

	assert.ErrorIs(t, g.Fix("b", 0), ErrUnknownGroup)
}

func TestGroupRecord(t *testing.T) {
	g := NewGroupScheduler[string]()
	g.SetGroups([]GroupSpec[string]{{Code: "a", Limit: Limit(2)}})

	require.NoError(t, g.Record("a", 1))
	assert.ErrorIs(t, g.Record("b", 0), ErrUnknownGroup)

	code, token, ok := g.Issue()
	require.True(t, ok)
	assert.Equal(t, "a", code)
	assert.Equal(t, 0, token)
	require.NoError(t, g.Fix("a", 0))

	_, _, ok = g.Issue()
	assert.False(t, ok)
}

func TestGroupStateRoundTrip(t *testing.T) {
	g := NewGroupScheduler[string]()
	g.SetGroups([]GroupSpec[string]{{Code: "m1", Limit: Limit(3)}, {Code: "m0"}})
	for i := 0; i < 5; i++ {
		g.Issue()
	}
	require.NoError(t, g.Fix("m0", 0))

	first, err := json.Marshal(g.State())
	require.NoError(t, err)

	var st GroupState[string]
	require.NoError(t, json.Unmarshal(first, &st))
	h := NewGroupScheduler[string]()
	require.NoError(t, h.Restore(st))

	second, err := json.Marshal(h.State())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	c1, t1, ok1 := g.Issue()
	c2, t2, ok2 := h.Issue()
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, t1, t2)
}
