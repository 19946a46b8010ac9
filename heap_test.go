package timerqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_PollOrdering(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.Insert(3, "c")
	require.NoError(t, err)
	_, err = h.Insert(1, "a")
	require.NoError(t, err)
	_, err = h.Insert(2, "b")
	require.NoError(t, err)
	validateHeap(t, h)

	var payloads []string
	for it := h.Poll(); it != nil; it = h.Poll() {
		payloads = append(payloads, it.Payload)
		validateHeap(t, h)
	}
	assert.Equal(t, []string{"a", "b", "c"}, payloads)
	assert.True(t, h.Empty())
	assert.Zero(t, h.Len())
}

func TestHeap_PollSortsEveryPermutation(t *testing.T) {
	priorities := []int{5, 1, 4, 2, 3}

	var permute func(n int, perm []int)
	permute = func(n int, perm []int) {
		if n == 1 {
			h := NewHeap[int, int]()
			for _, p := range perm {
				_, err := h.Insert(p, p)
				require.NoError(t, err)
			}
			validateHeap(t, h)

			var got []int
			for it := h.Poll(); it != nil; it = h.Poll() {
				got = append(got, it.Priority)
				validateHeap(t, h)
			}
			assert.Equal(t, []int{1, 2, 3, 4, 5}, got, "permutation %v", perm)
			return
		}
		for i := 0; i < n; i++ {
			permute(n-1, perm)
			if n%2 == 0 {
				perm[i], perm[n-1] = perm[n-1], perm[i]
			} else {
				perm[0], perm[n-1] = perm[n-1], perm[0]
			}
		}
	}
	permute(len(priorities), priorities)
}

func TestHeap_PeekIsMinimumAndNonDestructive(t *testing.T) {
	h := NewHeap[string, int]()
	require.Nil(t, h.Peek())
	require.Nil(t, h.PeekItem())

	_, err := h.Insert(10, "x")
	require.NoError(t, err)
	_, err = h.Insert(5, "y")
	require.NoError(t, err)

	peeked := h.Peek()
	require.NotNil(t, peeked)
	assert.Equal(t, "y", peeked.Payload())

	it := h.PeekItem()
	require.NotNil(t, it)
	assert.Equal(t, 5, it.Priority)
	assert.Equal(t, 2, h.Len())
}

func TestHeap_InsertDuplicateID(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.InsertWithID(`k`, 1, "x")
	require.NoError(t, err)

	_, err = h.InsertWithID(`k`, 2, "y")
	require.ErrorIs(t, err, ErrDuplicateID)

	// The prior entry is unaffected.
	assert.Equal(t, 1, h.Len())
	it := h.Poll()
	require.NotNil(t, it)
	assert.Equal(t, "x", it.Payload)
}

func TestHeap_InsertDuplicatePayload(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.Insert(1, "x")
	require.NoError(t, err)

	_, err = h.Insert(2, "x")
	require.ErrorIs(t, err, ErrDuplicatePayload)
	assert.Equal(t, 1, h.Len())
}

func TestHeap_FailedInsertWithIDLeavesNoRegistration(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.InsertWithID(`k`, 1, "x")
	require.NoError(t, err)

	_, err = h.InsertWithID(`k`, 2, "y")
	require.ErrorIs(t, err, ErrDuplicateID)

	// The rejected payload must not linger in either index.
	assert.False(t, h.Has(ByPayload("y")))
	_, err = h.Insert(3, "y")
	require.NoError(t, err)
	validateHeap(t, h)
}

func TestHeap_RemoveByEachRefKind(t *testing.T) {
	h := NewHeap[string, int]()

	ha, err := h.InsertWithID(`a`, 1, "pa")
	require.NoError(t, err)
	_, err = h.InsertWithID(`b`, 2, "pb")
	require.NoError(t, err)
	_, err = h.InsertWithID(`c`, 3, "pc")
	require.NoError(t, err)

	it := h.Remove(ByID[string](`b`))
	require.NotNil(t, it)
	assert.Equal(t, "pb", it.Payload)
	validateHeap(t, h)

	it = h.Remove(ByPayload("pc"))
	require.NotNil(t, it)
	assert.Equal(t, 3, it.Priority)
	validateHeap(t, h)

	it = h.Remove(ByHandle(ha))
	require.NotNil(t, it)
	assert.Equal(t, "pa", it.Payload)
	assert.True(t, h.Empty())
}

func TestHeap_RemoveMissReturnsNil(t *testing.T) {
	h := NewHeap[string, int]()
	assert.Nil(t, h.Remove(ByID[string](`absent`)))
	assert.Nil(t, h.Remove(Ref[string]{}))
}

func TestHeap_RemoveStaleHandleIsMiss(t *testing.T) {
	h := NewHeap[string, int]()

	hd, err := h.Insert(1, "x")
	require.NoError(t, err)
	require.NotNil(t, h.Poll())

	assert.Nil(t, h.Remove(ByHandle(hd)))
}

func TestHeap_RemoveInterior(t *testing.T) {
	h := NewHeap[int, int]()
	for i := 1; i <= 16; i++ {
		_, err := h.Insert(i, i)
		require.NoError(t, err)
	}
	// Force structure: poll once so children get combined.
	require.Equal(t, 1, h.Poll().Priority)
	validateHeap(t, h)

	require.NotNil(t, h.Remove(ByPayload(9)))
	validateHeap(t, h)
	require.NotNil(t, h.Remove(ByPayload(3)))
	validateHeap(t, h)

	var got []int
	for it := h.Poll(); it != nil; it = h.Poll() {
		got = append(got, it.Priority)
		validateHeap(t, h)
	}
	assert.Equal(t, []int{2, 4, 5, 6, 7, 8, 10, 11, 12, 13, 14, 15, 16}, got)
}

func TestHeap_InsertRemoveRoundTrip(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.Insert(1, "keep")
	require.NoError(t, err)

	hd, err := h.Insert(2, "transient")
	require.NoError(t, err)
	require.NotNil(t, h.Remove(ByHandle(hd)))

	assert.Equal(t, 1, h.Len())
	assert.False(t, h.Has(ByPayload("transient")))
	assert.Equal(t, "keep", h.Peek().Payload())
	validateHeap(t, h)
}

func TestHeap_RemoveThenReinsertSameID(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.InsertWithID(`k`, 1, "x")
	require.NoError(t, err)

	it := h.Remove(ByID[string](`k`))
	require.NotNil(t, it)
	assert.Equal(t, "x", it.Payload)
	assert.False(t, h.Has(ByID[string](`k`)))

	_, err = h.InsertWithID(`k`, 5, "z")
	require.NoError(t, err)
	assert.Equal(t, "z", h.Peek().Payload())
}

func TestHeap_SetPriorityEqualIsNoOp(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.InsertWithID(`k`, 7, "x")
	require.NoError(t, err)

	u, err := h.SetPriority(ByID[string](`k`), 7)
	require.NoError(t, err)
	assert.Nil(t, u)

	// Idempotent: a repeat reports the same no-op.
	u, err = h.SetPriority(ByID[string](`k`), 7)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestHeap_SetPriorityDecreaseKeepsHandle(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.Insert(1, "root")
	require.NoError(t, err)
	hd, err := h.Insert(10, "x")
	require.NoError(t, err)

	u, err := h.SetPriority(ByHandle(hd), 0)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, 10, u.Before.Priority)
	assert.Equal(t, 0, u.After.Priority)
	assert.Same(t, hd, u.After.Handle)
	validateHeap(t, h)

	assert.Same(t, hd, h.Peek())
	assert.True(t, h.Has(ByHandle(hd)))
}

func TestHeap_SetPriorityDecreaseOnRoot(t *testing.T) {
	h := NewHeap[string, int]()

	hd, err := h.Insert(5, "x")
	require.NoError(t, err)
	_, err = h.Insert(7, "y")
	require.NoError(t, err)

	u, err := h.SetPriority(ByHandle(hd), 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Same(t, hd, h.Peek())
	validateHeap(t, h)
}

func TestHeap_SetPriorityIncreaseIssuesNewHandle(t *testing.T) {
	h := NewHeap[string, int]()

	hx, err := h.InsertWithID(`x`, 10, "X")
	require.NoError(t, err)
	_, err = h.InsertWithID(`y`, 20, "Y")
	require.NoError(t, err)

	u, err := h.SetPriority(ByID[string](`x`), 30)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Same(t, hx, u.Before.Handle)
	assert.NotSame(t, hx, u.After.Handle)
	validateHeap(t, h)

	// The id survives on the replacement handle; the old handle is stale.
	id, ok := u.After.Handle.ID()
	require.True(t, ok)
	assert.Equal(t, `x`, id)
	_, err = h.Get(ByHandle(hx))
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.False(t, h.Has(ByHandle(hx)))
	assert.True(t, h.Has(ByID[string](`x`)))

	it := h.Poll()
	require.NotNil(t, it)
	assert.Equal(t, "Y", it.Payload)
	assert.Equal(t, 20, it.Priority)

	it = h.Poll()
	require.NotNil(t, it)
	assert.Equal(t, "X", it.Payload)
	assert.Equal(t, 30, it.Priority)
}

func TestHeap_SetPriorityUnknownRef(t *testing.T) {
	h := NewHeap[string, int]()

	_, err := h.SetPriority(ByID[string](`missing`), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHeap_SetPriorityStaleHandle(t *testing.T) {
	h := NewHeap[string, int]()

	hd, err := h.Insert(1, "x")
	require.NoError(t, err)
	require.NotNil(t, h.Poll())

	_, err = h.SetPriority(ByHandle(hd), 2)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestHeap_Clear(t *testing.T) {
	h := NewHeap[int, int]()
	for i := 0; i < 8; i++ {
		_, err := h.Insert(i, i)
		require.NoError(t, err)
	}

	assert.Equal(t, 8, h.Clear())
	assert.True(t, h.Empty())
	assert.Zero(t, h.Len())
	assert.Nil(t, h.Peek())
	assert.Zero(t, h.Clear())
	validateHeap(t, h)

	// Reusable after clearing.
	_, err := h.Insert(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())
}

func TestHeap_SizeTracksOperations(t *testing.T) {
	h := NewHeap[int, int]()

	inserted, removed := 0, 0
	for i := 0; i < 32; i++ {
		_, err := h.Insert(i, i)
		require.NoError(t, err)
		inserted++
	}
	for i := 0; i < 8; i++ {
		require.NotNil(t, h.Poll())
		removed++
	}
	for i := 10; i < 14; i++ {
		if h.Remove(ByPayload(i)) != nil {
			removed++
		}
	}
	assert.Equal(t, inserted-removed, h.Len())
	removed += h.Clear()
	assert.Equal(t, inserted-removed, h.Len())
	assert.Zero(t, h.Len())
}

func TestHeap_AllYieldsEveryEntry(t *testing.T) {
	h := NewHeap[string, int]()
	_, err := h.InsertWithID(`a`, 1, "pa")
	require.NoError(t, err)
	_, err = h.Insert(2, "pb")
	require.NoError(t, err)

	got := make(map[string]bool)
	for hd, payload := range h.All() {
		assert.Equal(t, payload, hd.Payload())
		got[payload] = true
	}
	assert.Equal(t, map[string]bool{"pa": true, "pb": true}, got)
}

func TestHeap_CustomComparator(t *testing.T) {
	// Max-heap via inverted comparison.
	h := NewHeapFunc[string](func(a, b int) int { return b - a })

	for i, payload := range []string{"low", "mid", "high"} {
		_, err := h.Insert(i, payload)
		require.NoError(t, err)
	}

	var got []string
	for it := h.Poll(); it != nil; it = h.Poll() {
		got = append(got, it.Payload)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, got)
}

func TestNewHeapFunc_NilComparatorPanics(t *testing.T) {
	assert.PanicsWithValue(t, `timerqueue: nil comparator`, func() {
		NewHeapFunc[string, int](nil)
	})
}

func TestHeap_GetAndHas(t *testing.T) {
	h := NewHeap[string, int]()

	hd, err := h.InsertWithID(`k`, 1, "x")
	require.NoError(t, err)

	got, err := h.Get(ByID[string](`k`))
	require.NoError(t, err)
	assert.Same(t, hd, got)

	got, err = h.Get(ByPayload("x"))
	require.NoError(t, err)
	assert.Same(t, hd, got)

	got, err = h.Get(ByHandle(hd))
	require.NoError(t, err)
	assert.Same(t, hd, got)

	got, err = h.Get(ByID[string](`other`))
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.True(t, h.Has(ByID[string](`k`)))
	assert.False(t, h.Has(ByID[string](`other`)))
}
