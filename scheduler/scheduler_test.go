package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphmap/model"
)

func testSlots() []Slot {
	return []Slot{
		{ID: 0, Location: "rack-a"},
		{ID: 1, Location: "rack-a"},
		{ID: 2, Location: "rack-b"},
	}
}

func TestAcquirePrefersColocated(t *testing.T) {
	pool, err := NewPool(testSlots())
	require.NoError(t, err)

	ctx := context.Background()

	a, err := pool.Acquire(ctx, "rack-b")
	require.NoError(t, err)
	require.Equal(t, model.SlotID(2), a.Slot().ID)
	require.True(t, a.Colocated())
	a.Release()
}

func TestAcquireTieBreaksByLoadThenID(t *testing.T) {
	pool, err := NewPool(testSlots())
	require.NoError(t, err)
	ctx := context.Background()

	// Both rack-a slots free with equal load: lowest ID wins.
	a0, err := pool.Acquire(ctx, "rack-a")
	require.NoError(t, err)
	require.Equal(t, model.SlotID(0), a0.Slot().ID)
	a0.Release()

	// Slot 0 now carries load 1, so slot 1 is least-loaded.
	a1, err := pool.Acquire(ctx, "rack-a")
	require.NoError(t, err)
	require.Equal(t, model.SlotID(1), a1.Slot().ID)
	a1.Release()

	// Equal load again: back to lowest ID.
	a2, err := pool.Acquire(ctx, "rack-a")
	require.NoError(t, err)
	require.Equal(t, model.SlotID(0), a2.Slot().ID)
	a2.Release()

	require.Equal(t, map[model.SlotID]int{0: 2, 1: 1, 2: 0}, pool.Loads())
}

func TestAcquireFallsBackAfterBoundedWait(t *testing.T) {
	pool, err := NewPool(testSlots(), WithLocalityWait(20*time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	// Occupy the only rack-b slot.
	held, err := pool.Acquire(ctx, "rack-b")
	require.NoError(t, err)
	require.Equal(t, model.SlotID(2), held.Slot().ID)

	// rack-b is hinted but busy: after the bounded wait any slot is taken.
	start := time.Now()
	a, err := pool.Acquire(ctx, "rack-b")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.False(t, a.Colocated())
	require.Equal(t, model.SlotID(0), a.Slot().ID)

	a.Release()
	held.Release()
}

func TestAcquireTakesColocatedTheMomentItFrees(t *testing.T) {
	pool, err := NewPool(testSlots(), WithLocalityWait(time.Second))
	require.NoError(t, err)
	ctx := context.Background()

	held, err := pool.Acquire(ctx, "rack-b")
	require.NoError(t, err)

	done := make(chan *Assignment)
	go func() {
		a, err := pool.Acquire(ctx, "rack-b")
		require.NoError(t, err)
		done <- a
	}()

	time.Sleep(10 * time.Millisecond)
	held.Release()

	select {
	case a := <-done:
		require.True(t, a.Colocated())
		require.Equal(t, model.SlotID(2), a.Slot().ID)
		a.Release()
	case <-time.After(time.Second):
		t.Fatal("acquire did not pick up freed co-located slot")
	}
}

func TestAcquireNoHintTakesAnyFreeSlot(t *testing.T) {
	pool, err := NewPool(testSlots())
	require.NoError(t, err)
	ctx := context.Background()

	a, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	require.Equal(t, model.SlotID(0), a.Slot().ID)
	require.False(t, a.Colocated())
	a.Release()
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	pool, err := NewPool([]Slot{{ID: 0, Location: "rack-a"}})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := pool.Acquire(ctx, "")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(waitCtx, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	a.Release()
	a.Release() // idempotent

	b, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	b.Release()
}

func TestNewPoolRequiresSlots(t *testing.T) {
	_, err := NewPool(nil)
	require.ErrorIs(t, err, ErrNoSlots)
}
