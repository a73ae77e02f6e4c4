package chainlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AppendAssignsIncreasingSequences(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		entry, err := log.Append(ctx, []byte(fmt.Sprintf("payload-%d", i)))
		require.NoError(t, err)
		assert.Greater(t, entry.Sequence, last)
		last = entry.Sequence
	}

	assert.Equal(t, 5, log.Len())
}

func TestMemory_ReadAllReturnsSequenceOrder(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, []byte(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
	}

	entries, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Sequence)
		assert.Equal(t, fmt.Sprintf("p%d", i), string(e.Payload))
	}
}

func TestMemory_ReadAllIsASnapshot(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	_, err := log.Append(ctx, []byte("original"))
	require.NoError(t, err)

	entries, err := log.ReadAll(ctx)
	require.NoError(t, err)

	// Appends after a read never disturb earlier snapshots.
	_, err = log.Append(ctx, []byte("second"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The stored payload is a copy of the caller's buffer.
	buf := []byte("mutable")
	_, err = log.Append(ctx, buf)
	require.NoError(t, err)
	buf[0] = 'X'

	all, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mutable", string(all[2].Payload))
}

func TestMemory_ConcurrentAppends(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(ctx, []byte("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, n)

	seen := make(map[uint64]bool, n)
	for _, e := range entries {
		assert.False(t, seen[e.Sequence], "duplicate sequence %d", e.Sequence)
		seen[e.Sequence] = true
	}
}

func TestMemory_InjectedFailures(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()

	appendErr := errors.New("append down")
	log.FailAppends(appendErr)
	_, err := log.Append(ctx, []byte("x"))
	assert.ErrorIs(t, err, appendErr)

	log.FailAppends(nil)
	_, err = log.Append(ctx, []byte("x"))
	require.NoError(t, err)

	// Reads fail exactly n times, then recover on their own.
	readErr := errors.New("read down")
	log.FailReads(2, readErr)
	_, err = log.ReadAll(ctx)
	assert.ErrorIs(t, err, readErr)
	_, err = log.ReadAll(ctx)
	assert.ErrorIs(t, err, readErr)

	entries, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemory_CancelledContext(t *testing.T) {
	log := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := log.Append(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = log.ReadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
