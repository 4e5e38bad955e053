package testutil

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ratelimits/internal/ir"
)

func TestDeterministicClock_StartsAtStart(t *testing.T) {
	clock := NewDeterministicClock(1000, 10)
	assert.Equal(t, ir.Timestamp(1000), clock.Current())
}

func TestDeterministicClock_NextAdvancesByStep(t *testing.T) {
	clock := NewDeterministicClock(1000, 10)

	assert.Equal(t, ir.Timestamp(1010), clock.Next())
	assert.Equal(t, ir.Timestamp(1020), clock.Next())
	assert.Equal(t, ir.Timestamp(1020), clock.Current())
}

func TestDeterministicClock_ZeroStep(t *testing.T) {
	clock := NewDeterministicClock(0, 0)
	assert.Equal(t, ir.Timestamp(1), clock.Next())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(5, 1)
	clock.Next()
	clock.Next()

	clock.Reset()
	assert.Equal(t, ir.Timestamp(5), clock.Current())
	assert.Equal(t, ir.Timestamp(6), clock.Next())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(0, 1)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ir.Timestamp(numGoroutines*callsPerGoroutine), clock.Current())
}

func TestSequentialRandom_Blocks(t *testing.T) {
	r := NewSequentialRandom()

	var buf [16]byte
	_, err := io.ReadFull(r, buf[:])
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", uuid.UUID(buf).String())

	_, err = io.ReadFull(r, buf[:])
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", uuid.UUID(buf).String())
	assert.Equal(t, uint64(2), r.Blocks())
}

func TestSequentialRandom_SplitReads(t *testing.T) {
	r := NewSequentialRandom()

	head := make([]byte, 10)
	tail := make([]byte, 6)
	_, err := r.Read(head)
	require.NoError(t, err)
	_, err = r.Read(tail)
	require.NoError(t, err)

	var block [16]byte
	copy(block[:], append(head, tail...))
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", uuid.UUID(block).String())
	assert.Equal(t, uint64(1), r.Blocks())
}

func TestRepeatRandom(t *testing.T) {
	r := RepeatRandom{Block: [16]byte{15: 7}}

	a := make([]byte, 16)
	b := make([]byte, 16)
	_, _ = r.Read(a)
	_, _ = r.Read(b)
	assert.Equal(t, a, b)
	assert.Equal(t, byte(7), a[15])
}

func TestFailingRandom(t *testing.T) {
	boom := errors.New("entropy exhausted")
	_, err := FailingRandom{Err: boom}.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)
}
