package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeldAcquiresInOrdinalOrder(t *testing.T) {
	ledger := NewLedger("doc")
	a := NewData("a")
	b := NewData("b")
	require.Less(t, a.Ordinal(), b.Ordinal())

	held := ledger.Acquire()
	require.NoError(t, held.Lock(b, a))
	assert.True(t, held.Holds(a))
	assert.True(t, held.Holds(b))
	assert.Equal(t, []*Data{a, b}, held.data)

	// Already held locks are skipped.
	require.NoError(t, held.Lock(a))
	held.Release()
	held.Release()

	assert.False(t, held.Holds(a))
	assert.ErrorIs(t, held.Lock(a), ErrReleased)
}

func TestHeldRejectsLowerOrdinal(t *testing.T) {
	ledger := NewLedger("doc")
	low := NewData("low")
	high := NewData("high")

	held := ledger.Acquire()
	defer held.Release()
	require.NoError(t, held.Lock(high))

	err := held.Lock(low)
	assert.ErrorIs(t, err, ErrLockOrder)
	assert.False(t, held.Holds(low))

	// The rejected lock must still be free.
	done := make(chan struct{})
	go func() {
		low.Read(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rejected data lock was left locked")
	}
}

func TestReadBlocksWhileHeld(t *testing.T) {
	ledger := NewLedger("doc")
	data := NewData("graph")

	held := ledger.Acquire()
	require.NoError(t, held.Lock(data))

	read := make(chan struct{})
	go func() {
		data.Read(func() {})
		close(read)
	}()

	select {
	case <-read:
		t.Fatal("read completed while data lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	held.Release()
	select {
	case <-read:
	case <-time.After(time.Second):
		t.Fatal("read did not complete after release")
	}
}

func TestLedgerSerializesMutators(t *testing.T) {
	ledger := NewLedger("doc")
	data := NewData("graph")
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held := ledger.Acquire()
			defer held.Release()
			assert.NoError(t, held.Lock(data))
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
	assert.Equal(t, "doc", ledger.Name())
	assert.Equal(t, "graph", data.Name())
}

func TestLockIgnoresNil(t *testing.T) {
	held := NewLedger("doc").Acquire()
	defer held.Release()
	require.NoError(t, held.Lock(nil))
	assert.Empty(t, held.data)
}
