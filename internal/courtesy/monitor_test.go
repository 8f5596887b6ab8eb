package courtesy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUntilAllowedReturnsImmediatelyWhenAllowed(t *testing.T) {
	m := New(true)
	done := make(chan struct{})
	go func() {
		m.WaitUntilAllowed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilAllowed blocked despite allowed=true")
	}
}

func TestWaitUntilAllowedBlocksThenWakesOnSetAllowed(t *testing.T) {
	m := New(false)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.WaitUntilAllowed()
	}()

	// Give the waiter a moment to actually block.
	time.Sleep(20 * time.Millisecond)
	m.SetAllowed(true)

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by SetAllowed(true)")
	}
	require.True(t, m.Allowed())
}
