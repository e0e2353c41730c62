package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendQueueHighPriorityFirst(t *testing.T) {
	q := NewSendQueue()
	low := &outbound{frame: []byte("low")}
	high := &outbound{frame: []byte("high")}

	q.Append(low, PriorityLow)
	q.Append(high, PriorityHigh)

	got := q.Remove()
	require.NotNil(t, got)
	assert.Equal(t, high, got)

	got = q.Remove()
	require.NotNil(t, got)
	assert.Equal(t, low, got)
}

func TestSendQueueHasHigh(t *testing.T) {
	q := NewSendQueue()
	assert.False(t, q.HasHigh())
	q.Append(&outbound{}, PriorityLow)
	assert.False(t, q.HasHigh())
	q.Append(&outbound{}, PriorityHigh)
	assert.True(t, q.HasHigh())
}

func TestSendQueueWaitWakesOnAppend(t *testing.T) {
	q := NewSendQueue()
	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before anything was appended")
	case <-time.After(20 * time.Millisecond):
	}

	q.Append(&outbound{}, PriorityLow)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Append")
	}
}

func TestSendQueueCloseWakesWaiters(t *testing.T) {
	q := NewSendQueue()
	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}
	assert.True(t, q.Closed())
	assert.True(t, q.Empty())
}
