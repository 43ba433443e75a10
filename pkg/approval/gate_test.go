package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures proposals for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	proposals []string
}

func (n *recordingNotifier) ProposeApproval(correlationID, description string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.proposals = append(n.proposals, correlationID+": "+description)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.proposals)
}

func TestRequestApproved(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	gate := NewGate(notifier)

	done := make(chan Decision, 1)
	go func() {
		d, err := gate.Request(context.Background(), "req-1", "sess-1", "Delete file a.txt")
		require.NoError(t, err)
		done <- d
	}()

	// Wait for the request to become visible, then approve it.
	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.True(t, gate.Approve("req-1"))

	select {
	case d := <-done:
		assert.Equal(t, Approved, d)
	case <-time.After(time.Second):
		t.Fatal("request did not resolve")
	}

	assert.Empty(t, gate.Pending())
	assert.Equal(t, 1, notifier.count())
}

func TestRequestCancelled(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})

	done := make(chan Decision, 1)
	go func() {
		d, err := gate.Request(context.Background(), "req-2", "sess-1", "Run command: rm -rf build")
		require.NoError(t, err)
		done <- d
	}()

	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.True(t, gate.Cancel("req-2"))

	select {
	case d := <-done:
		assert.Equal(t, Cancelled, d)
	case <-time.After(time.Second):
		t.Fatal("request did not resolve")
	}
}

func TestRequestContextCancellation(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Decision, 1)
	go func() {
		d, err := gate.Request(ctx, "req-3", "sess-1", "Update file main.go")
		require.NoError(t, err)
		done <- d
	}()

	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case d := <-done:
		assert.Equal(t, Cancelled, d)
	case <-time.After(time.Second):
		t.Fatal("request did not resolve after context cancellation")
	}
	assert.Empty(t, gate.Pending())
}

func TestDuplicateCorrelationID(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})

	go func() {
		_, _ = gate.Request(context.Background(), "dup", "sess-1", "first")
	}()
	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	_, err := gate.Request(context.Background(), "dup", "sess-1", "second")
	require.Error(t, err)

	gate.Cancel("dup")
}

func TestResolveUnknownID(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})

	assert.False(t, gate.Approve("ghost"))
	assert.False(t, gate.Cancel("ghost"))
}

func TestResolveIsExactlyOnce(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})

	done := make(chan Decision, 1)
	go func() {
		d, err := gate.Request(context.Background(), "once", "sess-1", "op")
		require.NoError(t, err)
		done <- d
	}()
	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.True(t, gate.Approve("once"))
	// A second resolution of either kind is a no-op.
	assert.False(t, gate.Approve("once"))
	assert.False(t, gate.Cancel("once"))

	assert.Equal(t, Approved, <-done)
}

func TestCancelOwned(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})

	results := make(chan Decision, 2)
	for _, id := range []string{"own-1", "own-2"} {
		id := id
		go func() {
			d, err := gate.Request(context.Background(), id, "sess-gone", "op "+id)
			require.NoError(t, err)
			results <- d
		}()
	}
	go func() {
		d, err := gate.Request(context.Background(), "other", "sess-alive", "op other")
		require.NoError(t, err)
		results <- d
	}()

	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 3
	}, time.Second, 10*time.Millisecond)

	gate.CancelOwned("sess-gone")

	assert.Equal(t, Cancelled, <-results)
	assert.Equal(t, Cancelled, <-results)

	// The other session's request is untouched.
	require.Len(t, gate.Pending(), 1)
	assert.True(t, gate.Approve("other"))
	assert.Equal(t, Approved, <-results)
}

func TestPendingOrderedOldestFirst(t *testing.T) {
	t.Parallel()

	gate := NewGate(LogNotifier{})

	for _, id := range []string{"a", "b", "c"} {
		id := id
		go func() {
			_, _ = gate.Request(context.Background(), id, "sess", "op "+id)
		}()
		require.Eventually(t, func() bool {
			for _, p := range gate.Pending() {
				if p.ID == id {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
	}

	pending := gate.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "b", pending[1].ID)
	assert.Equal(t, "c", pending[2].ID)

	for _, p := range pending {
		gate.Cancel(p.ID)
	}
}
