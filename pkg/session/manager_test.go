package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainFactory(id string) *Session {
	return New(id, nil)
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	m := NewManager(plainFactory, 0)
	defer m.Stop()

	const n = 50
	var (
		mu  sync.Mutex
		ids = make(map[string]bool, n)
		wg  sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := m.Create()
			require.NoError(t, err)
			mu.Lock()
			ids[sess.ID()] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, n, "every session id must be distinct")
	assert.Equal(t, n, m.Count())
}

// Mutates the newSessionID seam, so it must not run in parallel.
func TestCreateCollisionConstructsNoOrphanSession(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	var next int
	orig := newSessionID
	newSessionID = func() string {
		id := ids[next]
		next++
		return id
	}
	t.Cleanup(func() { newSessionID = orig })

	var factoryCalls []string
	m := NewManager(func(id string) *Session {
		factoryCalls = append(factoryCalls, id)
		return New(id, nil)
	}, 0)
	defer m.Stop()

	first, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, "dup", first.ID())

	second, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, "fresh", second.ID())

	// The colliding id is rejected before the factory runs, so no session
	// (and none of its registrations) exists to clean up.
	assert.Equal(t, []string{"dup", "fresh"}, factoryCalls)
	assert.Equal(t, 2, m.Count())
}

func TestGetTouchesSession(t *testing.T) {
	t.Parallel()

	m := NewManager(plainFactory, 0)
	defer m.Stop()

	sess, err := m.Create()
	require.NoError(t, err)

	before := sess.UpdatedAt()
	time.Sleep(10 * time.Millisecond)

	got, ok := m.Get(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.True(t, got.UpdatedAt().After(before))

	_, ok = m.Get("unknown")
	assert.False(t, ok)
}

func TestDeleteIsNotIdempotent(t *testing.T) {
	t.Parallel()

	m := NewManager(plainFactory, 0)
	defer m.Stop()

	sess, err := m.Create()
	require.NoError(t, err)

	assert.True(t, m.Delete(sess.ID()))
	assert.False(t, m.Delete(sess.ID()), "second delete reports the session as unknown")

	select {
	case <-sess.Done():
	default:
		t.Fatal("deleted session was not closed")
	}
}

func TestCloseHooksRunOnce(t *testing.T) {
	t.Parallel()

	m := NewManager(plainFactory, 0)
	defer m.Stop()

	sess, err := m.Create()
	require.NoError(t, err)

	var calls int
	sess.OnClose(func() { calls++ })

	sess.Close()
	sess.Close()
	assert.Equal(t, 1, calls)

	// Hooks registered after close run immediately.
	var late bool
	sess.OnClose(func() { late = true })
	assert.True(t, late)
}

func TestTTLReapsIdleSessions(t *testing.T) {
	t.Parallel()

	m := NewManager(plainFactory, 50*time.Millisecond)
	defer m.Stop()

	sess, err := m.Create()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Count() == 0
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case <-sess.Done():
	default:
		t.Fatal("expired session was not closed")
	}
}

func TestStopClosesAllSessions(t *testing.T) {
	t.Parallel()

	m := NewManager(plainFactory, 0)

	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)

	m.Stop()

	assert.Equal(t, 0, m.Count())
	for _, sess := range []*Session{a, b} {
		select {
		case <-sess.Done():
		default:
			t.Fatal("session not closed on manager stop")
		}
	}
}

func TestSessionInitializedLifecycle(t *testing.T) {
	t.Parallel()

	sess := New("abc", nil)
	assert.False(t, sess.Initialized())
	sess.Initialize()
	assert.True(t, sess.Initialized())
	assert.Equal(t, "abc", sess.SessionID())
}
