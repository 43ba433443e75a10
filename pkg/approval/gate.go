// Package approval implements the human-in-the-loop gate that suspends
// destructive tool calls until the user approves or cancels them.
package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dockhand-sh/dockhand/pkg/logger"
	"github.com/dockhand-sh/dockhand/pkg/telemetry"
)

// Decision is the outcome of an approval request.
type Decision int

const (
	// Approved means the user confirmed the operation may proceed.
	Approved Decision = iota
	// Cancelled means the user declined, or the owning request stream went
	// away before a decision arrived. Cancellation is a benign outcome,
	// not a failure.
	Cancelled
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Notifier is the UI-layer surface the gate pokes, fire-and-forget, when a
// new approval is pending. Resolution comes back through Approve/Cancel.
type Notifier interface {
	ProposeApproval(correlationID, description string)
}

// LogNotifier surfaces pending approvals through the process log. It is the
// default notifier for headless runs, where the user resolves approvals via
// the local HTTP endpoints.
type LogNotifier struct{}

// ProposeApproval logs the pending approval with its correlation id.
func (LogNotifier) ProposeApproval(correlationID, description string) {
	logger.Infow("approval required", "correlation_id", correlationID, "description", description)
}

// Pending describes one outstanding approval request.
type Pending struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type pendingRecord struct {
	owner       string
	description string
	created     time.Time
	// decision is buffered so resolve never blocks; each record receives
	// exactly one value because resolve pops the record under the lock.
	decision chan Decision
}

// Gate correlates pending destructive operations with asynchronous user
// decisions. At most one pending record exists per correlation id, and each
// record is resolved exactly once by whichever of approve, cancel or
// stream-cancellation fires first.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*pendingRecord
	notifier Notifier
}

// NewGate creates an approval gate that announces pending requests through
// the given notifier. A nil notifier is allowed; requests then only surface
// through Pending().
func NewGate(notifier Notifier) *Gate {
	return &Gate{
		pending:  make(map[string]*pendingRecord),
		notifier: notifier,
	}
}

// Request registers a pending approval and suspends the calling goroutine
// until the gate resolves it. owner ties the record to the session whose
// request stream initiated it, so closing that session cancels the record.
// Cancellation of ctx resolves the request as Cancelled rather than leaking
// a pending record.
func (g *Gate) Request(ctx context.Context, correlationID, owner, description string) (Decision, error) {
	rec := &pendingRecord{
		owner:       owner,
		description: description,
		created:     time.Now(),
		decision:    make(chan Decision, 1),
	}

	g.mu.Lock()
	if _, exists := g.pending[correlationID]; exists {
		g.mu.Unlock()
		return Cancelled, fmt.Errorf("approval %q is already pending", correlationID)
	}
	g.pending[correlationID] = rec
	g.mu.Unlock()

	if g.notifier != nil {
		go g.notifier.ProposeApproval(correlationID, description)
	}

	select {
	case d := <-rec.decision:
		return d, nil
	case <-ctx.Done():
		// The owning stream went away. Resolve as cancelled unless a
		// decision raced in first; either way the buffered channel holds
		// exactly one value by now.
		g.resolve(correlationID, Cancelled)
		return <-rec.decision, nil
	}
}

// Approve resolves a pending approval as Approved. A second signal for an
// already-resolved id is a no-op; the return value reports whether a record
// was actually resolved.
func (g *Gate) Approve(correlationID string) bool {
	return g.resolve(correlationID, Approved)
}

// Cancel resolves a pending approval as Cancelled. A second signal for an
// already-resolved id is a no-op.
func (g *Gate) Cancel(correlationID string) bool {
	return g.resolve(correlationID, Cancelled)
}

// CancelOwned cancels every pending approval tied to the given owner. Used
// when a session closes so its records do not outlive it.
func (g *Gate) CancelOwned(owner string) {
	g.mu.Lock()
	var ids []string
	for id, rec := range g.pending {
		if rec.owner == owner {
			ids = append(ids, id)
		}
	}
	g.mu.Unlock()

	for _, id := range ids {
		g.resolve(id, Cancelled)
	}
}

// Pending lists outstanding approvals, oldest first.
func (g *Gate) Pending() []Pending {
	g.mu.Lock()
	out := make([]Pending, 0, len(g.pending))
	for id, rec := range g.pending {
		out = append(out, Pending{ID: id, Description: rec.description, CreatedAt: rec.created})
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (g *Gate) resolve(correlationID string, d Decision) bool {
	g.mu.Lock()
	rec, ok := g.pending[correlationID]
	if ok {
		delete(g.pending, correlationID)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}
	rec.decision <- d
	telemetry.ApprovalDecisions.WithLabelValues(d.String()).Inc()
	logger.Debugw("approval resolved", "correlation_id", correlationID, "decision", d.String())
	return true
}
