// Package confirm implements the per-user confirmation gate for destructive
// actions.
//
// When a feature returns a deferred action instead of a plain reply, the
// gate holds it as the user's single PendingAction and the deferral's prompt
// becomes the turn's reply. The user's next message is then resolved
// semantically (affirmative, negative, or unclear) before any ordinary
// routing happens. Affirmation executes the action exactly once; negation
// discards it without executing. Either way the gate returns to Idle.
//
// Unclear replies are a documented design choice: the message falls through
// to normal routing for that one turn while the pending action stays alive,
// so "wait, what's on my calendar first?" doesn't silently cancel a pending
// rename. A fresh deferred action from any later turn overwrites the old one
// (last-wins, the old action is never executed), and pending actions expire
// after a staleness TTL.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
)

// DefaultTTL is how long a pending action survives without a resolving
// message before it is lazily discarded.
const DefaultTTL = 5 * time.Minute

// CancelledMessage is the acknowledgment sent when the user declines a
// pending action.
const CancelledMessage = "Cancelled — I won't make that change."

// ActionFailedMessage is the terse reply sent when a confirmed action fails.
// The pending action is cleared regardless, so the gate never sticks.
const ActionFailedMessage = "Sorry, that action failed while I was carrying it out. Nothing is left pending."

// Verdict is the semantic classification of a reply to a confirmation prompt.
type Verdict string

const (
	VerdictAffirmative Verdict = "affirmative"
	VerdictNegative    Verdict = "negative"
	VerdictUnclear     Verdict = "unclear"
)

// Resolver classifies a follow-up message as affirmative, negative, or
// unclear. Classification is semantic ("yep", "go ahead", "actually no"
// all resolve correctly), so implementations consult the oracle rather than
// matching literal strings.
type Resolver interface {
	ClassifyConfirmation(ctx context.Context, message string) (Verdict, error)
}

// PendingAction is one deferred mutation awaiting the user's verdict.
// At most one exists per user at any time.
type PendingAction struct {
	// ID uniquely identifies this pending action instance.
	ID string

	// UserID is the user whose confirmation is awaited.
	UserID string

	// CreatedAt is when the action was deferred.
	CreatedAt time.Time

	// Prompt is the confirmation question that was shown to the user.
	Prompt string

	execute func(ctx context.Context) (string, error)
}

// OutcomeKind describes how a Resolve call concluded.
type OutcomeKind int

const (
	// OutcomeExecuted: the user affirmed; the action ran (successfully or
	// not) and the gate is Idle again.
	OutcomeExecuted OutcomeKind = iota

	// OutcomeCancelled: the user declined; the action was discarded without
	// executing and the gate is Idle again.
	OutcomeCancelled

	// OutcomeUnclear: the message was neither clearly affirmative nor
	// negative. The action stays pending; the caller should route the
	// message normally.
	OutcomeUnclear

	// OutcomeDegraded: the yes/no oracle call failed. The action stays
	// pending and the caller should surface the degraded-service reply.
	OutcomeDegraded
)

// Outcome is the result of resolving one message against a pending action.
type Outcome struct {
	Kind OutcomeKind

	// Reply is the turn's reply for OutcomeExecuted and OutcomeCancelled.
	// Empty for OutcomeUnclear and OutcomeDegraded.
	Reply string
}

// Gate is the per-user confirmation state machine. A user is in
// AwaitingConfirmation exactly when the gate holds a live pending action for
// them; otherwise they are Idle. Gate is safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*PendingAction // userID → pending action
	resolver Resolver
	ttl      time.Duration
}

// NewGate creates a Gate that uses resolver for semantic yes/no
// classification. ttl controls pending-action staleness; pass 0 to use
// DefaultTTL.
func NewGate(resolver Resolver, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		pending:  make(map[string]*PendingAction),
		resolver: resolver,
		ttl:      ttl,
	}
}

// Defer stores action as the user's pending action and returns the record.
// Any existing pending action for the user is discarded without executing
// (last-wins; there is no queue).
func (g *Gate) Defer(userID string, action *feature.DeferredAction) *PendingAction {
	p := &PendingAction{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now(),
		Prompt:    action.Prompt,
		execute:   action.Execute,
	}

	g.mu.Lock()
	if old, ok := g.pending[userID]; ok {
		slog.Info("confirmation gate: superseding pending action",
			"user", userID, "old_id", old.ID, "new_id", p.ID)
	}
	g.pending[userID] = p
	g.mu.Unlock()

	return p
}

// Pending reports whether the user has a live pending action, lazily
// discarding it when it has outlived the staleness TTL.
func (g *Gate) Pending(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.livePendingLocked(userID) != nil
}

// Clear discards the user's pending action, if any, without executing it.
func (g *Gate) Clear(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, userID)
}

// Resolve applies the user's message to their pending action.
//
// The caller must only invoke Resolve when Pending(userID) reported true;
// if the action expired in between, Resolve behaves as if the message were
// unclear so the dispatcher falls back to normal routing.
//
// A confirmed action is removed from the gate before it runs, so it executes
// at most once even if its own execution re-enters the gate. Execution
// failures (errors or panics) are contained here: the reply is a generic
// failure acknowledgment and the gate is Idle afterwards.
func (g *Gate) Resolve(ctx context.Context, userID, message string) Outcome {
	g.mu.Lock()
	p := g.livePendingLocked(userID)
	g.mu.Unlock()
	if p == nil {
		return Outcome{Kind: OutcomeUnclear}
	}

	verdict, err := g.resolver.ClassifyConfirmation(ctx, message)
	if err != nil {
		slog.Error("confirmation gate: yes/no classification failed",
			"user", userID, "pending_id", p.ID, "err", err)
		return Outcome{Kind: OutcomeDegraded}
	}

	switch verdict {
	case VerdictAffirmative:
		// Take the action out first: executing or failing must both leave
		// the gate Idle, and re-entrant deferrals must not race with it.
		g.mu.Lock()
		current, ok := g.pending[userID]
		if !ok || current.ID != p.ID {
			g.mu.Unlock()
			return Outcome{Kind: OutcomeUnclear}
		}
		delete(g.pending, userID)
		g.mu.Unlock()

		reply, err := runDeferred(ctx, p)
		if err != nil {
			slog.Error("confirmation gate: deferred action failed",
				"user", userID, "pending_id", p.ID, "err", err)
			return Outcome{Kind: OutcomeExecuted, Reply: ActionFailedMessage}
		}
		return Outcome{Kind: OutcomeExecuted, Reply: reply}

	case VerdictNegative:
		g.mu.Lock()
		delete(g.pending, userID)
		g.mu.Unlock()
		return Outcome{Kind: OutcomeCancelled, Reply: CancelledMessage}

	default:
		return Outcome{Kind: OutcomeUnclear}
	}
}

// livePendingLocked returns the user's pending action if it exists and has
// not expired, discarding it otherwise. Must be called with mu held.
func (g *Gate) livePendingLocked(userID string) *PendingAction {
	p, ok := g.pending[userID]
	if !ok {
		return nil
	}
	if time.Since(p.CreatedAt) > g.ttl {
		slog.Info("confirmation gate: pending action expired",
			"user", userID, "pending_id", p.ID, "age", time.Since(p.CreatedAt))
		delete(g.pending, userID)
		return nil
	}
	return p
}

// runDeferred executes a deferred action, converting panics into errors so a
// misbehaving feature cannot take down the dispatch loop.
func runDeferred(ctx context.Context, p *PendingAction) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deferred action panicked: %v", r)
		}
	}()
	return p.execute(ctx)
}
