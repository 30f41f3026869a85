// Package dispatch orchestrates one conversational turn end to end.
//
// For every inbound message the dispatcher: resolves any pending
// confirmation for the user first, otherwise classifies intent against the
// feature registry, invokes the selected (or fallback) feature, stores a new
// deferred action in the confirmation gate when one is produced, and records
// the user message plus the final reply into the context store as one paired
// turn.
//
// All runtime failures are contained at the turn boundary: an oracle outage
// or a crashing feature degrades a single reply and never corrupts context
// or leaves the confirmation gate stuck.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bdobrica/Alfred/common/trace"
	"github.com/bdobrica/Alfred/internal/alfred/confirm"
	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/router"
)

// GenericFailureMessage is the terse reply sent when a feature fails while
// handling a message. No internal error detail leaks into chat.
const GenericFailureMessage = "Sorry, something went wrong while handling that. Please try again."

// NoFeatureMessagePrefix opens the reply sent when no feature matched and no
// fallback is registered. The feature summary is appended at runtime.
const NoFeatureMessagePrefix = "I'm not sure how to help with that yet.\n\nHere's what I can do:\n"

// Dispatcher routes inbound messages through classification, confirmation,
// and feature invocation. It is safe for concurrent use: turns for the same
// user are serialized, turns for different users proceed independently.
type Dispatcher struct {
	registry   *feature.Registry
	classifier *router.Classifier
	contexts   *memory.Store
	gate       *confirm.Gate
	limiter    *oracle.RateLimiter

	// oracleTimeout bounds each turn's oracle-bound work. Applied around
	// classification and feature invocation, both of which may call the
	// oracle.
	oracleTimeout time.Duration

	// per-user serialization. userLocks is keyed by user ID; entries are
	// never removed (the user population of a personal assistant is tiny).
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	turns    atomic.Int64
	failures atomic.Int64
}

// Config holds dispatcher construction parameters.
type Config struct {
	Registry   *feature.Registry
	Classifier *router.Classifier
	Contexts   *memory.Store
	Gate       *confirm.Gate

	// Limiter is optional; when nil, no per-user oracle rate limit is
	// enforced at the dispatch level.
	Limiter *oracle.RateLimiter

	// OracleTimeout bounds oracle-bound work per step. Zero means no
	// additional bound beyond the provider's own HTTP timeout.
	OracleTimeout time.Duration
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		registry:      cfg.Registry,
		classifier:    cfg.Classifier,
		contexts:      cfg.Contexts,
		gate:          cfg.Gate,
		limiter:       cfg.Limiter,
		oracleTimeout: cfg.OracleTimeout,
		userLocks:     make(map[string]*sync.Mutex),
	}
}

// HandleMessage processes one inbound message and returns the reply text.
// It never returns an error: every failure mode maps to a user-legible
// reply, and the user message plus that reply are always recorded as a
// turn pair (user first, assistant second).
func (d *Dispatcher) HandleMessage(ctx context.Context, userID, text string) string {
	lock := d.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	d.turns.Add(1)

	reply := d.handleTurn(ctx, userID, text)

	// Turn pairing: exactly two turns per message, user then assistant,
	// recorded even when the turn failed.
	now := time.Now()
	d.contexts.Append(userID, memory.Turn{Speaker: memory.SpeakerUser, Text: text, Timestamp: now})
	d.contexts.Append(userID, memory.Turn{Speaker: memory.SpeakerAssistant, Text: reply, Timestamp: now})

	return reply
}

// handleTurn produces the reply for one message. Context recording is the
// caller's job so every exit path gets the same turn-pairing treatment.
func (d *Dispatcher) handleTurn(ctx context.Context, userID, text string) string {
	tid := trace.FromContext(ctx)

	// --- Client-side oracle quota, checked before anything else: resolving
	// a pending confirmation costs an oracle call too, so it is metered the
	// same as routing. The pending action survives a rate-limited turn.
	if d.limiter != nil && !d.limiter.Allow(userID) {
		slog.Warn("dispatch: user rate-limited", "trace", tid, "user", userID)
		return oracle.SenderRateLimitMessage
	}

	// --- Confirmation gate: a pending action intercepts the message before
	// any routing happens.
	if d.gate.Pending(userID) {
		cctx, cancel := d.withTimeout(ctx)
		outcome := d.gate.Resolve(cctx, userID, text)
		cancel()
		switch outcome.Kind {
		case confirm.OutcomeExecuted, confirm.OutcomeCancelled:
			slog.Info("dispatch: confirmation resolved",
				"trace", tid, "user", userID, "kind", outcome.Kind)
			return outcome.Reply
		case confirm.OutcomeDegraded:
			d.failures.Add(1)
			return oracle.DegradedServiceMessage
		case confirm.OutcomeUnclear:
			// Documented policy: the message routes normally while the
			// pending action stays alive for a later turn.
			slog.Info("dispatch: confirmation reply unclear, routing normally",
				"trace", tid, "user", userID)
		}
	}

	// --- Classification. The context snapshot read here predates this
	// turn's own user message on purpose: the message is presented
	// separately in the routing prompt.
	turns := d.contexts.Read(userID)

	cctx, cancel := d.withTimeout(ctx)
	decision, err := d.classifier.Classify(cctx, userID, text, turns, d.registry.List())
	cancel()
	if err != nil {
		d.failures.Add(1)
		slog.Error("dispatch: classification failed", "trace", tid, "user", userID, "err", err)
		return oracle.DegradedServiceMessage
	}

	selected := d.selectFeature(decision)
	if selected == nil {
		// Registry has no fallback either; describe what exists.
		return NoFeatureMessagePrefix + d.registry.Summary()
	}

	slog.Info("dispatch: routed",
		"trace", tid, "user", userID,
		"feature", selected.Name(), "confidence", decision.Confidence)

	hctx, hcancel := d.withTimeout(ctx)
	result, err := d.invoke(hctx, selected, text, turns)
	hcancel()
	if err != nil {
		d.failures.Add(1)
		slog.Error("dispatch: feature failed",
			"trace", tid, "user", userID, "feature", selected.Name(), "err", err)
		if errors.Is(err, oracle.ErrUnavailable) {
			return oracle.DegradedServiceMessage
		}
		return GenericFailureMessage
	}

	if result.Deferred != nil {
		p := d.gate.Defer(userID, result.Deferred)
		slog.Info("dispatch: action deferred pending confirmation",
			"trace", tid, "user", userID, "feature", selected.Name(), "pending_id", p.ID)
		return result.Deferred.Prompt
	}

	return result.Reply
}

// selectFeature maps a routing decision to the feature to invoke: the
// oracle's choice when it cleared the threshold, the registry fallback
// otherwise.
func (d *Dispatcher) selectFeature(decision router.Decision) feature.Feature {
	if decision.Selected != nil {
		return decision.Selected.Feature
	}
	return d.registry.Fallback()
}

// invoke runs a feature handler, converting panics into errors so one
// misbehaving feature cannot take down the dispatch loop.
func (d *Dispatcher) invoke(ctx context.Context, f feature.Feature, text string, turns []memory.Turn) (result feature.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feature %q panicked: %v", f.Name(), r)
		}
	}()
	return f.Handle(ctx, text, turns)
}

// withTimeout derives a context bounded by the configured oracle timeout.
// Returns ctx unchanged (with a no-op cancel) when no timeout is configured.
func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.oracleTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.oracleTimeout)
}

// userLock returns the serialization lock for userID, creating it on first
// use.
func (d *Dispatcher) userLock(userID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		d.userLocks[userID] = l
	}
	return l
}

// Stats reports lifetime turn counters for the health endpoint.
func (d *Dispatcher) Stats() (turns, failures int64) {
	return d.turns.Load(), d.failures.Load()
}
