// Package oracle provides the language-understanding boundary for Alfred.
//
// The oracle is a remote, fallible, rate-limited LLM consumed as a black box.
// Alfred uses it for intent routing, yes/no confirmation resolution, and
// feature-level generation (calendar parsing, fun facts, conversational
// replies). This package owns the wire adapter and the failure taxonomy;
// callers build their own prompts and decode their own JSON.
//
// Invariants:
//   - Exactly one oracle call per Generate invocation; no automatic retries
//     (retry policy, if any, belongs to the caller).
//   - Every call is bounded by the configured timeout.
//   - Oracle output is never trusted blindly; callers validate it against a
//     schema before acting on it.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the oracle could not be reached or did not
// produce a usable response: network failure, timeout, HTTP error, or an
// empty completion. Callers surface a user-visible degraded-service reply
// instead of silently defaulting to any handler.
var ErrUnavailable = errors.New("oracle: unavailable")

// ErrRateLimited is returned when the upstream API reports a rate-limiting
// condition (HTTP 429 / quota exhaustion). It wraps ErrUnavailable so
// callers that only care about availability can use a single errors.Is check.
var ErrRateLimited = errors.New("oracle: upstream rate limit exceeded")

// ErrMalformedOutput is returned when the oracle answers but its payload
// cannot be interpreted (JSON parse failure, schema violation). Treated as
// unavailability by the router: the user's request was understood by nobody.
var ErrMalformedOutput = errors.New("oracle: malformed response")

// Message is one prior turn injected into the oracle's context window.
type Message struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the message text.
	Content string
}

// Request is the input to a single oracle call.
type Request struct {
	// System is the instruction block sent as the system message.
	System string

	// History contains prior conversation turns, oldest first. May be nil
	// for stateless calls (e.g. yes/no classification).
	History []Message

	// User is the current message or task prompt.
	User string

	// ForceJSON requests structured JSON output from the model. Callers that
	// set this are expected to validate the result against a schema.
	ForceJSON bool

	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int
}

// Provider is the oracle wire adapter. Implementations must be safe for
// concurrent use and must honor ctx cancellation and deadlines.
type Provider interface {
	// Generate sends one request to the oracle and returns the raw text of
	// the completion. Failures are classified via the package sentinels.
	Generate(ctx context.Context, req Request) (string, error)
}

// DegradedServiceMessage is the fixed reply surfaced when the oracle is
// unreachable or throttled. Terse on purpose: no internal detail leaks into
// chat.
const DegradedServiceMessage = "I'm temporarily unavailable — my language service isn't responding. Please try again in a few minutes."

// SenderRateLimitMessage is the reply sent to a user who has exhausted their
// per-minute oracle call allowance. Unlike DegradedServiceMessage this is a
// client-side limit, not an upstream outage.
const SenderRateLimitMessage = "I'm processing too many requests from you right now. Please give me a moment and try again."
