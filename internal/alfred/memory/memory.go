// Package memory implements the per-user conversational context store.
//
// Each user has an append-only buffer of turns bounded two ways: a count cap
// (keep the last N turns) and a time window (drop turns older than W). Both
// bounds are enforced lazily on every access, so the bounding rule is
// testable independently of when messages arrived.
//
// State is process-lifetime only; nothing is persisted across restarts.
package memory

import (
	"sync"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is a single utterance in a conversation. Immutable once created.
type Turn struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// StoreConfig holds the context bounding parameters.
type StoreConfig struct {
	// MaxTurns is the maximum number of turns retained per user.
	// Default: 10.
	MaxTurns int

	// Window is the maximum age of a retained turn. Turns older than
	// Window at read or append time are evicted. Default: 15 minutes.
	Window time.Duration
}

// DefaultStoreConfig returns a StoreConfig with the documented defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxTurns: 10,
		Window:   15 * time.Minute,
	}
}

// Store is the per-user conversational context store. It is safe for
// concurrent use; operations on different user keys do not interfere, and
// operations on the same key are serialized.
type Store struct {
	mu     sync.Mutex
	config StoreConfig
	turns  map[string][]Turn // userID → turns, oldest first
}

// NewStore creates a Store with the given configuration. Zero or negative
// values fall back to the defaults.
func NewStore(cfg StoreConfig) *Store {
	def := DefaultStoreConfig()
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Store{
		config: cfg,
		turns:  make(map[string][]Turn),
	}
}

// Append records a turn for the given user, evicting expired and over-cap
// turns so the bounding invariant holds after the call.
func (s *Store) Append(userID string, turn Turn) {
	s.appendAt(userID, turn, time.Now())
}

// appendAt is the time-injectable core of Append (for testing).
func (s *Store) appendAt(userID string, turn Turn, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.turns[userID], turn)
	buf = s.evict(buf, now)
	if len(buf) == 0 {
		delete(s.turns, userID)
		return
	}
	s.turns[userID] = buf
}

// Read returns a snapshot of the user's current context: only turns within
// the window, capped at MaxTurns, oldest first. The returned slice is a
// copy; mutating it does not affect the store. Returns nil when the user has no
// live turns.
func (s *Store) Read(userID string) []Turn {
	return s.readAt(userID, time.Now())
}

// readAt is the time-injectable core of Read (for testing).
func (s *Store) readAt(userID string, now time.Time) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.evict(s.turns[userID], now)
	if len(buf) == 0 {
		delete(s.turns, userID)
		return nil
	}
	// Eviction may have shrunk the stored buffer; keep the trimmed version
	// so memory stays bounded even for users who never send again.
	s.turns[userID] = buf

	out := make([]Turn, len(buf))
	copy(out, buf)
	return out
}

// Clear drops all turns for the given user.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
}

// evict returns buf trimmed to the configured window and count cap.
// Must be called with mu held.
func (s *Store) evict(buf []Turn, now time.Time) []Turn {
	cutoff := now.Add(-s.config.Window)

	// Turns are appended in arrival order, so everything before the first
	// in-window turn is expired.
	first := len(buf)
	for i, t := range buf {
		if t.Timestamp.After(cutoff) {
			first = i
			break
		}
	}
	buf = buf[first:]

	if len(buf) > s.config.MaxTurns {
		buf = buf[len(buf)-s.config.MaxTurns:]
	}
	return buf
}
