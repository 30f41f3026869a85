// Package matrix provides the Matrix transport adapter for Alfred.
//
// The adapter's contract with the core is deliberately thin: it delivers
// {user_id, text} pairs to a MessageHandler and sends the handler's reply
// string back to the originating room. Only direct messages from the
// configured owner are processed; Alfred is a single-user assistant.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Alfred/common/retry"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string

	// Owner is the Matrix user ID whose direct messages Alfred answers.
	// Messages from anyone else are ignored.
	Owner string

	// Intro is the greeting announced when the bot joins a room on the
	// owner's invite. Empty means no announcement.
	Intro string

	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and room history will replay on every restart.
	DB *sql.DB
}

// MessageHandler processes one inbound message and returns the reply text.
// An empty reply means nothing is sent.
type MessageHandler func(ctx context.Context, userID, text string) string

// Reconnection back-off bounds for the background sync loop.
const (
	backoffMin        = 2 * time.Second
	backoffMax        = 5 * time.Minute
	backoffResetAfter = time.Minute
)

// nextBackoff doubles the reconnect delay, capped at backoffMax.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > backoffMax {
		return backoffMax
	}
	return next
}

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	config  *Config
	stopCh  chan struct{}
	handler MessageHandler
}

// New creates a new Matrix client.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}

	// Attach a persistent sync store so the bot resumes from the last known
	// position after a restart instead of replaying the full room history.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Start begins syncing with the Matrix homeserver and delivering messages to
// handler.
func (c *Client) Start(handler MessageHandler) error {
	c.handler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	// Auto-accept invites so the owner can open a DM with the bot.
	syncer.OnEventType(event.StateMember, c.handleMembership)

	// Start syncing in background with exponential back-off reconnection.
	// Without retries a transient homeserver error would silently kill the
	// sync goroutine and leave the bot deaf to all new messages.
	go func() {
		backoff := backoffMin
		for {
			start := time.Now()
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				// A sync that stayed up for a while means the connection had
				// recovered; start the back-off sequence over.
				if time.Since(start) > backoffResetAfter {
					backoff = backoffMin
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff = nextBackoff(backoff)
				continue
			}
			// Sync returned nil, which only happens on a clean StopSync() call.
			return
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// handleMessage filters inbound events down to owner DMs and dispatches them.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	// Ignore our own messages.
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	// Only the owner's messages are processed.
	if evt.Sender != id.UserID(c.config.Owner) {
		return
	}

	// Only plain text messages.
	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}

	text := msgContent.Body
	if text == "" {
		return
	}

	if c.handler == nil {
		return
	}

	// Typing indicator while the turn is in flight; errors are cosmetic.
	if _, err := c.client.UserTyping(ctx, evt.RoomID, true, 30*time.Second); err == nil {
		defer c.client.UserTyping(ctx, evt.RoomID, false, 0)
	}

	reply := c.handler(ctx, evt.Sender.String(), text)
	if reply == "" {
		return
	}

	if err := c.SendMessage(ctx, evt.RoomID.String(), reply); err != nil {
		slog.Error("failed to send reply", "room", evt.RoomID, "err", err)
	}
}

// handleMembership auto-joins rooms the owner invites the bot to and
// announces the bot with its intro message.
func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.config.UserID {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if evt.Sender != id.UserID(c.config.Owner) {
		slog.Warn("ignoring invite from non-owner", "sender", evt.Sender, "room", evt.RoomID)
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		slog.Error("failed to join room on invite", "room", evt.RoomID, "err", err)
		return
	}
	if c.config.Intro != "" {
		if err := c.SendNotice(ctx, evt.RoomID.String(), c.config.Intro); err != nil {
			slog.Warn("failed to send intro message", "room", evt.RoomID, "err", err)
		}
	}
}

// SendMessage sends a text message to a room, retrying transient failures.
// The homeserver occasionally drops a send during federation hiccups; a
// short retry keeps replies from vanishing without turning the dispatcher
// into a retry loop.
func (c *Client) SendMessage(ctx context.Context, roomID, message string) error {
	return retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, func() error {
		_, err := c.client.SendText(ctx, id.RoomID(roomID), message)
		return err
	})
}

// SendNotice sends a notice message (less intrusive than normal messages),
// used for startup announcements.
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// joinRoom attempts to join a room.
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a
		// member of the room.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
