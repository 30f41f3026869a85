// Package calendar implements the calendar feature: natural language in,
// structured event operations out.
//
// The oracle parses each routed message into one of four operations
// (create, view, modify, delete) against the local event store. Create and
// view run immediately. Modify and delete mutate existing events, so they
// return a deferred action: the user sees "Rename 4 events? (yes/no)" and
// nothing changes until they confirm.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Alfred/internal/alfred/feature"
	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/store"
)

// EventStore is the persistence surface the calendar feature needs.
// *store.Store satisfies it; tests substitute an in-memory fake.
type EventStore interface {
	CreateEvent(ctx context.Context, ev store.Event) (store.Event, error)
	SearchEvents(ctx context.Context, query string) ([]store.Event, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]store.Event, error)
	ModifyEvent(ctx context.Context, id string, upd store.EventUpdate) error
	DeleteEvent(ctx context.Context, id string) error
}

// Feature is the calendar feature handler.
type Feature struct {
	provider oracle.Provider
	events   EventStore

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// New creates the calendar feature.
func New(provider oracle.Provider, events EventStore) *Feature {
	return &Feature{
		provider: provider,
		events:   events,
		now:      time.Now,
	}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "calendar" }

// Description implements feature.Feature.
func (f *Feature) Description() string {
	return "Create and manage calendar events"
}

// Capabilities implements feature.Feature. The text is embedded verbatim in
// the routing prompt, so it reads like documentation for the oracle.
func (f *Feature) Capabilities() string {
	return `This feature can:
- Create calendar events from natural language descriptions
- Modify existing calendar events (rename, change location or description)
- Delete events
- View the schedule and upcoming events
- Handle time-based requests (dates, times, durations)

Examples of what this feature handles:

Creating events:
- "Meeting tomorrow at 3pm"
- "Lunch with Sarah on Friday at noon for 2 hours"
- "Doctor appointment next Tuesday at 10am"

Modifying events:
- "Rename all 'office hours' events to 'tutor hours'"
- "Change location of dentist appointment to downtown office"

Deleting events:
- "Delete the standup on Friday"
- "Cancel all my office hours"

Viewing schedule:
- "What's on my schedule today?"
- "What do I have tomorrow?"
- "Show me my events this week"

Keywords that indicate this feature: meeting, appointment, schedule, calendar,
event, book, rename, change, update, modify, move, delete, cancel, what's on,
upcoming`
}

// Handle implements feature.Feature.
func (f *Feature) Handle(ctx context.Context, message string, turns []memory.Turn) (feature.Result, error) {
	req, err := f.parseRequest(ctx, message, turns)
	if err != nil {
		return feature.Result{}, err
	}

	switch req.Action {
	case actionCreate:
		return f.handleCreate(ctx, req.Events)
	case actionView:
		return f.handleView(ctx, req.StartDate, req.EndDate)
	case actionModify:
		return f.handleModify(ctx, req.SearchQuery, req.Updates)
	case actionDelete:
		return f.handleDelete(ctx, req.SearchQuery)
	default:
		return feature.Result{Reply: "I couldn't understand your calendar request. " +
			"Try something like: 'Meeting tomorrow at 3pm', 'What's on my schedule today?', " +
			"or 'Rename office hours to tutor hours'."}, nil
	}
}

// handleCreate inserts the parsed events and describes what was created.
func (f *Feature) handleCreate(ctx context.Context, events []parsedEvent) (feature.Result, error) {
	if len(events) == 0 {
		return feature.Result{Reply: "I couldn't parse the event details. Please try again."}, nil
	}

	var created []store.Event
	for _, pe := range events {
		ev, err := pe.toEvent()
		if err != nil {
			// One bad event must not sink the batch; skip it.
			continue
		}
		stored, err := f.events.CreateEvent(ctx, ev)
		if err != nil {
			return feature.Result{}, fmt.Errorf("calendar: create: %w", err)
		}
		created = append(created, stored)
	}

	if len(created) == 0 {
		return feature.Result{Reply: "I couldn't parse the event details. Please try again."}, nil
	}
	if len(created) == 1 {
		return feature.Result{Reply: "✓ Created event:\n" + formatEvent(created[0])}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ Created %d events:\n", len(created))
	for _, ev := range created {
		sb.WriteString("\n")
		sb.WriteString(formatEvent(ev))
		sb.WriteString("\n")
	}
	return feature.Result{Reply: strings.TrimRight(sb.String(), "\n")}, nil
}

// handleView lists events in the requested date range.
func (f *Feature) handleView(ctx context.Context, startDate, endDate string) (feature.Result, error) {
	from, to, err := f.parseDateRange(startDate, endDate)
	if err != nil {
		return feature.Result{Reply: "I couldn't work out which dates you meant. Try 'What's on my schedule today?'"}, nil
	}

	events, err := f.events.ListEvents(ctx, from, to)
	if err != nil {
		return feature.Result{}, fmt.Errorf("calendar: view: %w", err)
	}
	if len(events) == 0 {
		return feature.Result{Reply: fmt.Sprintf("Nothing scheduled between %s and %s.",
			from.Format("Mon, Jan 2"), to.Format("Mon, Jan 2"))}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's your schedule (%d event(s)):\n", len(events))
	for _, ev := range events {
		sb.WriteString("\n")
		sb.WriteString(formatEvent(ev))
		sb.WriteString("\n")
	}
	return feature.Result{Reply: strings.TrimRight(sb.String(), "\n")}, nil
}

// handleModify searches for matching events and defers the mutation behind a
// confirmation prompt.
func (f *Feature) handleModify(ctx context.Context, query string, upd store.EventUpdate) (feature.Result, error) {
	if strings.TrimSpace(query) == "" {
		return feature.Result{Reply: "I couldn't understand which events you want to change. Please be more specific."}, nil
	}
	if upd.Empty() {
		return feature.Result{Reply: "I couldn't work out what you want to change about those events."}, nil
	}

	matches, err := f.events.SearchEvents(ctx, query)
	if err != nil {
		return feature.Result{}, fmt.Errorf("calendar: modify search: %w", err)
	}
	if len(matches) == 0 {
		return feature.Result{Reply: fmt.Sprintf("I couldn't find any events matching %q.", query)}, nil
	}

	ids := eventIDs(matches)
	prompt := fmt.Sprintf("Modify %d event(s) matching %q — %s? (yes/no)",
		len(matches), query, describeUpdate(upd))

	return feature.Result{Deferred: &feature.DeferredAction{
		Prompt: prompt,
		Execute: func(ctx context.Context) (string, error) {
			modified := 0
			for _, id := range ids {
				if err := f.events.ModifyEvent(ctx, id, upd); err != nil {
					continue
				}
				modified++
			}
			if modified == 0 {
				return "", fmt.Errorf("calendar: no events could be modified")
			}
			return fmt.Sprintf("✓ Modified %d event(s).\n%s", modified, describeUpdate(upd)), nil
		},
	}}, nil
}

// handleDelete searches for matching events and defers the deletion behind a
// confirmation prompt.
func (f *Feature) handleDelete(ctx context.Context, query string) (feature.Result, error) {
	if strings.TrimSpace(query) == "" {
		return feature.Result{Reply: "I couldn't understand which events you want to delete. Please be more specific."}, nil
	}

	matches, err := f.events.SearchEvents(ctx, query)
	if err != nil {
		return feature.Result{}, fmt.Errorf("calendar: delete search: %w", err)
	}
	if len(matches) == 0 {
		return feature.Result{Reply: fmt.Sprintf("I couldn't find any events matching %q.", query)}, nil
	}

	ids := eventIDs(matches)
	prompt := fmt.Sprintf("Delete %d event(s) matching %q? (yes/no)", len(matches), query)

	return feature.Result{Deferred: &feature.DeferredAction{
		Prompt: prompt,
		Execute: func(ctx context.Context) (string, error) {
			deleted := 0
			for _, id := range ids {
				if err := f.events.DeleteEvent(ctx, id); err != nil {
					continue
				}
				deleted++
			}
			if deleted == 0 {
				return "", fmt.Errorf("calendar: no events could be deleted")
			}
			return fmt.Sprintf("✓ Deleted %d event(s).", deleted), nil
		},
	}}, nil
}

// parseDateRange converts the oracle's YYYY-MM-DD pair into a [from, to]
// interval covering whole local days. Missing end date means a single day.
func (f *Feature) parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	if startDate == "" {
		now := f.now()
		startDate = now.Format("2006-01-02")
	}
	if endDate == "" {
		endDate = startDate
	}

	from, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := time.ParseInLocation("2006-01-02", endDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to.Add(24*time.Hour - time.Nanosecond), nil
}

// eventIDs extracts the ID column.
func eventIDs(events []store.Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

// describeUpdate renders an update as a short human-readable summary used in
// confirmation prompts and results.
func describeUpdate(upd store.EventUpdate) string {
	var parts []string
	if upd.Title != nil {
		parts = append(parts, fmt.Sprintf("rename to %q", *upd.Title))
	}
	if upd.Description != nil {
		parts = append(parts, "update description")
	}
	if upd.Location != nil {
		parts = append(parts, fmt.Sprintf("set location to %q", *upd.Location))
	}
	return strings.Join(parts, ", ")
}

// formatEvent renders one event for chat display.
func formatEvent(ev store.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", ev.Title)

	if ev.StartsAt.Format("2006-01-02") == ev.EndsAt.Format("2006-01-02") {
		fmt.Fprintf(&sb, "📅 %s → %s",
			ev.StartsAt.Format("Mon, Jan 2 at 3:04 PM"),
			ev.EndsAt.Format("3:04 PM"))
	} else {
		fmt.Fprintf(&sb, "📅 %s → %s",
			ev.StartsAt.Format("Mon, Jan 2 at 3:04 PM"),
			ev.EndsAt.Format("Mon, Jan 2 at 3:04 PM"))
	}
	if ev.Recurring {
		sb.WriteString("\n🔁 Recurring")
	}
	if ev.Description != "" {
		fmt.Fprintf(&sb, "\n📝 %s", ev.Description)
	}
	if ev.Location != "" {
		fmt.Fprintf(&sb, "\n📍 %s", ev.Location)
	}
	return sb.String()
}
