package calendar

// parse.go owns the oracle side of the calendar feature: one structured
// request per routed message, classified into create/view/modify/delete with
// the operation's parameters, validated against a schema before anything is
// decoded.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Alfred/internal/alfred/memory"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/store"
)

const (
	actionCreate  = "create"
	actionView    = "view"
	actionModify  = "modify"
	actionDelete  = "delete"
	actionUnknown = "unknown"
)

// requestSchema validates the oracle's parsed calendar request.
var requestSchema = oracle.MustCompileSchema("calendar-request.json", `{
	"type": "object",
	"properties": {
		"action": {"enum": ["create", "view", "modify", "delete", "unknown"]},
		"events": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title":       {"type": "string"},
					"description": {"type": "string"},
					"location":    {"type": "string"},
					"start":       {"type": "string"},
					"end":         {"type": "string"},
					"recurring":   {"type": "boolean"}
				},
				"required": ["title", "start", "end"]
			}
		},
		"start_date":   {"type": "string"},
		"end_date":     {"type": "string"},
		"search_query": {"type": "string"},
		"updates": {
			"type": "object",
			"properties": {
				"title":       {"type": "string"},
				"description": {"type": "string"},
				"location":    {"type": "string"}
			}
		}
	},
	"required": ["action"]
}`)

// parsedEvent mirrors one event object in the oracle's create response.
type parsedEvent struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Recurring   bool   `json:"recurring,omitempty"`
}

// toEvent converts a parsed event into a store record, validating its
// timestamps.
func (pe parsedEvent) toEvent() (store.Event, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", pe.Start, time.Local)
	if err != nil {
		return store.Event{}, fmt.Errorf("bad start time %q: %w", pe.Start, err)
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", pe.End, time.Local)
	if err != nil {
		return store.Event{}, fmt.Errorf("bad end time %q: %w", pe.End, err)
	}
	title := strings.TrimSpace(pe.Title)
	if title == "" {
		title = "Untitled Event"
	}
	return store.Event{
		Title:       title,
		Description: pe.Description,
		Location:    pe.Location,
		StartsAt:    start,
		EndsAt:      end,
		Recurring:   pe.Recurring,
	}, nil
}

// updatesDoc mirrors the oracle's "updates" object.
type updatesDoc struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
}

// requestDoc mirrors the full parsed calendar request.
type requestDoc struct {
	Action      string        `json:"action"`
	Events      []parsedEvent `json:"events,omitempty"`
	StartDate   string        `json:"start_date,omitempty"`
	EndDate     string        `json:"end_date,omitempty"`
	SearchQuery string        `json:"search_query,omitempty"`
	Updates     updatesDoc    `json:"updates,omitempty"`
}

// parsedRequest is the validated, Go-typed form handed to the operation
// handlers.
type parsedRequest struct {
	Action      string
	Events      []parsedEvent
	StartDate   string
	EndDate     string
	SearchQuery string
	Updates     store.EventUpdate
}

// parseRequest sends one oracle call classifying the message into a calendar
// operation. The current local date/time is included so relative expressions
// ("tomorrow", "next Tuesday") resolve correctly.
func (f *Feature) parseRequest(ctx context.Context, message string, turns []memory.Turn) (parsedRequest, error) {
	raw, err := f.provider.Generate(ctx, oracle.Request{
		System:    calendarSystemPrompt,
		User:      f.buildParsePrompt(message, turns),
		ForceJSON: true,
		MaxTokens: 512,
	})
	if err != nil {
		return parsedRequest{}, fmt.Errorf("calendar: parse: %w", err)
	}

	var doc requestDoc
	if err := oracle.DecodeJSON(requestSchema, raw, &doc); err != nil {
		return parsedRequest{}, fmt.Errorf("calendar: parse: %w", err)
	}

	return parsedRequest{
		Action:      doc.Action,
		Events:      doc.Events,
		StartDate:   doc.StartDate,
		EndDate:     doc.EndDate,
		SearchQuery: doc.SearchQuery,
		Updates: store.EventUpdate{
			Title:       doc.Updates.Title,
			Description: doc.Updates.Description,
			Location:    doc.Updates.Location,
		},
	}, nil
}

const calendarSystemPrompt = `You are a calendar request parser. Classify the user's message into exactly one
calendar operation and return ONLY valid JSON.

FOR VIEWING the schedule:
{"action": "view", "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD"}

FOR CREATING events:
{"action": "create", "events": [{"title": "...", "start": "YYYY-MM-DD HH:MM",
 "end": "YYYY-MM-DD HH:MM", "description": "...", "location": "...", "recurring": false}]}

FOR MODIFYING existing events:
{"action": "modify", "search_query": "<what to search for>",
 "updates": {"title": "...", "description": "...", "location": "..."}}

FOR DELETING existing events:
{"action": "delete", "search_query": "<what to search for>"}

When the message is not a calendar request you can act on:
{"action": "unknown"}

Rules:
- Calculate dates relative to the current date/time given in the prompt.
- Use 24-hour format for times (13:00 for 1 PM).
- Default event duration is one hour when no end time is given.
- Keep titles brief; put details in the description.
- For modify, include ONLY the fields being changed in "updates".
- Use the conversation context to resolve references like "it" or "that event".`

// buildParsePrompt assembles the user-role prompt for one parse call.
func (f *Feature) buildParsePrompt(message string, turns []memory.Turn) string {
	var sb strings.Builder

	now := f.now()
	fmt.Fprintf(&sb, "Current date and time: %s (today is %s)\n\n",
		now.Format("Monday, 2006-01-02 15:04:05"), now.Format("Monday"))

	if len(turns) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range turns {
			label := "User"
			if t.Speaker == memory.SpeakerAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, t.Text)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "User message: %q\n\nParse the message and return the JSON.", message)
	return sb.String()
}
