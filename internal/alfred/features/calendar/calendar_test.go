package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Alfred/internal/alfred/oracle"
	"github.com/bdobrica/Alfred/internal/alfred/store"
)

// stubProvider returns a canned parse response.
type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) Generate(ctx context.Context, req oracle.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

// fakeEventStore is an in-memory EventStore.
type fakeEventStore struct {
	events    map[string]store.Event
	nextID    int
	createErr error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string]store.Event)}
}

func (f *fakeEventStore) CreateEvent(ctx context.Context, ev store.Event) (store.Event, error) {
	if f.createErr != nil {
		return store.Event{}, f.createErr
	}
	if ev.ID == "" {
		f.nextID++
		ev.ID = fmt.Sprintf("ev-%d", f.nextID)
	}
	f.events[ev.ID] = ev
	return ev, nil
}

func (f *fakeEventStore) SearchEvents(ctx context.Context, query string) ([]store.Event, error) {
	var out []store.Event
	q := strings.ToLower(strings.TrimSpace(query))
	for _, ev := range f.events {
		if strings.Contains(strings.ToLower(ev.Title), q) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListEvents(ctx context.Context, from, to time.Time) ([]store.Event, error) {
	var out []store.Event
	for _, ev := range f.events {
		if !ev.StartsAt.After(to) && !ev.EndsAt.Before(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ModifyEvent(ctx context.Context, id string, upd store.EventUpdate) error {
	ev, ok := f.events[id]
	if !ok {
		return store.ErrEventNotFound
	}
	if upd.Title != nil {
		ev.Title = *upd.Title
	}
	if upd.Description != nil {
		ev.Description = *upd.Description
	}
	if upd.Location != nil {
		ev.Location = *upd.Location
	}
	f.events[id] = ev
	return nil
}

func (f *fakeEventStore) DeleteEvent(ctx context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return store.ErrEventNotFound
	}
	delete(f.events, id)
	return nil
}

func newTestFeature(response string, events *fakeEventStore) *Feature {
	f := New(&stubProvider{response: response}, events)
	f.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 0, 0, 0, time.Local)
	}
	return f
}

func TestHandle_CreateSingleEvent(t *testing.T) {
	events := newFakeEventStore()
	f := newTestFeature(`{"action": "create", "events": [
		{"title": "Dentist", "start": "2026-08-25 15:00", "end": "2026-08-25 16:00",
		 "location": "Downtown clinic"}]}`, events)

	res, err := f.Handle(context.Background(), "dentist tomorrow at 3pm", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Deferred != nil {
		t.Fatal("create must not be deferred")
	}
	if !strings.Contains(res.Reply, "Created event") || !strings.Contains(res.Reply, "Dentist") {
		t.Errorf("Reply = %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "Downtown clinic") {
		t.Errorf("Reply missing location: %q", res.Reply)
	}
	if len(events.events) != 1 {
		t.Errorf("stored %d events, want 1", len(events.events))
	}
}

func TestHandle_CreateSkipsBadEvents(t *testing.T) {
	events := newFakeEventStore()
	f := newTestFeature(`{"action": "create", "events": [
		{"title": "Good", "start": "2026-08-25 09:00", "end": "2026-08-25 10:00"},
		{"title": "Bad", "start": "whenever", "end": "later"}]}`, events)

	res, err := f.Handle(context.Background(), "make two events", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(events.events) != 1 {
		t.Errorf("stored %d events, want 1 (bad timestamps skipped)", len(events.events))
	}
	if !strings.Contains(res.Reply, "Good") {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandle_View(t *testing.T) {
	events := newFakeEventStore()
	events.CreateEvent(context.Background(), store.Event{
		Title:    "Standup",
		StartsAt: time.Date(2026, 8, 24, 9, 0, 0, 0, time.Local),
		EndsAt:   time.Date(2026, 8, 24, 9, 15, 0, 0, time.Local),
	})
	events.CreateEvent(context.Background(), store.Event{
		Title:    "Far future",
		StartsAt: time.Date(2026, 12, 1, 9, 0, 0, 0, time.Local),
		EndsAt:   time.Date(2026, 12, 1, 10, 0, 0, 0, time.Local),
	})

	f := newTestFeature(`{"action": "view", "start_date": "2026-08-24", "end_date": "2026-08-24"}`, events)
	res, err := f.Handle(context.Background(), "what's on today?", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(res.Reply, "Standup") {
		t.Errorf("Reply missing today's event: %q", res.Reply)
	}
	if strings.Contains(res.Reply, "Far future") {
		t.Errorf("Reply includes out-of-range event: %q", res.Reply)
	}
}

func TestHandle_ViewEmptySchedule(t *testing.T) {
	f := newTestFeature(`{"action": "view", "start_date": "2026-08-24"}`, newFakeEventStore())
	res, err := f.Handle(context.Background(), "what's on today?", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(res.Reply, "Nothing scheduled") {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandle_ModifyIsDeferred(t *testing.T) {
	events := newFakeEventStore()
	for i := 0; i < 3; i++ {
		events.CreateEvent(context.Background(), store.Event{
			Title:    "Office Hours",
			StartsAt: time.Date(2026, 8, 24+i, 14, 0, 0, 0, time.Local),
			EndsAt:   time.Date(2026, 8, 24+i, 15, 0, 0, 0, time.Local),
		})
	}

	f := newTestFeature(`{"action": "modify", "search_query": "office hours",
		"updates": {"title": "Tutor Hours"}}`, events)

	res, err := f.Handle(context.Background(), "rename office hours to tutor hours", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Deferred == nil {
		t.Fatal("modify must return a deferred action")
	}
	if !strings.Contains(res.Deferred.Prompt, "Modify 3 event(s)") ||
		!strings.Contains(res.Deferred.Prompt, "(yes/no)") {
		t.Errorf("Prompt = %q", res.Deferred.Prompt)
	}

	// Nothing changed before confirmation.
	for _, ev := range events.events {
		if ev.Title != "Office Hours" {
			t.Fatalf("event mutated before confirmation: %q", ev.Title)
		}
	}

	reply, err := res.Deferred.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(reply, "Modified 3 event(s)") {
		t.Errorf("Execute reply = %q", reply)
	}
	for _, ev := range events.events {
		if ev.Title != "Tutor Hours" {
			t.Errorf("event not renamed: %q", ev.Title)
		}
	}
}

func TestHandle_DeleteIsDeferred(t *testing.T) {
	events := newFakeEventStore()
	events.CreateEvent(context.Background(), store.Event{
		Title:    "Standup",
		StartsAt: time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local),
		EndsAt:   time.Date(2026, 8, 28, 9, 15, 0, 0, time.Local),
	})

	f := newTestFeature(`{"action": "delete", "search_query": "standup"}`, events)
	res, err := f.Handle(context.Background(), "delete the standup on Friday", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Deferred == nil {
		t.Fatal("delete must return a deferred action")
	}
	if !strings.Contains(res.Deferred.Prompt, "Delete 1 event(s)") {
		t.Errorf("Prompt = %q", res.Deferred.Prompt)
	}
	if len(events.events) != 1 {
		t.Fatal("event deleted before confirmation")
	}

	reply, err := res.Deferred.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(reply, "Deleted 1 event(s)") {
		t.Errorf("Execute reply = %q", reply)
	}
	if len(events.events) != 0 {
		t.Errorf("%d events remain after confirmed delete", len(events.events))
	}
}

func TestHandle_DeleteNoMatches(t *testing.T) {
	f := newTestFeature(`{"action": "delete", "search_query": "standup"}`, newFakeEventStore())
	res, err := f.Handle(context.Background(), "delete the standup", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Deferred != nil {
		t.Fatal("no-match delete must not defer anything")
	}
	if !strings.Contains(res.Reply, `couldn't find any events matching "standup"`) {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandle_ModifyWithoutChanges(t *testing.T) {
	f := newTestFeature(`{"action": "modify", "search_query": "office hours", "updates": {}}`,
		newFakeEventStore())
	res, err := f.Handle(context.Background(), "modify office hours", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Deferred != nil {
		t.Fatal("empty update must not defer anything")
	}
	if !strings.Contains(res.Reply, "couldn't work out what you want to change") {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandle_UnknownAction(t *testing.T) {
	f := newTestFeature(`{"action": "unknown"}`, newFakeEventStore())
	res, err := f.Handle(context.Background(), "tell me about cheese", nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(res.Reply, "couldn't understand your calendar request") {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandle_OracleFailure(t *testing.T) {
	f := New(&stubProvider{err: oracle.ErrUnavailable}, newFakeEventStore())
	_, err := f.Handle(context.Background(), "meeting tomorrow", nil)
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Fatalf("Handle() error = %v, want ErrUnavailable", err)
	}
}

func TestHandle_MalformedParse(t *testing.T) {
	f := New(&stubProvider{response: `{"action": "fly me to the moon"}`}, newFakeEventStore())
	_, err := f.Handle(context.Background(), "meeting tomorrow", nil)
	if !errors.Is(err, oracle.ErrMalformedOutput) {
		t.Fatalf("Handle() error = %v, want ErrMalformedOutput", err)
	}
}

func TestParseDateRange(t *testing.T) {
	f := newTestFeature("", newFakeEventStore())

	from, to, err := f.parseDateRange("2026-08-24", "2026-08-26")
	if err != nil {
		t.Fatalf("parseDateRange() error = %v", err)
	}
	if from.Day() != 24 || to.Day() != 26 {
		t.Errorf("range = [%v, %v]", from, to)
	}
	if to.Hour() != 23 || to.Minute() != 59 {
		t.Errorf("end of range should cover the whole day, got %v", to)
	}

	// Missing end date means a single day; missing start date means today.
	from, to, err = f.parseDateRange("", "")
	if err != nil {
		t.Fatalf("parseDateRange(empty) error = %v", err)
	}
	if from.Day() != 24 || to.Day() != 24 {
		t.Errorf("default range = [%v, %v], want today only", from, to)
	}
}
