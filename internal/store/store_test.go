package store_test

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"lifehub/internal/model"
	"lifehub/internal/storage"
	"lifehub/internal/store"
)

// memPersister records every saved snapshot.
type memPersister struct {
	stored  *model.Snapshot
	saves   []model.Snapshot
	loadErr error
	saveErr error
}

func (m *memPersister) Load() (model.Snapshot, bool, error) {
	if m.loadErr != nil {
		return model.Snapshot{}, false, m.loadErr
	}
	if m.stored == nil {
		return model.Snapshot{}, false, nil
	}
	return m.stored.Clone(), true, nil
}

func (m *memPersister) Save(s model.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves = append(m.saves, s)
	cp := s.Clone()
	m.stored = &cp
	return nil
}

var fixedNow = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func newTestStore(p store.Persister) *store.Store {
	n := 0
	return store.New(p, store.Options{
		Now:      func() time.Time { return fixedNow },
		NewID:    func() string { n++; return fmt.Sprintf("id-%d", n) },
		Location: time.UTC,
	})
}

func TestNewSeedsDemoData(t *testing.T) {
	s := newTestStore(nil)
	if got := len(s.Calendars()); got != 4 {
		t.Errorf("calendars = %d, want 4", got)
	}
	if got := len(s.Events()); got != 6 {
		t.Errorf("events = %d, want 6", got)
	}
	if got := len(s.Todos()); got != 3 {
		t.Errorf("todos = %d, want 3", got)
	}
}

func TestNoWriteBeforeHydration(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(p)

	if _, err := s.AddTodo(store.TodoInput{Text: "early"}); err != nil {
		t.Fatal(err)
	}
	if len(p.saves) != 0 {
		t.Fatalf("saved %d snapshots before hydration", len(p.saves))
	}

	s.Hydrate()
	if _, err := s.AddTodo(store.TodoInput{Text: "late"}); err != nil {
		t.Fatal(err)
	}
	if len(p.saves) != 1 {
		t.Fatalf("saves after hydration = %d, want 1", len(p.saves))
	}
}

func TestHydrateMergesNonEmptyCollections(t *testing.T) {
	stored := model.Snapshot{
		User:      model.User{Name: "Jo"},
		Calendars: nil,
		Events: []model.StoredEvent{{
			ID: "stored-1", CalendarID: "main", Summary: "Dentist",
			Start: "2026-03-05T08:00:00.000Z", Source: model.SourceManual,
		}},
		Todos: []model.StoredTodo{},
	}
	p := &memPersister{stored: &stored}
	s := newTestStore(p)
	s.Hydrate()

	if s.User().Name != "Jo" {
		t.Errorf("user = %+v, want stored user", s.User())
	}
	if got := len(s.Calendars()); got != 4 {
		t.Errorf("calendars = %d, want defaults kept (4)", got)
	}
	events := s.Events()
	if len(events) != 1 || events[0].ID != "stored-1" {
		t.Errorf("events = %+v, want stored list", events)
	}
	if got := len(s.Todos()); got != 3 {
		t.Errorf("todos = %d, want defaults kept (3)", got)
	}
	if !s.Hydrated() {
		t.Error("Hydrated() = false after Hydrate")
	}
}

func TestHydrateLoadErrorKeepsDefaults(t *testing.T) {
	p := &memPersister{loadErr: errors.New("boom")}
	s := newTestStore(p)
	s.Hydrate()
	if got := len(s.Events()); got != 6 {
		t.Errorf("events = %d, want 6", got)
	}
	if !s.Hydrated() {
		t.Error("store not hydrated after load error")
	}
}

func TestAddEventDefaults(t *testing.T) {
	s := newTestStore(nil)
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	id, err := s.AddEvent(store.EventInput{Summary: "  Call  ", Start: start})
	if err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	ev, ok := s.Event(id)
	if !ok {
		t.Fatal("event not found after add")
	}
	if ev.CalendarID != model.MainCalendarID {
		t.Errorf("CalendarID = %q, want main", ev.CalendarID)
	}
	if ev.Summary != "Call" {
		t.Errorf("Summary = %q, want trimmed", ev.Summary)
	}
	if ev.AllDay || ev.End != nil || ev.Source != model.SourceManual {
		t.Errorf("defaults not applied: %+v", ev)
	}
	if !ev.CreatedAt.Equal(fixedNow) || !ev.UpdatedAt.Equal(fixedNow) {
		t.Errorf("stamps = %v/%v, want %v", ev.CreatedAt, ev.UpdatedAt, fixedNow)
	}
}

func TestAddEventRejectsInvertedRange(t *testing.T) {
	s := newTestStore(nil)
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(-time.Minute)

	if _, err := s.AddEvent(store.EventInput{Start: start, End: &end}); !errors.Is(err, store.ErrInvalidEvent) {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
	if _, err := s.AddEvent(store.EventInput{Summary: "no start"}); !errors.Is(err, store.ErrMissingStart) {
		t.Errorf("err = %v, want ErrMissingStart", err)
	}
	if got := len(s.Events()); got != 6 {
		t.Errorf("events = %d, want unchanged 6", got)
	}
}

func TestEventRoundTripThroughFile(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewFileStore(dir, "")

	s := newTestStore(fs)
	s.Hydrate()

	start := time.Date(2026, 3, 3, 9, 15, 30, 123_000_000, time.FixedZone("CET", 3600))
	end := start.Add(45 * time.Minute)
	id, err := s.AddEvent(store.EventInput{Summary: "Review", Start: start, End: &end})
	if err != nil {
		t.Fatal(err)
	}

	ev, _ := s.Event(id)
	if !ev.Start.Equal(start) || ev.End == nil || !ev.End.Equal(end) {
		t.Fatalf("read back %v–%v, want %v–%v", ev.Start, ev.End, start, end)
	}

	var stored model.StoredEvent
	for _, e := range s.Snapshot().Events {
		if e.ID == id {
			stored = e
		}
	}
	if stored.Start != "2026-03-03T08:15:30.123Z" {
		t.Errorf("stored start = %q, want ISO-8601 UTC", stored.Start)
	}

	reloaded := newTestStore(fs)
	reloaded.Hydrate()
	again, ok := reloaded.Event(id)
	if !ok {
		t.Fatal("event lost across reload")
	}
	if !again.Start.Equal(start) || !again.End.Equal(end) {
		t.Errorf("after reload %v–%v, want %v–%v", again.Start, again.End, start, end)
	}
}

func TestUpdateEvent(t *testing.T) {
	s := newTestStore(nil)
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	id, _ := s.AddEvent(store.EventInput{Summary: "Call", Start: start})

	later := fixedNow.Add(time.Hour)
	fixedNowBackup := fixedNow
	fixedNow = later
	defer func() { fixedNow = fixedNowBackup }()

	newEnd := start.Add(time.Hour)
	loc := "Room 1"
	if err := s.UpdateEvent(id, store.EventPatch{Location: &loc, End: &newEnd}); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	ev, _ := s.Event(id)
	if ev.Location != "Room 1" || ev.End == nil || !ev.End.Equal(newEnd) {
		t.Errorf("patch not applied: %+v", ev)
	}
	if ev.Summary != "Call" {
		t.Errorf("untouched field changed: %q", ev.Summary)
	}
	if !ev.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", ev.UpdatedAt, later)
	}

	if err := s.UpdateEvent(id, store.EventPatch{ClearEnd: true}); err != nil {
		t.Fatal(err)
	}
	if ev, _ := s.Event(id); ev.End != nil {
		t.Errorf("End = %v, want cleared", ev.End)
	}

	bad := start.Add(-time.Hour)
	if err := s.UpdateEvent(id, store.EventPatch{End: &bad}); !errors.Is(err, store.ErrInvalidEvent) {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
	if ev, _ := s.Event(id); ev.End != nil {
		t.Error("rejected patch was partially applied")
	}

	if err := s.UpdateEvent("missing", store.EventPatch{Location: &loc}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveEvent(t *testing.T) {
	s := newTestStore(nil)
	id, _ := s.AddEvent(store.EventInput{Start: fixedNow})
	if err := s.RemoveEvent(id); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Event(id); ok {
		t.Error("event still present")
	}
	if err := s.RemoveEvent(id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestTodos(t *testing.T) {
	s := newTestStore(nil)

	if _, err := s.AddTodo(store.TodoInput{Text: "   "}); !errors.Is(err, store.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}

	id, err := s.AddTodo(store.TodoInput{Text: " Water plants "})
	if err != nil {
		t.Fatal(err)
	}
	todos := s.Todos()
	if len(todos) != 4 || todos[0].ID != id {
		t.Fatalf("new todo not prepended: %+v", todos)
	}
	if todos[0].Text != "Water plants" || todos[0].Done || todos[0].CalendarID != model.MainCalendarID {
		t.Errorf("todo = %+v", todos[0])
	}

	if err := s.ToggleTodo(id); err != nil {
		t.Fatal(err)
	}
	if !s.Todos()[0].Done {
		t.Error("toggle did not mark done")
	}
	if err := s.ToggleTodo(id); err != nil {
		t.Fatal(err)
	}
	if s.Todos()[0].Done {
		t.Error("second toggle did not reopen")
	}

	if err := s.RemoveTodo(id); err != nil {
		t.Fatal(err)
	}
	if len(s.Todos()) != 3 {
		t.Error("todo not removed")
	}
	if err := s.ToggleTodo(id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("toggle missing err = %v", err)
	}
}

func TestCalendars(t *testing.T) {
	s := newTestStore(nil)

	if _, err := s.AddCalendar(store.CalendarInput{Name: " "}); !errors.Is(err, store.ErrEmptyName) {
		t.Errorf("err = %v, want ErrEmptyName", err)
	}

	id, err := s.AddCalendar(store.CalendarInput{Name: "Books"})
	if err != nil {
		t.Fatal(err)
	}
	cals := s.Calendars()
	last := cals[len(cals)-1]
	if last.ID != id || last.Color != store.DefaultColor {
		t.Errorf("calendar = %+v", last)
	}

	if err := s.UpdateCalendarColor(id, "#000000"); err != nil {
		t.Fatal(err)
	}
	cals = s.Calendars()
	if cals[len(cals)-1].Color != "#000000" {
		t.Errorf("color = %q", cals[len(cals)-1].Color)
	}
	if err := s.UpdateCalendarColor("nope", "#fff"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if !s.HasCalendar(id) || s.HasCalendar("nope") {
		t.Error("HasCalendar mismatch")
	}
}

func TestResetDataPersistsDemo(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(p)
	s.Hydrate()

	for i := 0; i < 3; i++ {
		_, _ = s.AddTodo(store.TodoInput{Text: "extra"})
	}
	_ = s.RemoveEvent(s.Events()[0].ID)

	s.ResetData()

	if len(s.Calendars()) != 4 || len(s.Events()) != 6 || len(s.Todos()) != 3 {
		t.Errorf("after reset: %d/%d/%d, want 4/6/3", len(s.Calendars()), len(s.Events()), len(s.Todos()))
	}
	last := p.saves[len(p.saves)-1]
	if len(last.Events) != 6 || len(last.Todos) != 3 || len(last.Calendars) != 4 {
		t.Errorf("persisted reset snapshot counts wrong")
	}
}

func TestResetPersistsEvenBeforeHydration(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(p)
	s.ResetData()
	if len(p.saves) != 1 {
		t.Errorf("saves = %d, want 1", len(p.saves))
	}
}

func TestSaveFailureStillUpdatesMemory(t *testing.T) {
	p := &memPersister{saveErr: errors.New("quota exceeded")}
	s := newTestStore(p)
	s.Hydrate()

	if _, err := s.AddTodo(store.TodoInput{Text: "kept"}); err != nil {
		t.Fatalf("AddTodo: %v", err)
	}
	if s.Todos()[0].Text != "kept" {
		t.Error("in-memory state not updated after failed save")
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(nil)

	var got []store.Change
	unsubscribe := s.Subscribe(func(ch store.Change, snap model.Snapshot) {
		got = append(got, ch)
		// Listeners own their copy.
		snap.Events = nil
	})

	id, _ := s.AddTodo(store.TodoInput{Text: "a"})
	_ = s.ToggleTodo(id)
	_ = s.RemoveTodo("missing")

	if len(got) != 2 {
		t.Fatalf("changes = %+v, want 2", got)
	}
	if got[0] != (store.Change{Op: store.OpCreate, Collection: store.CollectionTodos, ID: id}) {
		t.Errorf("first change = %+v", got[0])
	}
	if got[1].Op != store.OpUpdate {
		t.Errorf("second change = %+v", got[1])
	}
	if len(s.Events()) != 6 {
		t.Error("listener mutated store state")
	}

	unsubscribe()
	_, _ = s.AddTodo(store.TodoInput{Text: "b"})
	if len(got) != 2 {
		t.Error("listener called after unsubscribe")
	}
}

func TestImportEvents(t *testing.T) {
	s := newTestStore(nil)
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	recs := []model.ImportRecord{
		{UID: "a@x", Summary: "Conf", Start: start, End: start.Add(time.Hour)},
		{UID: "b@x", Summary: "Broken", Start: start, End: start.Add(-time.Hour)},
		{UID: "c@x", Summary: "Open-ended", Start: start},
	}

	res := s.ImportEvents("work", recs)
	if res.Added != 2 || res.Skipped != 1 || res.Updated != 0 {
		t.Fatalf("first import = %+v", res)
	}

	recs[0].Summary = "Conf (moved)"
	res = s.ImportEvents("work", recs[:1])
	if res.Updated != 1 || res.Added != 0 {
		t.Fatalf("re-import = %+v", res)
	}

	var found int
	for _, ev := range s.Events() {
		if ev.ExternalID == "a@x" {
			found++
			if ev.Summary != "Conf (moved)" || ev.Source != model.SourceImported || ev.CalendarID != "work" {
				t.Errorf("imported event = %+v", ev)
			}
		}
	}
	if found != 1 {
		t.Errorf("a@x present %d times, want 1", found)
	}
}

func TestBusyIntervals(t *testing.T) {
	s := newTestStore(nil)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	busy := s.BusyIntervals(day, day.Add(24*time.Hour))
	// Today's demo events: standup, lunch, gym.
	if len(busy) != 3 {
		t.Fatalf("busy = %d, want 3", len(busy))
	}
}

func TestListenersSeeCommitOrder(t *testing.T) {
	s := newTestStore(nil)
	base := len(s.Todos())

	var (
		mu   sync.Mutex
		seen []int
	)
	s.Subscribe(func(_ store.Change, snap model.Snapshot) {
		// Slow enough that later commits pile up behind this one.
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, len(snap.Todos))
		mu.Unlock()
	})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AddTodo(store.TodoInput{Text: fmt.Sprintf("t%d", i)}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("notifications = %d, want %d", len(seen), n)
	}
	for i, got := range seen {
		if want := base + i + 1; got != want {
			t.Fatalf("notification %d saw %d todos, want %d (order %v)", i, got, want, seen)
		}
	}
}

func TestHydrateSurvivesMalformedField(t *testing.T) {
	fs := storage.NewFileStore(t.TempDir(), "")
	body := `{"user":{"name":"Jo"},"events":[{"id":"kept","calendarId":"main","summary":"Dentist","start":"2026-03-05T08:00:00.000Z","end":null,"source":"manual"}],"todos":"oops"}`
	if err := os.WriteFile(fs.Path(), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(fs)
	s.Hydrate()

	if events := s.Events(); len(events) != 1 || events[0].ID != "kept" {
		t.Errorf("events = %+v, want stored event", events)
	}
	if got := len(s.Todos()); got != 3 {
		t.Errorf("todos = %d, want defaults (3)", got)
	}
	if s.User().Name != "Jo" {
		t.Errorf("user = %+v", s.User())
	}
}
