package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lifehub/internal/model"
	"lifehub/internal/storage"
)

func TestLoadNotExist(t *testing.T) {
	fs := storage.NewFileStore(t.TempDir(), "")
	_, ok, err := fs.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if ok {
		t.Error("Load reported a snapshot for a missing file")
	}
	if filepath.Base(fs.Path()) != "lifehub-data.json" {
		t.Errorf("Path = %q, want default key", fs.Path())
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	fs := storage.NewFileStore(dir, "snap")

	end := "2026-03-02T10:00:00.000Z"
	snap := model.Snapshot{
		User:      model.User{Name: "Alex"},
		Calendars: []model.Calendar{{ID: "main", Name: "Personal", Color: "#3b82f6"}},
		Events: []model.StoredEvent{{
			ID: "e1", CalendarID: "main", Summary: "Standup",
			Start: "2026-03-02T09:00:00.000Z", End: &end, Source: model.SourceManual,
		}},
		Todos: []model.StoredTodo{{ID: "t1", Text: "Buy milk", CalendarID: "main"}},
	}

	if err := fs.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(fs.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	loaded, ok, err := fs.Load()
	if err != nil || !ok {
		t.Fatalf("Load after save: ok=%v err=%v", ok, err)
	}
	if loaded.User.Name != "Alex" || len(loaded.Events) != 1 || len(loaded.Todos) != 1 {
		t.Fatalf("Load = %+v", loaded)
	}
	if loaded.Events[0].End == nil || *loaded.Events[0].End != end {
		t.Errorf("End = %v, want %q", loaded.Events[0].End, end)
	}
	if loaded.Events[0].Start != "2026-03-02T09:00:00.000Z" {
		t.Errorf("Start = %q", loaded.Events[0].Start)
	}
}

func TestLoadCorruptIsBackedUp(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewFileStore(dir, "")
	if err := os.WriteFile(fs.Path(), []byte("{bad json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, ok, err := fs.Load()
	if err != nil {
		t.Fatalf("Load corrupt: %v", err)
	}
	if ok {
		t.Error("corrupt snapshot reported as usable")
	}
	if _, err := os.Stat(fs.Path() + ".corrupt"); err != nil {
		t.Errorf("expected backup file: %v", err)
	}
}

func TestLoadKeepsWellTypedFields(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewFileStore(dir, "")
	body := `{
  "user": {"name": "Jo"},
  "calendars": {"not": "a list"},
  "events": [{"id": "e1", "calendarId": "main", "summary": "Dentist", "start": "2026-03-05T08:00:00.000Z", "end": null, "source": "manual"}],
  "todos": "oops"
}`
	if err := os.WriteFile(fs.Path(), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	snap, ok, err := fs.Load()
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if snap.User.Name != "Jo" {
		t.Errorf("user = %+v", snap.User)
	}
	if len(snap.Events) != 1 || snap.Events[0].ID != "e1" {
		t.Errorf("events = %+v", snap.Events)
	}
	if snap.Calendars != nil || snap.Todos != nil {
		t.Errorf("malformed fields decoded: calendars=%v todos=%v", snap.Calendars, snap.Todos)
	}
	if _, err := os.Stat(fs.Path() + ".corrupt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partially valid snapshot was moved aside: %v", err)
	}
}
