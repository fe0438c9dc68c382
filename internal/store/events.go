package store

import (
	"strings"
	"time"

	"lifehub/internal/model"
)

const defaultSummary = "Untitled event"

// EventInput holds the fields of a new event. Start is required.
type EventInput struct {
	CalendarID  string
	Summary     string
	Description string
	Location    string
	AllDay      bool
	Start       time.Time
	End         *time.Time
	Source      model.Source
	ExternalID  string
}

// EventPatch is a partial update; nil fields are left untouched. ClearEnd
// removes the end time.
type EventPatch struct {
	CalendarID  *string
	Summary     *string
	Description *string
	Location    *string
	AllDay      *bool
	Start       *time.Time
	End         *time.Time
	ClearEnd    bool
}

func checkRange(start time.Time, end *time.Time) error {
	if start.IsZero() {
		return ErrMissingStart
	}
	if end != nil && end.Before(start) {
		return ErrInvalidEvent
	}
	return nil
}

func calendarOrMain(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return model.MainCalendarID
	}
	return id
}

// AddEvent appends a new event and returns its id.
func (s *Store) AddEvent(in EventInput) (string, error) {
	if err := checkRange(in.Start, in.End); err != nil {
		return "", err
	}

	var id string
	err := s.mutate(func(st *model.Snapshot, now string) (Change, error) {
		id = s.newID()
		st.Events = append(st.Events, newStoredEvent(id, in, now))
		return Change{Op: OpCreate, Collection: CollectionEvents, ID: id}, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func newStoredEvent(id string, in EventInput, now string) model.StoredEvent {
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		summary = defaultSummary
	}
	source := in.Source
	if source == "" {
		source = model.SourceManual
	}
	return model.StoredEvent{
		ID:          id,
		CalendarID:  calendarOrMain(in.CalendarID),
		Summary:     summary,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		AllDay:      in.AllDay,
		Start:       model.FormatTime(in.Start),
		End:         model.FormatTimePtr(in.End),
		Source:      source,
		ExternalID:  in.ExternalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateEvent merges patch onto the event with the given id.
func (s *Store) UpdateEvent(id string, patch EventPatch) error {
	return s.mutate(func(st *model.Snapshot, now string) (Change, error) {
		i := indexEvent(st.Events, id)
		if i < 0 {
			return Change{}, ErrNotFound
		}
		ev := st.Events[i]

		if patch.CalendarID != nil {
			ev.CalendarID = calendarOrMain(*patch.CalendarID)
		}
		if patch.Summary != nil {
			ev.Summary = strings.TrimSpace(*patch.Summary)
			if ev.Summary == "" {
				ev.Summary = defaultSummary
			}
		}
		if patch.Description != nil {
			ev.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Location != nil {
			ev.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.AllDay != nil {
			ev.AllDay = *patch.AllDay
		}
		if patch.Start != nil {
			ev.Start = model.FormatTime(*patch.Start)
		}
		switch {
		case patch.ClearEnd:
			ev.End = nil
		case patch.End != nil:
			ev.End = model.FormatTimePtr(patch.End)
		}

		view := ev.ToView()
		if err := checkRange(view.Start, view.End); err != nil {
			return Change{}, err
		}

		ev.UpdatedAt = now
		st.Events[i] = ev
		return Change{Op: OpUpdate, Collection: CollectionEvents, ID: id}, nil
	})
}

// RemoveEvent deletes the event with the given id.
func (s *Store) RemoveEvent(id string) error {
	return s.mutate(func(st *model.Snapshot, _ string) (Change, error) {
		i := indexEvent(st.Events, id)
		if i < 0 {
			return Change{}, ErrNotFound
		}
		st.Events = append(st.Events[:i], st.Events[i+1:]...)
		return Change{Op: OpDelete, Collection: CollectionEvents, ID: id}, nil
	})
}

// Events returns all events with timestamps materialized.
func (s *Store) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.state.Events))
	for _, ev := range s.state.Events {
		out = append(out, ev.ToView())
	}
	return out
}

// Event returns a single event by id.
func (s *Store) Event(id string) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexEvent(s.state.Events, id)
	if i < 0 {
		return model.Event{}, false
	}
	return s.state.Events[i].ToView(), true
}

// BusyIntervals returns the timed events overlapping [from, to) as
// intervals. Events without an end and all-day events are left out.
func (s *Store) BusyIntervals(from, to time.Time) []model.Interval {
	window := model.Interval{Start: from, End: to}
	out := make([]model.Interval, 0)
	for _, ev := range s.Events() {
		if ev.AllDay || ev.End == nil {
			continue
		}
		iv := model.Interval{Start: ev.Start, End: *ev.End}
		if iv.Valid() && iv.Overlaps(window) {
			out = append(out, iv)
		}
	}
	return out
}

func indexEvent(events []model.StoredEvent, id string) int {
	for i, ev := range events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}
