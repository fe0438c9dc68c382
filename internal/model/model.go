package model

import (
	"errors"
	"strings"
	"time"
)

// MainCalendarID is the calendar every event falls back to when no
// calendar is given.
const MainCalendarID = "main"

// Source records how an event entered the store.
type Source string

const (
	SourceManual   Source = "manual"
	SourceImported Source = "imported"
	SourceDemo     Source = "demo"
)

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether Start is strictly before End.
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching at a boundary is not an overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return !(!iv.End.After(o.Start) || !iv.Start.Before(o.End))
}

type User struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// IsZero reports whether the profile carries no data.
func (u User) IsZero() bool {
	return u.Name == "" && u.Email == ""
}

type Calendar struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// StoredEvent is the serialized form of an event. Timestamps are ISO-8601
// strings; it is the only form that is ever kept in the store or on disk.
type StoredEvent struct {
	ID          string  `json:"id"`
	CalendarID  string  `json:"calendarId"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	AllDay      bool    `json:"allDay"`
	Start       string  `json:"start"`
	End         *string `json:"end"`
	Source      Source  `json:"source"`
	ExternalID  string  `json:"externalId,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// StoredTodo is the serialized form of a todo.
type StoredTodo struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Done       bool    `json:"done"`
	CalendarID string  `json:"calendarId"`
	Due        *string `json:"due"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
}

// Snapshot is the unit of persistence: the complete store state in its
// serialized form.
type Snapshot struct {
	User      User          `json:"user"`
	Calendars []Calendar    `json:"calendars"`
	Events    []StoredEvent `json:"events"`
	Todos     []StoredTodo  `json:"todos"`
}

// Clone returns a deep copy so callers can't alias store internals.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		User:      s.User,
		Calendars: append([]Calendar(nil), s.Calendars...),
		Events:    make([]StoredEvent, len(s.Events)),
		Todos:     make([]StoredTodo, len(s.Todos)),
	}
	for i, ev := range s.Events {
		ev.End = cloneString(ev.End)
		out.Events[i] = ev
	}
	for i, td := range s.Todos {
		td.Due = cloneString(td.Due)
		out.Todos[i] = td
	}
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Event is the read view of StoredEvent with timestamps materialized.
type Event struct {
	ID          string     `json:"id"`
	CalendarID  string     `json:"calendarId"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	AllDay      bool       `json:"allDay"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end"`
	Source      Source     `json:"source"`
	ExternalID  string     `json:"externalId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Todo is the read view of StoredTodo.
type Todo struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Done       bool       `json:"done"`
	CalendarID string     `json:"calendarId"`
	Due        *time.Time `json:"due"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ImportRecord is what a calendar file import yields per event instance.
type ImportRecord struct {
	UID         string
	Summary     string
	Description string
	Location    string
	AllDay      bool
	Start       time.Time
	End         time.Time
}

// ISOLayout matches JavaScript's Date.prototype.toISOString output.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrBadTimestamp = errors.New("model: malformed timestamp")

// FormatTime converts a time to its stored form: UTC, millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// FormatTimePtr is FormatTime for optional timestamps.
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

// ParseTime parses a stored or client-supplied ISO-8601 timestamp. Date-only
// values ("2025-01-31") are read as UTC midnight.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadTimestamp
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, ErrBadTimestamp
}

// ParseTimePtr is ParseTime for optional timestamps. A malformed value reads
// as absent.
func ParseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil
	}
	return &t
}

// mustParse is used on read paths where the stored value was produced by
// FormatTime; a corrupted value decodes to the zero time.
func mustParse(s string) time.Time {
	t, _ := ParseTime(s)
	return t
}

// ToView materializes a stored event.
func (e StoredEvent) ToView() Event {
	return Event{
		ID:          e.ID,
		CalendarID:  e.CalendarID,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		AllDay:      e.AllDay,
		Start:       mustParse(e.Start),
		End:         ParseTimePtr(e.End),
		Source:      e.Source,
		ExternalID:  e.ExternalID,
		CreatedAt:   mustParse(e.CreatedAt),
		UpdatedAt:   mustParse(e.UpdatedAt),
	}
}

// ToView materializes a stored todo.
func (t StoredTodo) ToView() Todo {
	return Todo{
		ID:         t.ID,
		Text:       t.Text,
		Done:       t.Done,
		CalendarID: t.CalendarID,
		Due:        ParseTimePtr(t.Due),
		CreatedAt:  mustParse(t.CreatedAt),
		UpdatedAt:  mustParse(t.UpdatedAt),
	}
}
