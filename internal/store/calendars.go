package store

import (
	"strings"

	"lifehub/internal/model"
)

// DefaultColor is used for calendars created without a color.
const DefaultColor = "#3b82f6"

type CalendarInput struct {
	Name  string
	Color string
}

func colorOrDefault(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return DefaultColor
	}
	return c
}

func (s *Store) AddCalendar(in CalendarInput) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", ErrEmptyName
	}

	var id string
	err := s.mutate(func(st *model.Snapshot, _ string) (Change, error) {
		id = s.newID()
		st.Calendars = append(st.Calendars, model.Calendar{
			ID:    id,
			Name:  name,
			Color: colorOrDefault(in.Color),
		})
		return Change{Op: OpCreate, Collection: CollectionCalendars, ID: id}, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateCalendarColor(id, color string) error {
	return s.mutate(func(st *model.Snapshot, _ string) (Change, error) {
		for i := range st.Calendars {
			if st.Calendars[i].ID == id {
				st.Calendars[i].Color = colorOrDefault(color)
				return Change{Op: OpUpdate, Collection: CollectionCalendars, ID: id}, nil
			}
		}
		return Change{}, ErrNotFound
	})
}

func (s *Store) Calendars() []model.Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Calendar(nil), s.state.Calendars...)
}

// HasCalendar reports whether a calendar with id exists.
func (s *Store) HasCalendar(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Calendars {
		if c.ID == id {
			return true
		}
	}
	return false
}
