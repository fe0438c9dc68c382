package store

import (
	"strings"
	"time"

	"lifehub/internal/model"
)

type TodoInput struct {
	Text       string
	CalendarID string
	Due        *time.Time
}

// AddTodo prepends a new open todo, so the list stays newest-first.
func (s *Store) AddTodo(in TodoInput) (string, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", ErrEmptyText
	}

	var id string
	err := s.mutate(func(st *model.Snapshot, now string) (Change, error) {
		id = s.newID()
		td := model.StoredTodo{
			ID:         id,
			Text:       text,
			CalendarID: calendarOrMain(in.CalendarID),
			Due:        model.FormatTimePtr(in.Due),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		st.Todos = append([]model.StoredTodo{td}, st.Todos...)
		return Change{Op: OpCreate, Collection: CollectionTodos, ID: id}, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ToggleTodo flips the done flag.
func (s *Store) ToggleTodo(id string) error {
	return s.mutate(func(st *model.Snapshot, now string) (Change, error) {
		i := indexTodo(st.Todos, id)
		if i < 0 {
			return Change{}, ErrNotFound
		}
		st.Todos[i].Done = !st.Todos[i].Done
		st.Todos[i].UpdatedAt = now
		return Change{Op: OpUpdate, Collection: CollectionTodos, ID: id}, nil
	})
}

func (s *Store) RemoveTodo(id string) error {
	return s.mutate(func(st *model.Snapshot, _ string) (Change, error) {
		i := indexTodo(st.Todos, id)
		if i < 0 {
			return Change{}, ErrNotFound
		}
		st.Todos = append(st.Todos[:i], st.Todos[i+1:]...)
		return Change{Op: OpDelete, Collection: CollectionTodos, ID: id}, nil
	})
}

// Todos returns all todos, newest first, with timestamps materialized.
func (s *Store) Todos() []model.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Todo, 0, len(s.state.Todos))
	for _, td := range s.state.Todos {
		out = append(out, td.ToView())
	}
	return out
}

func indexTodo(todos []model.StoredTodo, id string) int {
	for i, td := range todos {
		if td.ID == id {
			return i
		}
	}
	return -1
}
