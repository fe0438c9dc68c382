package store

import (
	"time"

	"lifehub/internal/model"
)

// demoSnapshot builds the built-in dataset: 4 calendars, 6 events and
// 3 todos, placed relative to the day of now (in now's location).
func demoSnapshot(now time.Time, newID func() string) model.Snapshot {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	at := func(d, h, m int) time.Time {
		return day.AddDate(0, 0, d).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	stamp := model.FormatTime(now)

	event := func(cal, summary, location string, start, end time.Time, allDay bool) model.StoredEvent {
		return model.StoredEvent{
			ID:         newID(),
			CalendarID: cal,
			Summary:    summary,
			Location:   location,
			AllDay:     allDay,
			Start:      model.FormatTime(start),
			End:        model.FormatTimePtr(&end),
			Source:     model.SourceDemo,
			CreatedAt:  stamp,
			UpdatedAt:  stamp,
		}
	}
	todo := func(cal, text string, due *time.Time) model.StoredTodo {
		return model.StoredTodo{
			ID:         newID(),
			Text:       text,
			CalendarID: cal,
			Due:        model.FormatTimePtr(due),
			CreatedAt:  stamp,
			UpdatedAt:  stamp,
		}
	}
	ptr := func(t time.Time) *time.Time { return &t }

	return model.Snapshot{
		User: model.User{Name: "Demo User", Email: "demo@lifehub.local"},
		Calendars: []model.Calendar{
			{ID: model.MainCalendarID, Name: "Personal", Color: DefaultColor},
			{ID: "work", Name: "Work", Color: "#ef4444"},
			{ID: "family", Name: "Family", Color: "#22c55e"},
			{ID: "fitness", Name: "Fitness", Color: "#f59e0b"},
		},
		Events: []model.StoredEvent{
			event("work", "Team standup", "Office", at(0, 9, 0), at(0, 9, 30), false),
			event(model.MainCalendarID, "Lunch with Sam", "Cafe Nero", at(0, 12, 30), at(0, 13, 30), false),
			event("fitness", "Gym session", "City Gym", at(0, 18, 0), at(0, 19, 0), false),
			event("work", "Project review", "Room 4B", at(1, 14, 0), at(1, 15, 0), false),
			event("family", "Family dinner", "Home", at(2, 19, 0), at(2, 21, 0), false),
			event("fitness", "Weekend hike", "", at(5, 0, 0), at(6, 0, 0), true),
		},
		Todos: []model.StoredTodo{
			todo("work", "Prepare slides for project review", ptr(at(1, 12, 0))),
			todo(model.MainCalendarID, "Buy groceries", nil),
			todo("family", "Book dentist appointment", ptr(at(3, 10, 0))),
		},
	}
}
