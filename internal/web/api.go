package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"lifehub/internal/auth"
	"lifehub/internal/ics"
	appLog "lifehub/internal/log"
	"lifehub/internal/model"
	"lifehub/internal/store"
)

const maxImportBytes = 5 << 20

var errBadBody = errors.New("malformed request body")

// writeStoreError maps store rejections onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEmptyText),
		errors.Is(err, store.ErrEmptyName),
		errors.Is(err, store.ErrInvalidEvent),
		errors.Is(err, store.ErrMissingStart),
		errors.Is(err, model.ErrBadTimestamp),
		errors.Is(err, errBadBody):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("store operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

type meResponse struct {
	UserID string     `json:"userId,omitempty"`
	User   model.User `json:"user"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{UserID: uid, User: s.store.User()})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.store.ResetData()
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// ---- events ----

type eventBody struct {
	CalendarID  string  `json:"calendarId"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	AllDay      bool    `json:"allDay"`
	Start       string  `json:"start"`
	End         *string `json:"end"`
}

// handleListEvents returns all events, or with ?days=N&backfill=M only the
// ones overlapping [now-M days, now+N days].
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.store.Events()

	q := r.URL.Query()
	if q.Get("days") == "" {
		writeJSON(w, http.StatusOK, events)
		return
	}

	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}
	now := s.now().In(s.cfg.Location())
	window := model.Interval{Start: now.AddDate(0, 0, -backfill), End: now.AddDate(0, 0, days)}

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		end := ev.Start
		if ev.End != nil {
			end = *ev.End
		}
		if end.Equal(ev.Start) {
			if !ev.Start.Before(window.Start) && ev.Start.Before(window.End) {
				out = append(out, ev)
			}
			continue
		}
		if (model.Interval{Start: ev.Start, End: end}).Overlaps(window) {
			out = append(out, ev)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body eventBody
	if err := decodeBody(r, &body); err != nil {
		writeStoreError(w, err)
		return
	}
	start, err := model.ParseTime(body.Start)
	if err != nil {
		writeStoreError(w, store.ErrMissingStart)
		return
	}
	var end *time.Time
	if body.End != nil {
		e, err := model.ParseTime(*body.End)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		end = &e
	}

	id, err := s.store.AddEvent(store.EventInput{
		CalendarID:  body.CalendarID,
		Summary:     body.Summary,
		Description: body.Description,
		Location:    body.Location,
		AllDay:      body.AllDay,
		Start:       start,
		End:         end,
		Source:      model.SourceManual,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ev, _ := s.store.Event(id)
	writeJSON(w, http.StatusCreated, ev)
}

// handleUpdateEvent applies a partial update. Only present keys change;
// "end": null clears the end time.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var raw map[string]json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		writeStoreError(w, err)
		return
	}
	patch, err := eventPatchFromRaw(raw)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.UpdateEvent(id, patch); err != nil {
		writeStoreError(w, err)
		return
	}
	ev, _ := s.store.Event(id)
	writeJSON(w, http.StatusOK, ev)
}

func eventPatchFromRaw(raw map[string]json.RawMessage) (store.EventPatch, error) {
	var p store.EventPatch
	str := func(key string) (*string, error) {
		v, ok := raw[key]
		if !ok {
			return nil, nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errBadBody, key, err)
		}
		return &s, nil
	}

	var err error
	if p.CalendarID, err = str("calendarId"); err != nil {
		return p, err
	}
	if p.Summary, err = str("summary"); err != nil {
		return p, err
	}
	if p.Description, err = str("description"); err != nil {
		return p, err
	}
	if p.Location, err = str("location"); err != nil {
		return p, err
	}
	if v, ok := raw["allDay"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return p, fmt.Errorf("%w: allDay: %v", errBadBody, err)
		}
		p.AllDay = &b
	}

	start, err := str("start")
	if err != nil {
		return p, err
	}
	if start != nil {
		t, err := model.ParseTime(*start)
		if err != nil {
			return p, err
		}
		p.Start = &t
	}

	if v, ok := raw["end"]; ok {
		if string(v) == "null" {
			p.ClearEnd = true
		} else {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return p, fmt.Errorf("%w: end: %v", errBadBody, err)
			}
			t, err := model.ParseTime(s)
			if err != nil {
				return p, err
			}
			p.End = &t
		}
	}
	return p, nil
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveEvent(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- todos ----

type todoBody struct {
	Text       string  `json:"text"`
	CalendarID string  `json:"calendarId"`
	Due        *string `json:"due"`
}

func (s *Server) handleListTodos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Todos())
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var body todoBody
	if err := decodeBody(r, &body); err != nil {
		writeStoreError(w, err)
		return
	}
	var due *time.Time
	if body.Due != nil && *body.Due != "" {
		d, err := model.ParseTime(*body.Due)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		due = &d
	}
	id, err := s.store.AddTodo(store.TodoInput{Text: body.Text, CalendarID: body.CalendarID, Due: due})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, findTodo(s.store.Todos(), id))
}

func (s *Server) handleToggleTodo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.ToggleTodo(id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findTodo(s.store.Todos(), id))
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveTodo(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func findTodo(todos []model.Todo, id string) model.Todo {
	for _, td := range todos {
		if td.ID == id {
			return td
		}
	}
	return model.Todo{}
}

// ---- calendars ----

type calendarBody struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleListCalendars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Calendars())
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request) {
	var body calendarBody
	if err := decodeBody(r, &body); err != nil {
		writeStoreError(w, err)
		return
	}
	id, err := s.store.AddCalendar(store.CalendarInput{Name: body.Name, Color: body.Color})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, findCalendar(s.store.Calendars(), id))
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body calendarBody
	if err := decodeBody(r, &body); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.UpdateCalendarColor(id, body.Color); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findCalendar(s.store.Calendars(), id))
}

func findCalendar(cals []model.Calendar, id string) model.Calendar {
	for _, c := range cals {
		if c.ID == id {
			return c
		}
	}
	return model.Calendar{}
}

// ---- import / refresh ----

// handleImport reads an ICS body and imports it into ?calendarId= (main
// by default), expanding recurrences over [now-1d, now+horizon].
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "calendar file too large")
		return
	}

	loc := s.cfg.Location()
	now := s.now().In(loc)
	recs, err := ics.ParseRecords(ics.Source{ID: "upload"}, body, ics.ExpandConfig{
		Location:   loc,
		RangeStart: now.AddDate(0, 0, -1),
		RangeEnd:   now.AddDate(0, 0, s.cfg.HorizonDays),
	})
	if err != nil {
		appLog.Warn("import: unreadable calendar file", err, "bytes", len(body))
		writeError(w, http.StatusBadRequest, "unreadable calendar file")
		return
	}

	res := s.store.ImportEvents(r.URL.Query().Get("calendarId"), recs)
	appLog.Info("import done", "added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	writeJSON(w, http.StatusOK, res)
}

type reportDTO struct {
	ID        string `json:"id"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	FromCache bool   `json:"fromCache"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotFound, "no calendar subscriptions configured")
		return
	}
	reports := s.refresh(r.Context())
	out := make([]reportDTO, 0, len(reports))
	for _, rep := range reports {
		dto := reportDTO{
			ID:        rep.SourceID,
			Added:     rep.Result.Added,
			Updated:   rep.Result.Updated,
			Skipped:   rep.Result.Skipped,
			FromCache: rep.FromCache,
		}
		if rep.Err != nil {
			dto.Error = rep.Err.Error()
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}
