package web

import (
	"encoding/json"
	"errors"
	"net/http"

	appLog "lifehub/internal/log"
	"lifehub/internal/model"
	"lifehub/internal/slot"
)

const (
	msgNoSlot      = "No free slot found in window."
	msgServerError = "Server error"
)

type busyDTO struct {
	StartISO string `json:"startISO"`
	EndISO   string `json:"endISO"`
	Summary  string `json:"summary,omitempty"`
}

type targetDTO struct {
	DurationMins int    `json:"durationMins"`
	EarliestISO  string `json:"earliestISO"`
	LatestISO    string `json:"latestISO"`
}

type rescheduleRequest struct {
	Events      []busyDTO       `json:"events"`
	TargetEvent *targetDTO      `json:"targetEvent"`
	WorkHours   *slot.WorkHours `json:"workHours,omitempty"`
}

type proposalDTO struct {
	StartISO string `json:"startISO"`
	EndISO   string `json:"endISO"`
	Reason   string `json:"reason"`
}

type rescheduleResponse struct {
	OK       bool         `json:"ok"`
	Proposal *proposalDTO `json:"proposal,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// handleReschedule proposes the earliest free slot for targetEvent among
// the given busy events.
//
// POST /api/ai/reschedule
//   - 200 {ok:true, proposal}
//   - 404 {ok:false, error:"No free slot found in window."}
//   - 500 {ok:false, error:"Server error"} for anything malformed
func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var body rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		appLog.Error("reschedule: bad body", err)
		writeJSON(w, http.StatusInternalServerError, rescheduleResponse{Error: msgServerError})
		return
	}

	req, err := s.slotRequest(body)
	if err != nil {
		appLog.Error("reschedule: bad target", err)
		writeJSON(w, http.StatusInternalServerError, rescheduleResponse{Error: msgServerError})
		return
	}

	busy := busyIntervals(body.Events)
	p, err := slot.Find(busy, req, s.cfg.Location())
	switch {
	case errors.Is(err, slot.ErrNoSlot):
		appLog.Info("reschedule: no slot", "busy", len(busy), "duration", req.Duration.String())
		writeJSON(w, http.StatusNotFound, rescheduleResponse{Error: msgNoSlot})
		return
	case err != nil:
		appLog.Error("reschedule: find failed", err)
		writeJSON(w, http.StatusInternalServerError, rescheduleResponse{Error: msgServerError})
		return
	}

	writeJSON(w, http.StatusOK, rescheduleResponse{
		OK: true,
		Proposal: &proposalDTO{
			StartISO: model.FormatTime(p.Start),
			EndISO:   model.FormatTime(p.End),
			Reason:   p.Reason,
		},
	})
}

func (s *Server) slotRequest(body rescheduleRequest) (slot.Request, error) {
	t := body.TargetEvent
	if t == nil {
		return slot.Request{}, errors.New("targetEvent is missing")
	}
	earliest, err := model.ParseTime(t.EarliestISO)
	if err != nil {
		return slot.Request{}, err
	}
	latest, err := model.ParseTime(t.LatestISO)
	if err != nil {
		return slot.Request{}, err
	}

	d, err := slot.Minutes(t.DurationMins)
	if err != nil {
		return slot.Request{}, err
	}

	wh := slot.WorkHours{Start: s.cfg.WorkHours.Start, End: s.cfg.WorkHours.End}
	if body.WorkHours != nil {
		wh = *body.WorkHours
	}

	return slot.Request{
		Duration:  d,
		Earliest:  earliest,
		Latest:    latest,
		WorkHours: wh,
	}, nil
}

// busyIntervals converts the request events, dropping unparsable ones.
// Ordering and start>=end filtering are left to slot.Find.
func busyIntervals(events []busyDTO) []model.Interval {
	out := make([]model.Interval, 0, len(events))
	for _, ev := range events {
		start, err := model.ParseTime(ev.StartISO)
		if err != nil {
			continue
		}
		end, err := model.ParseTime(ev.EndISO)
		if err != nil {
			continue
		}
		out = append(out, model.Interval{Start: start, End: end})
	}
	return out
}
