package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "lifehub/internal/log"
	"lifehub/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// Occurrence is one concrete instance of an event after recurrence
// expansion.
type Occurrence struct {
	SourceID string
	UID      string
	// InstanceKey is empty for single events and the RFC3339 start of the
	// instance for recurring ones.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	AllDay      bool

	Start time.Time
	End   time.Time
}

// ExpandConfig bounds an expansion to [RangeStart, RangeEnd].
type ExpandConfig struct {
	// Location is the zone occurrences are converted into; nil means time.Local.
	Location *time.Location

	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules; zero picks a default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the occurrences sorted by start, plus the UIDs whose
// expansion hit the cap.
type ExpandResult struct {
	Occurrences     []Occurrence
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed events into concrete occurrences in the
// configured range. It handles RRULE, EXDATE and RECURRENCE-ID overrides.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("ics: expand range end is before start")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	uids := make([]string, 0)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range uids {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			var occ []Occurrence
			hitCap := false
			if ev.RawRRule == "" {
				occ = expandSingle(ev, ov, cfg)
			} else {
				occ, hitCap = expandRecurring(ev, ov, cfg)
			}
			truncated = truncated || hitCap
			result.Occurrences = append(result.Occurrences, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("ics: occurrences truncated", nil, "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		return result.Occurrences[i].Start.Before(result.Occurrences[j].Start)
	})
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	start, end := ev.Start, effectiveEnd(ev)

	if o, ok := findOverride(overrides, start); ok {
		ev, start, end = o, o.Start, effectiveEnd(o)
	}
	if !overlapsRange(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []Occurrence{makeOccurrence(ev, "", start, end, cfg.Location)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := effectiveEnd(ev).Sub(ev.Start)
	// Widen the lower bound so instances that started before the range but
	// are still running are included.
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())

	starts := set.Between(from, to, true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		inst, start, end := ev, s, s.Add(dur)
		if o, ok := findOverride(overrides, s); ok {
			inst, start, end = o, o.Start, effectiveEnd(o)
		}
		if !overlapsRange(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(inst, s.Format(time.RFC3339), start, end, cfg.Location))
	}
	return out, hitCap
}

// effectiveEnd fills a missing DTEND: one day for all-day events, zero
// length otherwise.
func effectiveEnd(ev ParsedEvent) time.Time {
	if !ev.End.IsZero() {
		return ev.End
	}
	if ev.AllDay {
		return ev.Start.AddDate(0, 0, 1)
	}
	return ev.Start
}

func findOverride(overrides []ParsedEvent, instanceStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(instanceStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(ev ParsedEvent, key string, start, end time.Time, loc *time.Location) Occurrence {
	return Occurrence{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		InstanceKey: key,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start.In(loc),
		End:         end.In(loc),
	}
}

// overlapsRange is inclusive at both ends, and a zero-length event at the
// range start still counts.
func overlapsRange(start, end, rangeStart, rangeEnd time.Time) bool {
	return !end.Before(rangeStart) && !start.After(rangeEnd)
}

// ToImportRecords converts occurrences into records the store can import.
// Recurring instances get a per-instance UID so each one is tracked
// separately across re-imports.
func ToImportRecords(occs []Occurrence) []model.ImportRecord {
	out := make([]model.ImportRecord, 0, len(occs))
	for _, o := range occs {
		uid := o.UID
		if o.InstanceKey != "" {
			uid = o.UID + "@" + o.InstanceKey
		}
		rec := model.ImportRecord{
			UID:         uid,
			Summary:     o.Summary,
			Description: o.Description,
			Location:    o.Location,
			AllDay:      o.AllDay,
			Start:       o.Start,
		}
		if o.End.After(o.Start) {
			rec.End = o.End
		}
		out = append(out, rec)
	}
	return out
}
