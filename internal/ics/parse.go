package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "lifehub/internal/log"
)

// ErrEmptyBody is returned for an empty calendar file.
var ErrEmptyBody = errors.New("ics: empty body")

// ParsedEvent is one VEVENT as read from a calendar file. Recurrence is
// recorded but not expanded; see ExpandOccurrences.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, set on overrides
	IsOverride bool
}

// ParseICS parses a calendar file into events. A VEVENT that can't be read
// is logged and skipped; only a file-level failure is an error.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Warn("ics: unreadable calendar", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	vevents := cal.Events()
	out := make([]ParsedEvent, 0, len(vevents))
	for _, ve := range vevents {
		ev, err := readVEvent(src, ve)
		if err != nil {
			appLog.Warn("ics: vevent skipped", err, "id", src.ID)
			continue
		}
		out = append(out, ev)
	}

	appLog.Debug("ics parsed", "id", src.ID, "events", len(out), "components", len(vevents))
	return out, nil
}

func readVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	ev := ParsedEvent{
		Source:      src,
		UID:         propText(ve, ical.ComponentPropertyUniqueId),
		Summary:     propText(ve, ical.ComponentPropertySummary),
		Description: propText(ve, ical.ComponentPropertyDescription),
		Location:    propText(ve, ical.ComponentPropertyLocation),
		RawRRule:    propText(ve, ical.ComponentPropertyRrule),
	}
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	ev.Seq, _ = strconv.Atoi(propText(ve, ical.ComponentPropertySequence))

	if err := readSpan(ve, &ev); err != nil {
		return ev, err
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := tzidOf(p)
		for _, v := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(v, tz); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, err := parseICSTime(rid.Value, tzidOf(rid)); err == nil {
			ev.Recurrence = &t
			ev.IsOverride = true
		}
	}
	return ev, nil
}

// readSpan fills Start/End/AllDay. A DATE start without DTEND lasts one
// day; a timed start without DTEND has a zero End.
func readSpan(ve *ical.VEvent, ev *ParsedEvent) error {
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtStart)

	if !ev.AllDay {
		start, err := ve.GetStartAt()
		if err != nil {
			return err
		}
		ev.Start = start
		ev.End, _ = ve.GetEndAt()
		return nil
	}

	start, err := ve.GetAllDayStartAt()
	if err != nil {
		return err
	}
	ev.Start = start
	if end, err := ve.GetAllDayEndAt(); err == nil {
		ev.End = end
	} else {
		ev.End = start.AddDate(0, 0, 1)
	}
	return nil
}

func propText(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// isDateValue reports VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzidOf(p *ical.IANAProperty) string {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// parseICSTime reads DATE / DATE-TIME / UTC forms used by EXDATE and
// RECURRENCE-ID. tzid, when it names a known zone, is used for floating
// values; otherwise time.Local.
func parseICSTime(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	loc := time.Local
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
