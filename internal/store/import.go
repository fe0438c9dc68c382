package store

import (
	"errors"
	"time"

	appLog "lifehub/internal/log"
	"lifehub/internal/model"
)

// ImportResult counts what ImportEvents did.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ImportEvents adds calendar-file records to calendarID. A record whose UID
// matches the ExternalID of an existing event in the same calendar updates
// that event instead, so repeated imports of one feed don't duplicate it.
// Records without a start or ending before they start are skipped.
func (s *Store) ImportEvents(calendarID string, recs []model.ImportRecord) ImportResult {
	calendarID = calendarOrMain(calendarID)
	var res ImportResult

	err := s.mutate(func(st *model.Snapshot, now string) (Change, error) {
		for _, rec := range recs {
			var end *time.Time
			if !rec.End.IsZero() {
				e := rec.End
				end = &e
			}
			if checkRange(rec.Start, end) != nil {
				res.Skipped++
				continue
			}

			in := EventInput{
				CalendarID:  calendarID,
				Summary:     rec.Summary,
				Description: rec.Description,
				Location:    rec.Location,
				AllDay:      rec.AllDay,
				Start:       rec.Start,
				End:         end,
				Source:      model.SourceImported,
				ExternalID:  rec.UID,
			}

			if i := indexExternal(st.Events, calendarID, rec.UID); i >= 0 {
				existing := st.Events[i]
				updated := newStoredEvent(existing.ID, in, now)
				updated.CreatedAt = existing.CreatedAt
				st.Events[i] = updated
				res.Updated++
				continue
			}

			st.Events = append(st.Events, newStoredEvent(s.newID(), in, now))
			res.Added++
		}
		if res.Added == 0 && res.Updated == 0 {
			return Change{}, errNothingImported
		}
		return Change{Op: OpBulk, Collection: CollectionEvents}, nil
	})
	if err != nil && !errors.Is(err, errNothingImported) {
		appLog.Warn("store: import failed", err)
	}
	return res
}

var errNothingImported = errors.New("store: nothing imported")

func indexExternal(events []model.StoredEvent, calendarID, uid string) int {
	if uid == "" {
		return -1
	}
	for i, ev := range events {
		if ev.CalendarID == calendarID && ev.ExternalID == uid {
			return i
		}
	}
	return -1
}
