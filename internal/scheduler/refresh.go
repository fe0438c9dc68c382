package scheduler

import (
	"context"
	"time"

	"lifehub/internal/ics"
	appLog "lifehub/internal/log"
	"lifehub/internal/model"
	"lifehub/internal/store"
)

// Subscription is one feed and the calendar its events land in.
type Subscription struct {
	Source     ics.Source
	CalendarID string
}

// Fetcher downloads a feed body.
type Fetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Importer receives expanded feed events.
type Importer interface {
	ImportEvents(calendarID string, recs []model.ImportRecord) store.ImportResult
}

// Report is the outcome of refreshing one subscription.
type Report struct {
	SourceID  string
	Result    store.ImportResult
	FromCache bool
	Err       error
}

// Refresher pulls every subscription into the store.
type Refresher struct {
	Fetcher  Fetcher
	Importer Importer
	Subs     []Subscription
	Location *time.Location
	Horizon  time.Duration
	Now      func() time.Time
}

// RefreshAll fetches, expands over [now-1d, now+Horizon] and imports each
// subscription in order. One failing feed does not stop the others.
func (r *Refresher) RefreshAll(ctx context.Context) []Report {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	horizon := r.Horizon
	if horizon <= 0 {
		horizon = 30 * 24 * time.Hour
	}

	t := now().In(loc)
	cfg := ics.ExpandConfig{
		Location:   loc,
		RangeStart: t.Add(-24 * time.Hour),
		RangeEnd:   t.Add(horizon),
	}

	reports := make([]Report, 0, len(r.Subs))
	for _, sub := range r.Subs {
		if err := ctx.Err(); err != nil {
			reports = append(reports, Report{SourceID: sub.Source.ID, Err: err})
			continue
		}
		rep := r.refreshOne(ctx, sub, cfg)
		if rep.Err != nil {
			appLog.Error("ics refresh failed", rep.Err, "id", sub.Source.ID)
		} else {
			appLog.Info("ics refresh done",
				"id", sub.Source.ID,
				"calendar", sub.CalendarID,
				"added", rep.Result.Added,
				"updated", rep.Result.Updated,
				"skipped", rep.Result.Skipped,
				"cached", rep.FromCache,
			)
		}
		reports = append(reports, rep)
	}
	return reports
}

func (r *Refresher) refreshOne(ctx context.Context, sub Subscription, cfg ics.ExpandConfig) Report {
	rep := Report{SourceID: sub.Source.ID}

	res, err := r.Fetcher.FetchOne(ctx, sub.Source)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.FromCache = res.FromCache

	recs, err := ics.ParseRecords(sub.Source, res.Body, cfg)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Result = r.Importer.ImportEvents(sub.CalendarID, recs)
	return rep
}
