// Package slot finds the earliest free slot for an event among busy
// intervals, on a fixed quarter-hour grid and within working hours.
package slot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"lifehub/internal/model"
)

// Step is the grid resolution. Candidate starts are always aligned to it.
const Step = 15 * time.Minute

// Reason is attached to every successful proposal.
const Reason = "First available slot within work hours without clashes."

var (
	// ErrNoSlot means no candidate fits the window.
	ErrNoSlot = errors.New("slot: no free slot found in window")
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("slot: invalid request")
)

// WorkHours bounds candidate starts by local hour-of-day: [Start, End).
type WorkHours struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// DefaultWorkHours is 08:00–18:00.
func DefaultWorkHours() WorkHours {
	return WorkHours{Start: 8, End: 18}
}

// maxMinutes is the largest whole-minute count a time.Duration can hold.
const maxMinutes = math.MaxInt64 / int64(time.Minute)

// Minutes converts a minute count to a Duration. Counts a Duration cannot
// represent are an ErrInvalidRequest rather than a wrapped value.
func Minutes(n int) (time.Duration, error) {
	if int64(n) > maxMinutes || int64(n) < -maxMinutes {
		return 0, fmt.Errorf("%w: duration of %d minutes is out of range", ErrInvalidRequest, n)
	}
	return time.Duration(n) * time.Minute, nil
}

// Request describes the event to place.
type Request struct {
	Duration  time.Duration
	Earliest  time.Time
	Latest    time.Time
	WorkHours WorkHours
}

// Proposal is a free slot [Start, End).
type Proposal struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (r Request) validate() error {
	if r.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if r.Earliest.IsZero() || r.Latest.IsZero() {
		return fmt.Errorf("%w: earliest and latest are required", ErrInvalidRequest)
	}
	if r.Earliest.After(r.Latest) {
		return fmt.Errorf("%w: earliest is after latest", ErrInvalidRequest)
	}
	wh := r.WorkHours
	if wh.Start < 0 || wh.Start > 23 || wh.End < 0 || wh.End > 23 {
		return fmt.Errorf("%w: work hours must be within 0..23", ErrInvalidRequest)
	}
	return nil
}

// Find returns the first grid-aligned slot of req.Duration inside
// [req.Earliest, req.Latest] whose start hour lies within req.WorkHours in
// loc and which overlaps none of busy. A nil loc means time.Local.
//
// The first candidate is req.Earliest rounded up to the wall-clock quarter
// hour in loc, so an off-grid earliest such as 09:07 yields 09:15 even
// inside work hours. Busy intervals with Start >= End are ignored. The
// result is a pure function of the arguments.
func Find(busy []model.Interval, req Request, loc *time.Location) (Proposal, error) {
	if err := req.validate(); err != nil {
		return Proposal{}, err
	}
	if loc == nil {
		loc = time.Local
	}

	if req.Duration > req.Latest.Sub(req.Earliest) {
		return Proposal{}, ErrNoSlot
	}

	clean := Normalize(busy)

	for t := alignUp(req.Earliest, loc); !t.After(req.Latest); t = t.Add(Step) {
		h := t.In(loc).Hour()
		if h < req.WorkHours.Start || h >= req.WorkHours.End {
			continue
		}

		candidate := model.Interval{Start: t, End: t.Add(req.Duration)}
		// Later starts only push the end further out.
		if candidate.End.After(req.Latest) {
			break
		}

		if !conflicts(candidate, clean) {
			return Proposal{Start: candidate.Start, End: candidate.End, Reason: Reason}, nil
		}
	}

	return Proposal{}, ErrNoSlot
}

// Normalize drops malformed intervals and sorts the rest by start.
func Normalize(busy []model.Interval) []model.Interval {
	out := make([]model.Interval, 0, len(busy))
	for _, b := range busy {
		if b.Valid() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func conflicts(c model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}

// alignUp rounds t up to the next wall-clock quarter hour in loc. Aligned
// values are returned unchanged.
func alignUp(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	rem := time.Duration(local.Minute()%15)*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	if rem == 0 {
		return t
	}
	return t.Add(Step - rem)
}
