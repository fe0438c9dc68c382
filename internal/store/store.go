// Package store holds the process-wide LifeHub state: the user profile,
// calendars, events and todos.
//
// Records are kept only in their serialized form (model.StoredEvent,
// model.StoredTodo) and converted to time.Time views on every read. After
// Hydrate has run, every mutation writes the full snapshot through the
// Persister and notifies subscribers.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "lifehub/internal/log"
	"lifehub/internal/model"
)

var (
	ErrNotFound     = errors.New("store: record not found")
	ErrEmptyText    = errors.New("store: text is empty")
	ErrEmptyName    = errors.New("store: name is empty")
	ErrInvalidEvent = errors.New("store: event end is before start")
	ErrMissingStart = errors.New("store: event start is required")
)

// Persister reads and writes the snapshot. Load reports false when nothing
// is stored yet.
type Persister interface {
	Load() (model.Snapshot, bool, error)
	Save(model.Snapshot) error
}

// Op names the kind of mutation carried by a Change.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpBulk means several records of Collection changed at once.
	OpBulk Op = "bulk"
	// OpReset means the whole state was replaced (reset or hydration).
	OpReset Op = "reset"
)

// Collection names, also used as document collection names by the mirror.
const (
	CollectionEvents    = "events"
	CollectionTodos     = "todos"
	CollectionCalendars = "calendars"
)

// Change describes one committed mutation.
type Change struct {
	Op         Op
	Collection string
	ID         string
}

// Listener is called after each committed mutation, outside the store lock,
// in commit order. The snapshot is a private copy owned by the listener. A
// listener may read the store but must not mutate it.
type Listener func(Change, model.Snapshot)

// Options tune a Store. Zero values pick production defaults.
type Options struct {
	Now      func() time.Time
	NewID    func() string
	Location *time.Location
}

type subscriber struct {
	id int
	fn Listener
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	state    model.Snapshot
	hydrated bool

	persister Persister
	now       func() time.Time
	newID     func() string
	loc       *time.Location

	subs   []subscriber
	nextID int

	// committed is guarded by mu; delivered by turnMu. Notifications for
	// commit n wait until n-1 has been delivered.
	committed uint64
	turnMu    sync.Mutex
	turn      *sync.Cond
	delivered uint64
}

// New returns a Store seeded with the demo dataset. Nothing is persisted
// until Hydrate has been called.
func New(p Persister, opts Options) *Store {
	s := &Store{
		persister: p,
		now:       opts.Now,
		newID:     opts.NewID,
		loc:       opts.Location,
	}
	s.turn = sync.NewCond(&s.turnMu)
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	s.state = demoSnapshot(s.now().In(s.loc), s.newID)
	return s
}

// Hydrate merges the persisted snapshot over the defaults and enables
// write-back. Each collection is replaced only when the stored one is
// non-empty; the user only when it carries data. Calling it again is a no-op.
func (s *Store) Hydrate() {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return
	}

	if s.persister != nil {
		stored, ok, err := s.persister.Load()
		switch {
		case err != nil:
			appLog.Warn("store: snapshot read failed; keeping defaults", err)
		case ok:
			mergeSnapshot(&s.state, stored)
		}
	}
	s.hydrated = true

	snap := s.state.Clone()
	subs, seq := s.listenersLocked()
	s.mu.Unlock()

	appLog.Info("store hydrated",
		"calendars", len(snap.Calendars),
		"events", len(snap.Events),
		"todos", len(snap.Todos),
	)
	s.deliver(seq, subs, Change{Op: OpReset}, snap)
}

func mergeSnapshot(dst *model.Snapshot, src model.Snapshot) {
	if !src.User.IsZero() {
		dst.User = src.User
	}
	if len(src.Calendars) > 0 {
		dst.Calendars = src.Calendars
	}
	if len(src.Events) > 0 {
		dst.Events = src.Events
	}
	if len(src.Todos) > 0 {
		dst.Todos = src.Todos
	}
}

// Hydrated reports whether write-back is enabled.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// listenersLocked copies the subscriber list and takes the next commit
// sequence number. Callers must pass both to deliver.
func (s *Store) listenersLocked() ([]Listener, uint64) {
	out := make([]Listener, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.fn
	}
	s.committed++
	return out, s.committed
}

// deliver notifies subs once every earlier commit has been delivered.
func (s *Store) deliver(seq uint64, subs []Listener, ch Change, snap model.Snapshot) {
	s.turnMu.Lock()
	for s.delivered != seq-1 {
		s.turn.Wait()
	}
	s.turnMu.Unlock()

	for _, fn := range subs {
		fn(ch, snap.Clone())
	}

	s.turnMu.Lock()
	s.delivered = seq
	s.turn.Broadcast()
	s.turnMu.Unlock()
}

// mutate runs fn against the live state under the lock. When fn succeeds
// the snapshot is written back (once hydrated) and subscribers are notified.
func (s *Store) mutate(fn func(st *model.Snapshot, now string) (Change, error)) error {
	s.mu.Lock()
	ch, err := fn(&s.state, model.FormatTime(s.now()))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.state.Clone()
	if s.hydrated {
		s.persistLocked(snap)
	}
	subs, seq := s.listenersLocked()
	s.mu.Unlock()

	s.deliver(seq, subs, ch, snap)
	return nil
}

// persistLocked writes snap. Failures are logged; in-memory state stays.
func (s *Store) persistLocked(snap model.Snapshot) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(snap); err != nil {
		appLog.Warn("store: snapshot write failed", err)
	}
}

// ResetData discards all state, regenerates the demo dataset relative to
// now and persists it immediately.
func (s *Store) ResetData() {
	s.mu.Lock()
	s.state = demoSnapshot(s.now().In(s.loc), s.newID)
	s.hydrated = true
	snap := s.state.Clone()
	s.persistLocked(snap)
	subs, seq := s.listenersLocked()
	s.mu.Unlock()

	appLog.Info("store reset to demo data")
	s.deliver(seq, subs, Change{Op: OpReset}, snap)
}

// Snapshot returns a copy of the serialized state.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// User returns the profile.
func (s *Store) User() model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User
}
