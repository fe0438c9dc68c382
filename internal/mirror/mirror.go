// Package mirror copies store changes into a hosted document table so other
// clients can read the same data. Writes are fire-and-forget: a failure is
// logged and never rolls back the local commit.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "lifehub/internal/log"
	"lifehub/internal/model"
	"lifehub/internal/store"
)

// CollectionUsers holds the profile document at users/{uid}.
const CollectionUsers = "users"

const (
	defaultQueueSize = 256
	writeTimeout     = 10 * time.Second
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	data       JSONB NOT NULL,
	starts_at  TIMESTAMPTZ,
	ends_at    TIMESTAMPTZ,
	due_at     TIMESTAMPTZ,
	created_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ
)`

const upsertSQL = `
INSERT INTO documents (path, collection, data, starts_at, ends_at, due_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (path) DO UPDATE SET
	collection = EXCLUDED.collection,
	data       = EXCLUDED.data,
	starts_at  = EXCLUDED.starts_at,
	ends_at    = EXCLUDED.ends_at,
	due_at     = EXCLUDED.due_at,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at`

const deleteSQL = `DELETE FROM documents WHERE path = $1`

const deletePrefixSQL = `DELETE FROM documents WHERE left(path, length($1)) = $1`

var ErrNoUser = errors.New("mirror: user id is empty")

// Execer is the subset of *sql.DB the mirror needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Document is one row of the documents table.
type Document struct {
	Path       string
	Collection string
	Data       []byte
	StartsAt   *time.Time
	EndsAt     *time.Time
	DueAt      *time.Time
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
}

type job struct {
	change store.Change
	snap   model.Snapshot
}

// Mirror owns one worker goroutine that applies changes in order.
type Mirror struct {
	db     Execer
	userID string

	queue chan job
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts the worker. queueSize <= 0 picks a default.
func New(db Execer, userID string, queueSize int) (*Mirror, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	m := &Mirror{
		db:     db,
		userID: userID,
		queue:  make(chan job, queueSize),
	}
	m.wg.Add(1)
	go m.run()
	return m, nil
}

// EnsureSchema creates the documents table when missing.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, schemaSQL)
	return err
}

// Attach subscribes the mirror to s and returns the unsubscribe function.
func (m *Mirror) Attach(s *store.Store) func() {
	return s.Subscribe(m.Enqueue)
}

// Enqueue hands a change to the worker. It never blocks; when the queue is
// full the change is dropped and logged.
func (m *Mirror) Enqueue(ch store.Change, snap model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- job{change: ch, snap: snap}:
	default:
		appLog.Warn("mirror queue full, dropping change", nil,
			"op", string(ch.Op), "collection", ch.Collection, "id", ch.ID)
	}
}

// Close stops accepting changes and waits for queued ones to be written.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for j := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := m.apply(ctx, j.change, j.snap); err != nil {
			appLog.Warn("mirror write failed", err,
				"op", string(j.change.Op), "collection", j.change.Collection, "id", j.change.ID)
		}
		cancel()
	}
}

func (m *Mirror) apply(ctx context.Context, ch store.Change, snap model.Snapshot) error {
	switch ch.Op {
	case store.OpCreate, store.OpUpdate:
		doc, ok, err := m.document(snap, ch.Collection, ch.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Removed by a later commit; its delete is queued behind this job.
			return nil
		}
		return m.upsert(ctx, doc)

	case store.OpDelete:
		_, err := m.db.ExecContext(ctx, deleteSQL, m.path(ch.Collection, ch.ID))
		return err

	case store.OpBulk:
		return m.replaceCollection(ctx, snap, ch.Collection)

	case store.OpReset:
		return m.replaceTree(ctx, snap)

	default:
		return fmt.Errorf("mirror: unknown op %q", ch.Op)
	}
}

func (m *Mirror) replaceCollection(ctx context.Context, snap model.Snapshot, collection string) error {
	if _, err := m.db.ExecContext(ctx, deletePrefixSQL, m.path(collection, "")); err != nil {
		return err
	}
	docs, err := m.collectionDocuments(snap, collection)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := m.upsert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) replaceTree(ctx context.Context, snap model.Snapshot) error {
	if _, err := m.db.ExecContext(ctx, deletePrefixSQL, CollectionUsers+"/"+m.userID+"/"); err != nil {
		return err
	}
	profile, err := m.userDocument(snap.User)
	if err != nil {
		return err
	}
	if err := m.upsert(ctx, profile); err != nil {
		return err
	}
	for _, c := range []string{store.CollectionCalendars, store.CollectionEvents, store.CollectionTodos} {
		docs, err := m.collectionDocuments(snap, c)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := m.upsert(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Mirror) upsert(ctx context.Context, d Document) error {
	_, err := m.db.ExecContext(ctx, upsertSQL,
		d.Path, d.Collection, string(d.Data),
		nullTime(d.StartsAt), nullTime(d.EndsAt), nullTime(d.DueAt),
		nullTime(d.CreatedAt), nullTime(d.UpdatedAt),
	)
	return err
}

// path is users/{uid}/{collection}/{id}; an empty id yields the
// collection prefix.
func (m *Mirror) path(collection, id string) string {
	return CollectionUsers + "/" + m.userID + "/" + collection + "/" + id
}

func (m *Mirror) document(snap model.Snapshot, collection, id string) (Document, bool, error) {
	docs, err := m.collectionDocuments(snap, collection)
	if err != nil {
		return Document{}, false, err
	}
	want := m.path(collection, id)
	for _, d := range docs {
		if d.Path == want {
			return d, true, nil
		}
	}
	return Document{}, false, nil
}

func (m *Mirror) collectionDocuments(snap model.Snapshot, collection string) ([]Document, error) {
	var out []Document
	switch collection {
	case store.CollectionEvents:
		for _, se := range snap.Events {
			ev := se.ToView()
			data, err := json.Marshal(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, Document{
				Path:       m.path(collection, ev.ID),
				Collection: collection,
				Data:       data,
				StartsAt:   &ev.Start,
				EndsAt:     ev.End,
				CreatedAt:  &ev.CreatedAt,
				UpdatedAt:  &ev.UpdatedAt,
			})
		}
	case store.CollectionTodos:
		for _, st := range snap.Todos {
			td := st.ToView()
			data, err := json.Marshal(td)
			if err != nil {
				return nil, err
			}
			out = append(out, Document{
				Path:       m.path(collection, td.ID),
				Collection: collection,
				Data:       data,
				DueAt:      td.Due,
				CreatedAt:  &td.CreatedAt,
				UpdatedAt:  &td.UpdatedAt,
			})
		}
	case store.CollectionCalendars:
		for _, c := range snap.Calendars {
			data, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			out = append(out, Document{
				Path:       m.path(collection, c.ID),
				Collection: collection,
				Data:       data,
			})
		}
	default:
		return nil, fmt.Errorf("mirror: unknown collection %q", collection)
	}
	return out, nil
}

func (m *Mirror) userDocument(u model.User) (Document, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Path:       CollectionUsers + "/" + m.userID,
		Collection: CollectionUsers,
		Data:       data,
	}, nil
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}
