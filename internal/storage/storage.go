package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	appLog "lifehub/internal/log"
	"lifehub/internal/model"
)

// DefaultKey is the snapshot name used when none is configured.
const DefaultKey = "lifehub-data"

// FileStore keeps the store snapshot as a single JSON file, <Dir>/<Key>.json.
type FileStore struct {
	Dir string
	Key string
}

// NewFileStore returns a FileStore rooted at dir. An empty key means DefaultKey.
func NewFileStore(dir, key string) *FileStore {
	if key == "" {
		key = DefaultKey
	}
	return &FileStore{Dir: dir, Key: key}
}

// Path returns the snapshot file location.
func (f *FileStore) Path() string {
	return filepath.Join(f.Dir, f.Key+".json")
}

// Load reads the snapshot. The bool result is false when nothing usable is
// stored: a missing file, or one whose top level is not a JSON object, which
// is moved aside to <path>.corrupt so the next Save starts clean.
//
// Fields are decoded one at a time. A field with the wrong shape is logged
// and left zero, so the store keeps its default for it and the other fields
// survive.
func (f *FileStore) Load() (model.Snapshot, bool, error) {
	path := f.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		backupPath := path + ".corrupt"
		if rerr := os.Rename(path, backupPath); rerr != nil {
			appLog.Error("storage: could not back up corrupt snapshot", rerr, "path", path)
		}
		appLog.Warn("storage: corrupt snapshot ignored", err, "path", path, "backup", backupPath)
		return model.Snapshot{}, false, nil
	}

	var snap model.Snapshot
	decodeField(fields, "user", &snap.User, path)
	decodeField(fields, "calendars", &snap.Calendars, path)
	decodeField(fields, "events", &snap.Events, path)
	decodeField(fields, "todos", &snap.Todos, path)
	return snap, true, nil
}

// decodeField unmarshals fields[name] into dst. On failure dst is reset to
// its zero value.
func decodeField[T any](fields map[string]json.RawMessage, name string, dst *T, path string) {
	raw, ok := fields[name]
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var zero T
		*dst = zero
		appLog.Warn("storage: snapshot field ignored", err, "path", path, "field", name)
	}
}

// Save atomically replaces the snapshot file.
func (f *FileStore) Save(snap model.Snapshot) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	tmp, err := os.CreateTemp(f.Dir, "."+f.Key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("storage error creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage error syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage error closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("storage error setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.Path()); err != nil {
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}
