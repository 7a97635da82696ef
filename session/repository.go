package session

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	indexFile  = "index.json"
	recordsDir = "records"
)

// indexData is the structure of index.json.
type indexData struct {
	Sessions map[string]time.Time `json:"sessions"`
}

// FileRepository implements Repository with one JSON file per session under
// records/ and an index.json beside it mapping id to last_accessed_at.
// The index is derived data: it is rebuilt from the records when missing
// or unreadable.
type FileRepository struct {
	dir string

	mu    sync.RWMutex
	index map[string]time.Time
	// gen counts index changes; flushed is the gen last written to disk.
	gen     uint64
	flushed uint64

	// flushMu serializes index writes. A writer whose change was already
	// covered by another flush skips its own.
	flushMu sync.Mutex
}

// NewFileRepository opens the repository under dataDir/sessions.
func NewFileRepository(dataDir string) (*FileRepository, error) {
	dir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(filepath.Join(dir, recordsDir), 0755); err != nil {
		return nil, err
	}
	r := &FileRepository{dir: dir}

	index, err := r.readIndex()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("session index unreadable, rebuilding", "error", err)
		}
		if index, err = r.scan(); err != nil {
			return nil, err
		}
		if err := r.writeIndex(index); err != nil {
			return nil, err
		}
	}
	r.index = index
	return r, nil
}

func (r *FileRepository) indexPath() string {
	return filepath.Join(r.dir, indexFile)
}

func (r *FileRepository) recordPath(id string) string {
	return filepath.Join(r.dir, recordsDir, id+".json")
}

// readIndex returns an os.ErrNotExist error when there is no index yet.
func (r *FileRepository) readIndex() (map[string]time.Time, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		return nil, err
	}

	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	if idx.Sessions == nil {
		idx.Sessions = map[string]time.Time{}
	}
	return idx.Sessions, nil
}

// scan rebuilds the index from the record files on disk.
func (r *FileRepository) scan() (map[string]time.Time, error) {
	dir := filepath.Join(r.dir, recordsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	index := make(map[string]time.Time)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := readRecord(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("skipping unreadable session record", "file", name, "error", err)
			continue
		}
		index[rec.ID] = rec.LastAccessedAt
	}
	return index, nil
}

func (r *FileRepository) writeIndex(sessions map[string]time.Time) error {
	data, err := json.MarshalIndent(indexData{Sessions: sessions}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.dir, r.indexPath(), data)
}

// flushIndex writes the index if change gen is not on disk yet. Writers
// that queue behind one flush are covered by the next single write.
func (r *FileRepository) flushIndex(gen uint64) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.RLock()
	if r.flushed >= gen {
		r.mu.RUnlock()
		return nil
	}
	latest := r.gen
	snapshot := maps.Clone(r.index)
	r.mu.RUnlock()

	if err := r.writeIndex(snapshot); err != nil {
		return err
	}

	r.mu.Lock()
	r.flushed = latest
	r.mu.Unlock()
	return nil
}

// setIndex applies fn to the in-memory index and returns the change number.
func (r *FileRepository) setIndex(fn func(index map[string]time.Time) bool) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !fn(r.index) {
		return 0, false
	}
	r.gen++
	return r.gen, true
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Put writes the record file, then the index. The caller serializes writes
// to the same id; writes to different ids share index flushes.
func (r *FileRepository) Put(rec Record) error {
	if !validID(rec.ID) {
		return fmt.Errorf("invalid session id %q", rec.ID)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.dir, r.recordPath(rec.ID), data); err != nil {
		return err
	}

	gen, _ := r.setIndex(func(index map[string]time.Time) bool {
		index[rec.ID] = rec.LastAccessedAt
		return true
	})
	return r.flushIndex(gen)
}

func (r *FileRepository) Get(id string) (Record, bool, error) {
	if !validID(id) {
		return Record{}, false, nil
	}
	rec, err := readRecord(r.recordPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *FileRepository) Delete(id string) error {
	if !validID(id) {
		return nil
	}
	if err := os.Remove(r.recordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	gen, changed := r.setIndex(func(index map[string]time.Time) bool {
		if _, ok := index[id]; !ok {
			return false
		}
		delete(index, id)
		return true
	})
	if !changed {
		return nil
	}
	return r.flushIndex(gen)
}

func (r *FileRepository) ListAccessedBefore(cutoff time.Time) ([]string, error) {
	r.mu.RLock()
	type entry struct {
		id string
		at time.Time
	}
	var entries []entry
	for id, at := range r.index {
		if at.Before(cutoff) {
			entries = append(entries, entry{id, at})
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b entry) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// writeFileAtomic writes to a temp file in dir then renames it over path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
