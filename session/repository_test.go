package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

func testRecord(id string, accessed time.Time) Record {
	return Record{
		ID:             id,
		CreatedAt:      accessed,
		LastAccessedAt: accessed,
		ChatHistory:    json.RawMessage(`[]`),
		CurrentDiagram: json.RawMessage(`null`),
		Config:         json.RawMessage(`{"provider":"openai","model":"gpt-4o","format":"drawio"}`),
	}
}

func TestFileRepository_PutGet(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileRepository failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.Put(testRecord("s1", now)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, found, err := repo.Get("s1")
	if err != nil || !found {
		t.Fatalf("Get = (%v, %v), want found", found, err)
	}
	if !rec.LastAccessedAt.Equal(now) {
		t.Errorf("last_accessed_at = %v, want %v", rec.LastAccessedAt, now)
	}

	if _, found, _ := repo.Get("missing"); found {
		t.Error("expected missing record")
	}
}

func TestFileRepository_UpsertReplacesRecord(t *testing.T) {
	repo, _ := NewFileRepository(t.TempDir())
	now := time.Now().UTC()

	repo.Put(testRecord("s1", now))
	updated := testRecord("s1", now.Add(time.Hour))
	updated.ChatHistory = json.RawMessage(`[{"id":"m1"}]`)
	if err := repo.Put(updated); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, _, _ := repo.Get("s1")
	if string(rec.ChatHistory) != `[{"id":"m1"}]` {
		t.Errorf("chat_history = %s", rec.ChatHistory)
	}
	if ids, _ := repo.ListAccessedBefore(now.Add(time.Minute)); len(ids) != 0 {
		t.Errorf("index not updated on upsert: %v", ids)
	}
}

func TestFileRepository_ListAccessedBefore(t *testing.T) {
	repo, _ := NewFileRepository(t.TempDir())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.Put(testRecord("c", base.Add(2*time.Hour)))
	repo.Put(testRecord("a", base))
	repo.Put(testRecord("b", base.Add(time.Hour)))
	repo.Put(testRecord("d", base.Add(3*time.Hour)))

	ids, err := repo.ListAccessedBefore(base.Add(3 * time.Hour))
	if err != nil {
		t.Fatalf("ListAccessedBefore failed: %v", err)
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(ids, want) {
		t.Errorf("ids = %v, want %v (strictly before, oldest first)", ids, want)
	}
}

func TestFileRepository_DeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	repo, _ := NewFileRepository(dir)
	repo.Put(testRecord("s1", time.Now()))

	if err := repo.Delete("s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete("s1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", "records", "s1.json")); !os.IsNotExist(err) {
		t.Errorf("record file still present: %v", err)
	}
	ids, _ := repo.ListAccessedBefore(time.Now().Add(time.Hour))
	if len(ids) != 0 {
		t.Errorf("index still lists %v", ids)
	}
}

func TestFileRepository_ReopenKeepsIndex(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo, _ := NewFileRepository(dir)
	repo.Put(testRecord("s1", base))

	reopened, err := NewFileRepository(dir)
	if err != nil {
		t.Fatalf("NewFileRepository failed: %v", err)
	}
	ids, _ := reopened.ListAccessedBefore(base.Add(time.Second))
	if !slices.Equal(ids, []string{"s1"}) {
		t.Errorf("ids = %v, want [s1]", ids)
	}
}

func TestFileRepository_RebuildsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo, _ := NewFileRepository(dir)
	repo.Put(testRecord("s1", base))
	repo.Put(testRecord("s2", base.Add(time.Hour)))

	indexPath := filepath.Join(dir, "sessions", "index.json")
	if err := os.WriteFile(indexPath, []byte(`{invalid json`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reopened, err := NewFileRepository(dir)
	if err != nil {
		t.Fatalf("NewFileRepository failed: %v", err)
	}
	ids, _ := reopened.ListAccessedBefore(base.Add(2 * time.Hour))
	if !slices.Equal(ids, []string{"s1", "s2"}) {
		t.Errorf("ids = %v, want [s1 s2]", ids)
	}

	data, _ := os.ReadFile(indexPath)
	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		t.Errorf("rebuilt index is not valid JSON: %v", err)
	}
}

func TestFileRepository_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	repo, _ := NewFileRepository(dir)
	for range 5 {
		repo.Put(testRecord("s1", time.Now()))
	}

	for _, sub := range []string{"sessions", filepath.Join("sessions", "records")} {
		entries, _ := os.ReadDir(filepath.Join(dir, sub))
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".tmp" {
				t.Errorf("leftover temp file %s in %s", e.Name(), sub)
			}
		}
	}
}

func TestFileRepository_IndexIDIsAnOrdinaryRecord(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, _ := NewFileRepository(dir)
	repo.Put(testRecord("s1", base))

	if _, found, err := repo.Get("index"); found || err != nil {
		t.Fatalf("Get(index) = (%v, %v), want not found", found, err)
	}
	if err := repo.Delete("index"); err != nil {
		t.Fatalf("Delete(index) failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", "index.json")); err != nil {
		t.Fatalf("index file removed: %v", err)
	}

	if err := repo.Put(testRecord("index", base.Add(time.Hour))); err != nil {
		t.Fatalf("Put(index) failed: %v", err)
	}
	reopened, err := NewFileRepository(dir)
	if err != nil {
		t.Fatalf("NewFileRepository failed: %v", err)
	}
	ids, _ := reopened.ListAccessedBefore(base.Add(2 * time.Hour))
	if !slices.Equal(ids, []string{"s1", "index"}) {
		t.Errorf("ids = %v, want [s1 index]", ids)
	}
}

func TestFileRepository_RebuildsMissingIndex(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo, _ := NewFileRepository(dir)
	repo.Put(testRecord("s1", base))
	if err := os.Remove(filepath.Join(dir, "sessions", "index.json")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	reopened, err := NewFileRepository(dir)
	if err != nil {
		t.Fatalf("NewFileRepository failed: %v", err)
	}
	ids, _ := reopened.ListAccessedBefore(base.Add(time.Second))
	if !slices.Equal(ids, []string{"s1"}) {
		t.Errorf("ids = %v, want [s1]", ids)
	}
}

func TestFileRepository_ConcurrentPutsAllIndexed(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, _ := NewFileRepository(dir)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Put(testRecord(fmt.Sprintf("s%02d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
				t.Errorf("Put %d failed: %v", i, err)
			}
		}()
	}
	wg.Wait()

	// Every change must be on disk once its Put returned.
	reopened, err := NewFileRepository(dir)
	if err != nil {
		t.Fatalf("NewFileRepository failed: %v", err)
	}
	ids, _ := reopened.ListAccessedBefore(base.Add(time.Hour))
	if len(ids) != n {
		t.Errorf("reopened index has %d ids, want %d", len(ids), n)
	}
}

func TestFileRepository_RejectsPathIDs(t *testing.T) {
	repo, _ := NewFileRepository(t.TempDir())

	if err := repo.Put(testRecord("../escape", time.Now())); err == nil {
		t.Error("expected error for path-like id")
	}
	if _, found, err := repo.Get("../escape"); found || err != nil {
		t.Errorf("Get = (%v, %v), want not found", found, err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := Session{
		ID:             "s1",
		CreatedAt:      now,
		LastAccessedAt: now,
		ChatHistory:    []Message{{ID: "m1", SessionID: "s1", Role: RoleUser, Content: "hi", Timestamp: now}},
		CurrentDiagram: &Diagram{Format: "drawio", Content: "<xml/>", UpdatedAt: now},
		Config:         DefaultConfig(),
	}

	rec, err := toRecord(sess)
	if err != nil {
		t.Fatalf("toRecord failed: %v", err)
	}
	got, err := fromRecord(rec)
	if err != nil {
		t.Fatalf("fromRecord failed: %v", err)
	}
	if got.CurrentDiagram == nil || got.CurrentDiagram.Content != "<xml/>" {
		t.Errorf("diagram = %+v", got.CurrentDiagram)
	}
	if len(got.ChatHistory) != 1 || got.ChatHistory[0].Content != "hi" {
		t.Errorf("history = %+v", got.ChatHistory)
	}

	empty, _ := toRecord(Session{ID: "s2"})
	if string(empty.ChatHistory) != "[]" || string(empty.CurrentDiagram) != "null" {
		t.Errorf("empty record = %s / %s", empty.ChatHistory, empty.CurrentDiagram)
	}
}
