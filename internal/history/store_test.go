package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/record"
)

func clock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

func newTestStore(t *testing.T, max int) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "nested", "history.json"), max)
	s.now = clock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	return s
}

func TestAppendAssignsIDsAndOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t, 10)

	first, err := store.Append(&record.Request{Method: "GET", URL: "https://a.test/"})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if _, err := uuid.Parse(first.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", first.ID)
	}
	if first.Record.ID != first.ID {
		t.Fatalf("expected record to carry entry id")
	}

	second, err := store.Append(&record.Request{ID: "fixed", Method: "POST", URL: "https://b.test"})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.ID != "fixed" {
		t.Fatalf("existing record id must be kept, got %q", second.ID)
	}

	entries := store.Entries()
	if len(entries) != 2 || entries[0].ID != "fixed" || entries[1].ID != first.ID {
		t.Fatalf("expected newest-first order, got %+v", entries)
	}
	recs := store.Records()
	if len(recs) != 2 || recs[0].Method != "POST" {
		t.Fatalf("unexpected records %+v", recs)
	}

	if _, err := store.Append(nil); errdef.CodeOf(err) != errdef.CodeHistory {
		t.Fatalf("expected history error for nil record, got %v", err)
	}
}

func TestStorePersistsAndReloads(t *testing.T) {
	store := newTestStore(t, 10)
	rec := &record.Request{
		Method:   "GET",
		URL:      "https://a.test/x",
		Response: &record.Response{Status: 200, LoadingTime: 12.5},
	}
	entry, err := store.Append(rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	reloaded := NewStore(store.Path(), 10)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := reloaded.Get(entry.ID)
	if !ok || got.Record == nil || got.Record.Response.LoadingTime != 12.5 {
		t.Fatalf("unexpected reloaded entry %+v", got)
	}
	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be renamed away")
	}
}

func TestStoreTrimsAndDeletes(t *testing.T) {
	store := newTestStore(t, 2)
	var ids []string
	for _, u := range []string{"https://a.test", "https://b.test", "https://c.test/"} {
		e, err := store.Append(&record.Request{URL: u})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, e.ID)
	}
	if len(store.Entries()) != 2 {
		t.Fatalf("expected store to keep 2 entries")
	}
	if _, ok := store.Get(ids[0]); ok {
		t.Fatalf("oldest entry should have been trimmed")
	}

	if got := store.ByURL(" https://c.test "); len(got) != 1 || got[0].ID != ids[2] {
		t.Fatalf("unexpected ByURL result %+v", got)
	}
	if store.ByURL("") != nil {
		t.Fatalf("expected nil for blank url")
	}

	removed, err := store.Delete(ids[1])
	if err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	removed, err = store.Delete("missing")
	if err != nil || removed {
		t.Fatalf("expected missing delete to be a no-op")
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := NewStore(path, 0).Load()
	if errdef.CodeOf(err) != errdef.CodeHistory {
		t.Fatalf("expected history error, got %v", err)
	}
}
