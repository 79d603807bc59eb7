// Package history keeps captured records in a JSON file, newest first.
package history

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/record"
)

const defaultMaxEntries = 200

type Entry struct {
	ID         string          `json:"id"`
	CapturedAt time.Time       `json:"capturedAt"`
	Record     *record.Request `json:"record"`
}

type Store struct {
	path       string
	maxEntries int
	entries    []Entry
	mu         sync.RWMutex
	loaded     bool
	now        func() time.Time
}

func NewStore(path string, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Store{path: path, maxEntries: maxEntries, now: time.Now}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoadedLocked()
}

// Append stores rec and returns its entry. Entries beyond the store's limit
// are dropped oldest first. The record gets the entry ID when it has none.
func (s *Store) Append(rec *record.Request) (Entry, error) {
	if rec == nil {
		return Entry{}, errdef.New(errdef.CodeHistory, "record is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return Entry{}, err
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
		rec.ID = id
	}
	entry := Entry{ID: id, CapturedAt: s.now().UTC(), Record: rec}

	s.entries = append([]Entry{entry}, s.entries...)
	s.sortEntriesLocked()
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}
	if err := s.persist(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copies := make([]Entry, len(s.entries))
	copy(copies, s.entries)
	return copies
}

// Records returns the stored records, newest first.
func (s *Store) Records() []*record.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*record.Request, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Record != nil {
			out = append(out, e.Record)
		}
	}
	return out
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return false, err
	}

	idx := -1
	for i, entry := range s.entries {
		if entry.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}

	copy(s.entries[idx:], s.entries[idx+1:])
	s.entries = s.entries[:len(s.entries)-1]

	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// ByURL returns entries whose record URL matches url, ignoring surrounding
// whitespace and a trailing slash.
func (s *Store) ByURL(url string) []Entry {
	want := normalizeURL(url)
	if want == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Entry
	for _, entry := range s.entries {
		if entry.Record != nil && normalizeURL(entry.Record.URL) == want {
			matched = append(matched, entry)
		}
	}
	return matched
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create history dir")
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "encode history")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write history tmp")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "replace history file")
	}
	return nil
}

func (s *Store) sortEntriesLocked() {
	if len(s.entries) < 2 {
		return
	}
	sort.SliceStable(s.entries, func(i, j int) bool {
		return newerFirst(s.entries[i], s.entries[j])
	})
}

func (s *Store) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.entries = []Entry{}
			s.loaded = true
			return nil
		}
		return errdef.Wrap(errdef.CodeHistory, err, "read history")
	}

	if len(data) == 0 {
		s.entries = []Entry{}
		s.loaded = true
		return nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "parse history")
	}

	s.sortEntriesLocked()
	s.loaded = true
	return nil
}

func newerFirst(a, b Entry) bool {
	switch {
	case a.CapturedAt.IsZero() && b.CapturedAt.IsZero():
		return a.ID > b.ID
	case a.CapturedAt.IsZero():
		return false
	case b.CapturedAt.IsZero():
		return true
	default:
		return a.CapturedAt.After(b.CapturedAt)
	}
}
