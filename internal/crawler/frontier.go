package crawler

import (
	"fmt"
	"net/url"
	"sync"
)

// Frontier is the insertion-ordered, append-only set of discovered records.
// It may grow while being iterated with Next; the cursor never moves backward.
type Frontier struct {
	mu      sync.Mutex
	records []*Record
	byURL   map[string]*Record
	byID    map[string]*Record
	cursor  int
	ids     IDGenerator
	clock   Clock
}

// NewFrontier creates an empty Frontier.
func NewFrontier(ids IDGenerator, clock Clock) *Frontier {
	return &Frontier{
		byURL:  make(map[string]*Record),
		byID:   make(map[string]*Record),
		cursor: -1,
		ids:    ids,
		clock:  clock,
	}
}

// TryAppend adds a record for u unless one with the same canonical URL
// already exists. The returned bool is false when u was already known; the
// existing record is returned then.
func (f *Frontier) TryAppend(u *url.URL, kind Kind, discoveredFrom string) (*Record, bool, error) {
	if u == nil {
		return nil, false, fmt.Errorf("url is required")
	}
	u = Canonical(u)
	key := u.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.byURL[key]; ok {
		return existing, false, nil
	}
	id, err := f.ids.NewID()
	if err != nil {
		return nil, false, fmt.Errorf("new record id: %w", err)
	}
	parsed := *u
	rec := &Record{
		ID:             id,
		URL:            key,
		Kind:           kind,
		DiscoveredFrom: discoveredFrom,
		CreatedAt:      f.clock.Now(),
		Responses:      []FetchResult{},
		parsed:         &parsed,
	}
	f.records = append(f.records, rec)
	f.byURL[key] = rec
	f.byID[id] = rec
	return rec, true, nil
}

// Next advances the cursor and returns the record at its new position along
// with the zero-based index. It returns false once the cursor has caught up
// with the current length.
func (f *Frontier) Next() (*Record, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursor+1 >= len(f.records) {
		return nil, 0, false
	}
	f.cursor++
	return f.records[f.cursor], f.cursor, true
}

// Len returns the number of records.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Processed returns how many records Next has handed out.
func (f *Frontier) Processed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor + 1
}

// Lookup returns the record whose canonical URL equals u's canonical form.
func (f *Frontier) Lookup(u string) (*Record, bool) {
	key := u
	if parsed, err := url.Parse(u); err == nil {
		key = Canonical(parsed).String()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byURL[key]
	return rec, ok
}

// Get returns the record with the given id.
func (f *Frontier) Get(id string) (*Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	return rec, ok
}

// Records returns a snapshot of all records in insertion order.
func (f *Frontier) Records() []*Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Record(nil), f.records...)
}
