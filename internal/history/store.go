package history

import "sync"

// Store holds the in-memory sync history for one dashboard session, ordered
// newest-first. All state is process-transient; there is no persistence layer,
// so a restart discards it.
//
// Mutation goes through Apply, UpsertOptimistic, or ReplaceAll only. Readers
// get copies and never observe a partially applied batch.
type Store struct {
	mu      sync.Mutex
	records []SyncRecord
}

// NewStore creates an empty history store
func NewStore() *Store {
	return &Store{
		records: make([]SyncRecord, 0),
	}
}

// Apply reconciles a batch of fetched statuses into the store.
// Nil entries (failed fetches) are skipped.
func (s *Store) Apply(updates []*SyncRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = Reconcile(s.records, updates)
}

// UpsertOptimistic inserts a client-initiated job at the head before its first
// poll tick so it is visible immediately. If the ID already exists the record
// is reconciled in place instead.
func (s *Store) UpsertOptimistic(rec SyncRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = Reconcile(s.records, []*SyncRecord{&rec})
}

// ReplaceAll seeds the store from a fetched history page, keeping the order
// the server returned. A terminal status already observed by this client is
// never regressed by a stale page.
func (s *Store) ReplaceAll(page []SyncRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal := make(map[string]SyncRecord)
	for _, rec := range s.records {
		if rec.Status.Terminal() {
			terminal[rec.ID] = rec
		}
	}

	replaced := make([]SyncRecord, len(page))
	copy(replaced, page)
	for i, rec := range replaced {
		if prev, ok := terminal[rec.ID]; ok && !rec.Status.Terminal() {
			replaced[i] = prev
		}
	}

	s.records = replaced
}

// Head returns the most recent record, if any
func (s *Store) Head() (SyncRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return SyncRecord{}, false
	}
	return s.records[0], true
}

// Get returns the record with the given ID, if known
func (s *Store) Get(id string) (SyncRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.records, id)
	if idx < 0 {
		return SyncRecord{}, false
	}
	return s.records[idx], true
}

// Snapshot returns a copy of the full history, newest-first
func (s *Store) Snapshot() []SyncRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SyncRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records in the store
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
