package engine

import (
	"sync"

	"github.com/plgd-dev/go-coap/v2/message"
)

// Table is the in-flight request table (spec §3 data model, §4.2). All
// insertion, removal, and iteration is protected by one mutex since
// records are manipulated both by the session loop and by service-call
// goroutines (spec §4.2, §5).
type Table struct {
	mu      sync.Mutex
	records map[string]*Record // token string (message.Token.String()) -> record; token-bearing records only
	byID    map[uint16]*Record // only populated for tokenless records, matched by message id
}

// NewTable returns an empty request table.
func NewTable() *Table {
	return &Table{
		records: make(map[string]*Record),
		byID:    make(map[uint16]*Record),
	}
}

// Insert adds r to the table. Tokens must be unique among concurrently
// live records (spec §3 invariant); Insert panics if violated since that
// would indicate a broken token generator, not a user error.
func (t *Table) Insert(r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(r.Token) == 0 {
		t.byID[r.MessageID] = r
		return
	}
	key := r.Token.String()
	if _, exists := t.records[key]; exists {
		panic("golioth: duplicate token inserted into request table")
	}
	t.records[key] = r
}

// Remove deletes r from the table if present.
func (t *Table) Remove(r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(r)
}

func (t *Table) removeLocked(r *Record) {
	if len(r.Token) == 0 {
		delete(t.byID, r.MessageID)
		return
	}
	delete(t.records, r.Token.String())
}

// ReKeyID updates the message-id index for a tokenless record whose id
// changed on retransmission.
func (t *Table) ReKeyID(r *Record, oldID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(r.Token) != 0 {
		return
	}
	delete(t.byID, oldID)
	t.byID[r.MessageID] = r
}

// Match implements the dispatch policy of spec §4.2 step 2: a non-empty
// incoming token matches by full byte comparison; a tokenless incoming
// piggybacked response matches by message id.
func (t *Table) Match(id uint16, token []byte) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(token) != 0 {
		if r, ok := t.records[message.Token(token).String()]; ok {
			return r
		}
		return nil
	}
	if r, ok := t.byID[id]; ok {
		return r
	}
	return nil
}

// Len reports how many records are currently tracked (tests / diagnostics).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records) + len(t.byID)
}

// Each calls fn for every record currently in the table. fn must not call
// back into Table methods (Each already holds the lock).
func (t *Table) Each(fn func(*Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		fn(r)
	}
	for _, r := range t.byID {
		fn(r)
	}
}

// RemoveAll empties the table, invoking fn for every record removed (used
// by the session loop's disconnect path, spec §4.6 step 5).
func (t *Table) RemoveAll(fn func(*Record)) {
	t.mu.Lock()
	records := t.records
	byID := t.byID
	t.records = make(map[string]*Record)
	t.byID = make(map[uint16]*Record)
	t.mu.Unlock()

	for _, r := range records {
		fn(r)
	}
	for _, r := range byID {
		fn(r)
	}
}
