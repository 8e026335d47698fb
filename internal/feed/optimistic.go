package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type EntryKind int

const (
	EntryPost EntryKind = iota + 1
	EntryComment
	EntryMessage
)

// Entry is a locally applied mutation awaiting backend confirmation.
// TempID is client-generated; ID is filled in when the authoritative row
// arrives, either via the direct mutation response or the realtime echo.
type Entry struct {
	TempID    string
	ID        string
	Kind      EntryKind
	AuthorID  string
	RefID     string // post id for comments, recipient id for messages
	Text      string
	CreatedAt time.Time
	Confirmed bool
}

// Store holds optimistic entries for one session. The key invariant:
// a logical item is never rendered twice under two ids, no matter in
// which order the direct response and the realtime echo arrive.
type Store struct {
	mu     sync.Mutex
	order  []*Entry
	byTemp map[string]*Entry
	byID   map[string]*Entry
}

func NewStore() *Store {
	return &Store{
		byTemp: make(map[string]*Entry),
		byID:   make(map[string]*Entry),
	}
}

// Insert applies a mutation locally under a temporary id.
func (s *Store) Insert(kind EntryKind, authorID, refID, text string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &Entry{
		TempID:    uuid.New().String(),
		Kind:      kind,
		AuthorID:  authorID,
		RefID:     refID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	s.order = append(s.order, e)
	s.byTemp[e.TempID] = e
	return e
}

// Confirm replaces the temporary entry in place with the authoritative id.
// Idempotent: confirming an entry the realtime echo already reconciled is a
// no-op as long as the ids agree.
func (s *Store) Confirm(tempID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byTemp[tempID]
	if !ok {
		return false
	}
	if e.Confirmed {
		return e.ID == id
	}
	e.ID = id
	e.Confirmed = true
	s.byID[id] = e
	return true
}

// Rollback discards a failed optimistic entry.
func (s *Store) Rollback(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byTemp[tempID]
	if !ok {
		return false
	}
	delete(s.byTemp, tempID)
	if e.ID != "" {
		delete(s.byID, e.ID)
	}
	for i, cur := range s.order {
		if cur == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Reconcile matches an incoming realtime row against pending entries.
// Temporary ids differ from authoritative ids, so unconfirmed entries are
// matched by (kind, author, content) within a timestamp window. Returns true
// when the row was absorbed into an existing entry (or is already known);
// the caller must then not insert it a second time.
func (s *Store) Reconcile(kind EntryKind, id, authorID, text string, createdAt time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; ok {
		return true
	}
	for _, e := range s.order {
		if e.Confirmed || e.Kind != kind || e.AuthorID != authorID || e.Text != text {
			continue
		}
		if d := createdAt.Sub(e.CreatedAt); d < -window || d > window {
			continue
		}
		e.ID = id
		e.Confirmed = true
		s.byID[id] = e
		return true
	}
	return false
}

// Entries returns a snapshot in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.order))
	for i, e := range s.order {
		out[i] = *e
	}
	return out
}

// Clear drops all state. Called on sign-out so a prior session's pending
// entries never leak into the next one.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byTemp = make(map[string]*Entry)
	s.byID = make(map[string]*Entry)
}
