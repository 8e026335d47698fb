package feed

import (
	"encoding/json"
	"sync"
	"time"
)

// InboxItem is one realtime event as presented to the user. Items keep
// arrival order, not creation-timestamp order: network delivery order is
// not guaranteed to match causal order and this approximation is accepted.
type InboxItem struct {
	Table     string          `json:"table"`
	Row       json.RawMessage `json:"row"`
	ArrivedAt time.Time       `json:"arrived_at"`
	Read      bool            `json:"read"`
}

// Inbox is the session-local, arrival-ordered realtime notification view.
// The durable notification rows live in the data store; this only backs the
// live indicator and is dropped on sign-out.
type Inbox struct {
	mu    sync.Mutex
	items []InboxItem
	cap   int
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 256
	}
	return &Inbox{cap: capacity}
}

func (b *Inbox) Append(table string, row json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, InboxItem{Table: table, Row: row, ArrivedAt: time.Now()})
	if len(b.items) > b.cap {
		b.items = b.items[len(b.items)-b.cap:]
	}
}

func (b *Inbox) Items() []InboxItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]InboxItem, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Inbox) MarkAllRead() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		b.items[i].Read = true
	}
}

func (b *Inbox) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, it := range b.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func (b *Inbox) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}
