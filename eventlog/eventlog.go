// Package eventlog captures property-changed notifications in strict receipt
// order. The log is the only structure shared between the protocol receive
// loop (writer) and the test driver (reader/reset), so all access is guarded.
package eventlog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/c360/nccheck/nc"
)

// Notification is one captured property-changed event, immutable once stored.
type Notification struct {
	OID               int
	EventID           nc.ElementID
	PropertyID        nc.ElementID
	ChangeType        nc.PropertyChangeType
	Value             json.RawMessage
	SequenceItemIndex *int
	ReceivedAt        time.Time
}

// Log is an in-memory notification store. It grows with every notification
// until Reset starts a fresh capture window. The zero value is not usable;
// construct with New.
type Log struct {
	mu      sync.RWMutex
	entries []Notification
	now     func() time.Time
}

// Option adjusts Log construction.
type Option func(*Log)

// WithClock overrides the receipt timestamp source. Tests use this to pin
// notification times.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stamps the entries with the current receipt time and stores them.
// Entries from a single message share one timestamp.
func (l *Log) Append(entries ...nc.NotificationEntry) {
	received := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.entries = append(l.entries, Notification{
			OID:               e.OID,
			EventID:           e.EventID,
			PropertyID:        e.EventData.PropertyID,
			ChangeType:        e.EventData.ChangeType,
			Value:             e.EventData.Value,
			SequenceItemIndex: e.EventData.SequenceItemIndex,
			ReceivedAt:        received,
		})
	}
}

// Reset discards all stored notifications, starting a fresh capture window.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// All returns a copy of every stored notification in receipt order.
func (l *Log) All() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Notification, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of stored notifications.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ByProperty returns notifications for one object property, in receipt order.
func (l *Log) ByProperty(oid int, propertyID nc.ElementID) []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Notification
	for _, n := range l.entries {
		if n.OID == oid && n.PropertyID == propertyID {
			out = append(out, n)
		}
	}
	return out
}

// Since returns notifications received at or after t, in receipt order.
func (l *Log) Since(t time.Time) []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Notification
	for _, n := range l.entries {
		if !n.ReceivedAt.Before(t) {
			out = append(out, n)
		}
	}
	return out
}

// Filter returns notifications matching keep, in receipt order.
func (l *Log) Filter(keep func(Notification) bool) []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Notification
	for _, n := range l.entries {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
