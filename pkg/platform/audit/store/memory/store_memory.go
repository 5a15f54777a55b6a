package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	audit "custody/pkg/platform/audit"

	"github.com/google/uuid"
)

// InMemoryStore is an append-only audit store for tests and local runs.
// Events are kept in insertion order; readers receive copies.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event

	// failWith, when set, is returned by every operation.
	failWith error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// FailWith makes every subsequent call return err. Pass nil to heal the store.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Len returns the number of persisted events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryStore) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	event.ID = uuid.NewString()
	s.events = append(s.events, clone(*event))
	return nil
}

// List filters, orders by timestamp descending (later insertions first on
// ties) and paginates.
func (s *InMemoryStore) List(_ context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, 0, s.failWith
	}
	filter = filter.Normalized()

	type indexed struct {
		seq   int
		event audit.Event
	}
	var matched []indexed
	for i, e := range s.events {
		if filter.Matches(e) {
			matched = append(matched, indexed{seq: i, event: e})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.event.Timestamp.Equal(b.event.Timestamp) {
			return a.event.Timestamp.After(b.event.Timestamp)
		}
		return a.seq > b.seq
	})

	total := len(matched)
	out := []audit.Event{}
	if filter.Offset >= total {
		return out, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	for _, m := range matched[filter.Offset:end] {
		out = append(out, clone(m.event))
	}
	return out, total, nil
}

func (s *InMemoryStore) TallySince(_ context.Context, since time.Time) (audit.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return audit.Tally{}, s.failWith
	}
	tally := audit.Tally{
		ByActionType: make(map[audit.ActionType]int),
		ByStatus:     make(map[audit.Status]int),
	}
	for _, e := range s.events {
		if e.Timestamp.Before(since) {
			continue
		}
		tally.Total++
		tally.ByActionType[e.ActionType]++
		tally.ByStatus[e.Status]++
	}
	return tally, nil
}

func clone(e audit.Event) audit.Event {
	if e.Details != nil {
		e.Details = maps.Clone(e.Details)
	}
	if e.EvidenceID != nil {
		v := *e.EvidenceID
		e.EvidenceID = &v
	}
	if e.CaseID != nil {
		v := *e.CaseID
		e.CaseID = &v
	}
	return e
}
