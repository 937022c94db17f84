// Package memorystore provides an in-memory sessions.Store suitable for tests,
// development and single-process servers. All state is discarded on process
// exit.
//
// Event ids are monotonic decimal counters scoped to each session log.
package memorystore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ggoodman/mcp-core-go/sessions"
)

// Store is an in-memory implementation of sessions.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]sessions.Record
	logs    map[string]*eventLog
	now     func() time.Time
}

type eventLog struct {
	next   int64
	events []sessions.Event
}

func New() *Store {
	return &Store{
		records: make(map[string]sessions.Record),
		logs:    make(map[string]*eventLog),
		now:     time.Now,
	}
}

func (s *Store) Create(ctx context.Context, rec sessions.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return sessions.ErrExists
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (sessions.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return sessions.Record{}, sessions.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, id string, fn func(*sessions.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return sessions.ErrNotFound
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.ID = id
	rec.UpdatedAt = s.now()
	s.records[id] = rec
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	delete(s.logs, id)
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, sessionID string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.logs[sessionID]
	if l == nil {
		l = &eventLog{}
		s.logs[sessionID] = l
	}
	l.next++
	id := strconv.FormatInt(l.next, 10)
	l.events = append(l.events, sessions.Event{ID: id, Data: append([]byte(nil), data...)})
	return id, nil
}

func (s *Store) EventsAfter(ctx context.Context, sessionID, afterID string) ([]sessions.Event, error) {
	var after int64
	if afterID != "" {
		n, err := strconv.ParseInt(afterID, 10, 64)
		if err != nil || n < 0 {
			// Ids this store never issued cannot be resumed from.
			return nil, nil
		}
		after = n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.logs[sessionID]
	if l == nil || after >= l.next {
		return nil, nil
	}
	// Ids are dense: event n lives at index n-1.
	out := make([]sessions.Event, 0, int(l.next-after))
	out = append(out, l.events[after:]...)
	return out, nil
}

var _ sessions.Store = (*Store)(nil)
