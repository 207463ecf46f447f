// Package session keeps one state.AppState per signed-in user in an LRU
// cache. Sessions that expire or get pushed out are written to the snapshot
// store so the next request can pick them up again without a full reload.
package session

import (
	"errors"
	"time"

	"metas/internal/cache"
	"metas/internal/log"
	"metas/internal/metrics"
	"metas/internal/state"
)

// DefaultMaxSessions bounds the in-memory sessions.
const DefaultMaxSessions = 1000

type Store struct {
	lru       *cache.LRUCache[*state.AppState]
	snapshots *state.SnapshotStore
	logger    *log.Logger
}

// New builds a session store. snapshots may be nil, in which case evicted
// sessions are simply dropped.
func New(maxSessions int, ttl time.Duration, snapshots *state.SnapshotStore, logger *log.Logger) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Store{snapshots: snapshots, logger: logger.WithComponent(log.ComponentSession)}
	s.lru = cache.NewLRUCache[*state.AppState](maxSessions, ttl,
		cache.WithSlidingTTL[*state.AppState](),
		cache.WithEvict(func(userID string, st *state.AppState) {
			s.persist(userID, st)
			metrics.ActiveSessions.Set(float64(s.lru.Size()))
		}))
	return s
}

// Get returns the live session of userID, restoring it from a snapshot
// when it is no longer in memory. A missing, stale or foreign snapshot
// reports false.
func (s *Store) Get(userID string) (*state.AppState, bool) {
	if st, ok := s.lru.Get(userID); ok {
		return st, true
	}
	if s.snapshots == nil {
		return nil, false
	}
	st := state.New()
	if err := s.snapshots.Restore(userID, st); err != nil {
		if !errors.Is(err, state.ErrNoSnapshot) {
			s.logger.Warn("Discarding session snapshot", log.FieldUserID, userID, log.FieldError, err)
		}
		return nil, false
	}
	if u, ok := st.User(); !ok || u.ID != userID {
		_ = s.snapshots.Delete(userID)
		return nil, false
	}
	s.Put(userID, st)
	s.logger.Debug("Session restored from snapshot", log.FieldUserID, userID)
	return st, true
}

func (s *Store) Put(userID string, st *state.AppState) {
	s.lru.Set(userID, st)
	metrics.ActiveSessions.Set(float64(s.lru.Size()))
}

// Drop forgets the session and its snapshot.
func (s *Store) Drop(userID string) {
	s.lru.Delete(userID)
	metrics.ActiveSessions.Set(float64(s.lru.Size()))
	if s.snapshots != nil {
		if err := s.snapshots.Delete(userID); err != nil {
			s.logger.Warn("Failed to delete session snapshot", log.FieldUserID, userID, log.FieldError, err)
		}
	}
}

// CleanExpired snapshots and removes idle sessions.
func (s *Store) CleanExpired() int {
	return s.lru.CleanExpired()
}

// Flush snapshots every live session and returns how many were written.
func (s *Store) Flush() int {
	n := 0
	s.lru.Each(func(userID string, st *state.AppState) {
		if s.persist(userID, st) {
			n++
		}
	})
	return n
}

func (s *Store) Len() int { return s.lru.Size() }

func (s *Store) persist(userID string, st *state.AppState) bool {
	if s.snapshots == nil {
		return false
	}
	if _, ok := st.User(); !ok {
		return false
	}
	if err := s.snapshots.Save(userID, st); err != nil {
		s.logger.Error("Failed to snapshot session", log.FieldUserID, userID, log.FieldError, err)
		return false
	}
	return true
}
