package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/summary"
)

// In-memory sessions by ID. Sessions are never persisted, so they are lost on restart.
type SessionStore struct {
	lock     sync.RWMutex
	sessions map[uuid.UUID]*summary.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*summary.Session)}
}

func (store *SessionStore) Add(session *summary.Session) {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.sessions[session.ID] = session
}

func (store *SessionStore) Get(id uuid.UUID) (session *summary.Session, ok bool) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	session, ok = store.sessions[id]
	return session, ok
}

func (store *SessionStore) Remove(id uuid.UUID) (removed bool) {
	store.lock.Lock()
	defer store.lock.Unlock()

	if _, ok := store.sessions[id]; !ok {
		return false
	}
	delete(store.sessions, id)
	return true
}

func (store *SessionStore) Len() int {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return len(store.sessions)
}

// Removes sessions that have been idle for longer than maxIdle, and returns how many were
// removed.
func (store *SessionStore) RemoveIdle(maxIdle time.Duration) int {
	store.lock.Lock()
	defer store.lock.Unlock()

	removed := 0
	for id, session := range store.sessions {
		if session.IdleFor(maxIdle) {
			delete(store.sessions, id)
			removed++
		}
	}
	return removed
}

// Calls RemoveIdle periodically until ctx is cancelled.
func (store *SessionStore) ExpireIdle(ctx context.Context, maxIdle time.Duration) {
	ticker := time.NewTicker(max(maxIdle/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.RemoveIdle(maxIdle); removed != 0 {
				log.Debug("removed idle sessions", slog.Int("count", removed))
			}
		}
	}
}
