package login

import (
	"math/rand/v2"
	"sync"
	"time"
)

// SessionManager tracks accepted logins so other servers can validate the
// session id a client presents. Safe for concurrent use.
type SessionManager struct {
	sessions sync.Map // map[string]*SessionInfo
}

// SessionInfo describes one accepted login.
// Exported so tests can manipulate CreatedAt.
type SessionInfo struct {
	SessionID    int32
	ConnectionID int32
	IP           string
	CreatedAt    time.Time
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// Store creates a session for account, replacing any previous one, and
// returns its fresh random id.
func (sm *SessionManager) Store(account string, connectionID int32, ip string) int32 {
	info := &SessionInfo{
		SessionID:    rand.Int32(),
		ConnectionID: connectionID,
		IP:           ip,
		CreatedAt:    time.Now(),
	}
	sm.sessions.Store(account, info)
	return info.SessionID
}

// StoreInfo stores a prepared SessionInfo.
func (sm *SessionManager) StoreInfo(account string, info *SessionInfo) {
	sm.sessions.Store(account, info)
}

// Get returns the session of account.
func (sm *SessionManager) Get(account string) (SessionInfo, bool) {
	val, ok := sm.sessions.Load(account)
	if !ok {
		return SessionInfo{}, false
	}
	return *val.(*SessionInfo), true
}

// Validate reports whether sessionID is the current session of account.
func (sm *SessionManager) Validate(account string, sessionID int32) bool {
	info, ok := sm.Get(account)
	return ok && info.SessionID == sessionID
}

// Remove deletes the session of account.
func (sm *SessionManager) Remove(account string) {
	sm.sessions.Delete(account)
}

// RemoveConnection deletes the session of account only if it still belongs to
// connection id, so a newer login from another connection survives.
func (sm *SessionManager) RemoveConnection(account string, connectionID int32) {
	val, ok := sm.sessions.Load(account)
	if !ok {
		return
	}
	if val.(*SessionInfo).ConnectionID == connectionID {
		sm.sessions.CompareAndDelete(account, val)
	}
}

// CleanExpired removes sessions older than ttl and returns how many were removed.
func (sm *SessionManager) CleanExpired(ttl time.Duration) int {
	now := time.Now()
	removed := 0
	sm.sessions.Range(func(key, value any) bool {
		if now.Sub(value.(*SessionInfo).CreatedAt) > ttl {
			if sm.sessions.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Count returns the number of stored sessions.
func (sm *SessionManager) Count() int {
	count := 0
	sm.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
