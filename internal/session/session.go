// internal/session/session.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"cartbackend/internal/logger"
)

// A session id names one shopper's durable cart row. Sessions are tracked in
// memory only for rate limiting and monitoring; the cart itself outlives the
// process in the database.
var (
	sessions    = make(map[string]time.Time) // id -> last seen
	sessionsMu  sync.Mutex
	idleTimeout = time.Hour * 24
)

// NewSessionID issues a fresh session identifier.
func NewSessionID() string {
	id := uuid.NewString()

	sessionsMu.Lock()
	sessions[id] = time.Now()
	sessionsMu.Unlock()

	return id
}

// ValidFormat reports whether the id looks like something we issued. Carts
// survive restarts, so a well-formed id from a previous process is accepted
// and re-registered.
func ValidFormat(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Touch records activity on a session.
func Touch(id string) {
	sessionsMu.Lock()
	sessions[id] = time.Now()
	sessionsMu.Unlock()
}

// LastSeen returns when a session was last active, if it is tracked.
func LastSeen(id string) (time.Time, bool) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	t, ok := sessions[id]
	return t, ok
}

// ActiveCount returns the number of sessions seen within the idle window.
func ActiveCount() int {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	count := 0
	for _, lastSeen := range sessions {
		if time.Since(lastSeen) <= idleTimeout {
			count++
		}
	}
	return count
}

// CleanIdleSessions periodically drops sessions with no recent activity from
// the in-memory registry. Their carts stay in storage until cleanup purges
// them.
func CleanIdleSessions() {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for range ticker.C {
		sessionsMu.Lock()
		for id, lastSeen := range sessions {
			if time.Since(lastSeen) > idleTimeout {
				delete(sessions, id)
			}
		}
		sessionsMu.Unlock()
		logger.LogInfo("Idle session cleanup completed")
	}
}
