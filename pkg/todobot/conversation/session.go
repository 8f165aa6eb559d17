// Package conversation implements the multi-turn WhatsApp dialogue: the
// per-address session state machine that identifies the user, shows the menu,
// and performs list/add/complete/delete against the task store.
package conversation

import (
	"sync"
	"time"

	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// State identifies where a session is in the dialogue. The set is closed;
// every Engine transition lands on one of these values.
type State string

const (
	// StateFresh is the initial state: the bot stays silent until the
	// activation keyword shows up.
	StateFresh State = "fresh"

	// StateAwaitingIdentity waits for the user's email or name.
	StateAwaitingIdentity State = "awaiting_identity"

	// StateMenu waits for a menu command (1-5).
	StateMenu State = "menu"

	// StateComposingTitle waits for the new task's title.
	StateComposingTitle State = "composing_title"

	// StateComposingDescription waits for the optional description
	// (or "skip") before creating the task.
	StateComposingDescription State = "composing_description"

	// StateChoosingCompleteTarget waits for the number of the task to
	// mark as done, picked from the last listed snapshot.
	StateChoosingCompleteTarget State = "choosing_complete_target"

	// StateChoosingDeleteTarget waits for the number of the task to delete.
	StateChoosingDeleteTarget State = "choosing_delete_target"
)

// Session is the conversational state tracked per normalized address.
// CachedTasks is the snapshot taken by the last listing action; selections
// in the choosing states index into it by position, so it can go stale if
// tasks change between listing and selection.
type Session struct {
	Address      string       `json:"address"`
	State        State        `json:"state"`
	Owner        string       `json:"owner,omitempty"`
	PendingTitle string       `json:"pending_title,omitempty"`
	CachedTasks  []store.Task `json:"cached_tasks,omitempty"`
	LastSeenAt   time.Time    `json:"last_seen_at"`
}

// SessionStore maps normalized addresses to sessions.
type SessionStore interface {
	// Get returns the session for an address, if one exists.
	Get(address string) (Session, bool)

	// Put stores the session for an address, replacing any previous one.
	Put(address string, sess Session)

	// Delete removes the session, making the next message start fresh.
	Delete(address string)

	// Snapshot returns a copy of all current sessions.
	Snapshot() []Session
}

// MemoryStore is the in-process SessionStore. Sessions live for the process
// lifetime: no eviction, no persistence. Two concurrent messages from the
// same address race on read-modify-write and the later Put wins.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns the session for an address.
func (m *MemoryStore) Get(address string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[address]
	return sess, ok
}

// Put stores the session for an address.
func (m *MemoryStore) Put(address string, sess Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[address] = sess
}

// Delete removes the session for an address.
func (m *MemoryStore) Delete(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, address)
}

// Snapshot returns a copy of all sessions.
func (m *MemoryStore) Snapshot() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Count returns the number of live sessions.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
