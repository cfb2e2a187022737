package call

import "sync"

// Manager routes telephony callbacks to the owning session. It is the only
// cross-session structure in the process and holds nothing but the id map;
// all call state lives inside each Controller.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Controller)}
}

// Register indexes a session by call id. It reports false when the id is
// already taken, so concurrent starts cannot overwrite each other.
func (m *Manager) Register(c *Controller) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := c.Config().CallID
	if _, ok := m.sessions[id]; ok {
		return false
	}
	m.sessions[id] = c
	return true
}

// Get returns the session owning the call id, if any.
func (m *Manager) Get(callID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[callID]
	return c, ok
}

// Remove drops the session from the index. The controller itself keeps its
// terminal state for any in-flight status reads.
func (m *Manager) Remove(callID string) {
	m.mu.Lock()
	delete(m.sessions, callID)
	m.mu.Unlock()
}
