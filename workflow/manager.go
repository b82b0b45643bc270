package workflow

import (
	"sync"

	"github.com/google/uuid"
)

// Manager keeps one Machine per HTTP session id.
type Manager struct {
	mu       sync.Mutex
	machines map[string]*Machine
	factory  func() *Machine
}

func NewManager(factory func() *Machine) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		factory:  factory,
	}
}

// Get returns the machine for an existing session id.
func (mgr *Manager) Get(id string) (*Machine, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m, ok := mgr.machines[id]
	return m, ok
}

// Create builds a fresh machine under a new session id.
func (mgr *Manager) Create() (string, *Machine) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	id := uuid.NewString()
	m := mgr.factory()
	mgr.machines[id] = m
	return id, m
}
