package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
)

// MemoryBackend keeps users, projects and role assignments in process.
// Ids are sequential (user_id_1, project_id_1, ...).
type MemoryBackend struct {
	mu         sync.RWMutex
	users      map[string]*domain.Principal
	projects   map[string]*domain.Project
	roles      map[string][]string
	cost       int
	userSeq    int
	projectSeq int
}

func NewMemory(passwordCost int) *MemoryBackend {
	return &MemoryBackend{
		users:    make(map[string]*domain.Principal),
		projects: make(map[string]*domain.Project),
		roles:    make(map[string][]string),
		cost:     passwordCost,
	}
}

func roleKey(userID, projectID string) string {
	return userID + "/" + projectID
}

func (m *MemoryBackend) FindUser(_ context.Context, name string) (*domain.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Name == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryBackend) GetUser(_ context.Context, id string) (*domain.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryBackend) CreateUser(_ context.Context, in ports.CreateUserInput) (*domain.Principal, error) {
	hash, err := hashPassword(in.Password, m.cost)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == in.Name {
			return nil, fmt.Errorf("identity: user %s already exists", in.Name)
		}
	}
	m.userSeq++
	u := &domain.Principal{
		ID:               fmt.Sprintf("user_id_%d", m.userSeq),
		Name:             in.Name,
		Email:            in.Email,
		DomainID:         in.DomainID,
		DefaultProjectID: in.DefaultProjectID,
		Enabled:          true,
		PasswordHash:     hash,
		CreatedAt:        time.Now().UTC(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemoryBackend) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("identity: user %s not found", id)
	}
	u.Enabled = enabled
	return nil
}

func (m *MemoryBackend) EnableUser(_ context.Context, id string) error {
	return m.setEnabled(id, true)
}

func (m *MemoryBackend) DisableUser(_ context.Context, id string) error {
	return m.setEnabled(id, false)
}

func (m *MemoryBackend) UpdatePassword(_ context.Context, id, password string) error {
	hash, err := hashPassword(password, m.cost)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("identity: user %s not found", id)
	}
	u.PasswordHash = hash
	return nil
}

func (m *MemoryBackend) FindProject(_ context.Context, name string) (*domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryBackend) GetProject(_ context.Context, id string) (*domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryBackend) CreateProject(_ context.Context, in ports.CreateProjectInput) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.Name == in.Name {
			return nil, fmt.Errorf("identity: project %s already exists", in.Name)
		}
	}
	m.projectSeq++
	p := &domain.Project{
		ID:        fmt.Sprintf("project_id_%d", m.projectSeq),
		Name:      in.Name,
		DomainID:  in.DomainID,
		ParentID:  in.ParentID,
		CreatedAt: time.Now().UTC(),
	}
	m.projects[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *MemoryBackend) GetRoles(_ context.Context, userID, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roles := append([]string(nil), m.roles[roleKey(userID, projectID)]...)
	sort.Strings(roles)
	return roles, nil
}

func (m *MemoryBackend) GrantRole(_ context.Context, userID, projectID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("identity: user %s not found", userID)
	}
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("identity: project %s not found", projectID)
	}
	key := roleKey(userID, projectID)
	for _, r := range m.roles[key] {
		if r == role {
			return nil
		}
	}
	m.roles[key] = append(m.roles[key], role)
	return nil
}

func (m *MemoryBackend) RevokeRole(_ context.Context, userID, projectID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := roleKey(userID, projectID)
	kept := m.roles[key][:0]
	for _, r := range m.roles[key] {
		if r != role {
			kept = append(kept, r)
		}
	}
	m.roles[key] = kept
	return nil
}
