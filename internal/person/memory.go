package person

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mehmetcc/warden/pkg/id"
)

// MemoryStore is a Store kept in process memory. It enforces the same
// uniqueness rules as the persons table and is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[id.PublicID]*Person
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[id.PublicID]*Person),
		now:  time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, dto *PersonDTO) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := NormalizeEmail(dto.Email)
	username := strings.TrimSpace(dto.Username)
	if err := m.checkUnique("", email, username); err != nil {
		return nil, err
	}

	role := dto.Role
	if role == "" {
		role = RoleUser
	}
	now := m.now().UTC()
	m.nextID++
	p := &Person{
		ID:        m.nextID,
		PublicID:  id.NewPublicID(),
		Email:     email,
		Username:  username,
		Password:  dto.Password,
		Role:      role,
		IsActive:  dto.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byID[p.PublicID] = p
	return clone(p, findOptions{}), nil
}

func (m *MemoryStore) FindByIdentifier(_ context.Context, identifier string, opts ...FindOption) (*Person, error) {
	o := applyFindOptions(opts)
	identifier = strings.TrimSpace(identifier)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var match *Person
	for _, p := range m.byID {
		if p.IsDeleted {
			continue
		}
		if strings.EqualFold(p.Email, identifier) || p.Username == identifier {
			if match != nil {
				return nil, ErrAmbiguousIdentifier
			}
			match = p
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return clone(match, o), nil
}

func (m *MemoryStore) FindByID(_ context.Context, publicID id.PublicID, opts ...FindOption) (*Person, error) {
	o := applyFindOptions(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.byID[publicID]
	if !ok || p.IsDeleted {
		return nil, ErrNotFound
	}
	return clone(p, o), nil
}

func (m *MemoryStore) Update(_ context.Context, publicID id.PublicID, patch Patch) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[publicID]
	if !ok || p.IsDeleted {
		return nil, ErrNotFound
	}

	email, username := p.Email, p.Username
	if patch.Email != nil {
		email = NormalizeEmail(*patch.Email)
	}
	if patch.Username != nil {
		username = strings.TrimSpace(*patch.Username)
	}
	if err := m.checkUnique(publicID, email, username); err != nil {
		return nil, err
	}

	p.Email, p.Username = email, username
	if patch.Password != nil {
		p.Password = *patch.Password
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.LastLoginAt != nil {
		t := *patch.LastLoginAt
		p.LastLoginAt = &t
	}
	p.UpdatedAt = m.now().UTC()
	return clone(p, findOptions{}), nil
}

// checkUnique must be called with mu held.
func (m *MemoryStore) checkUnique(self id.PublicID, email, username string) error {
	for pid, p := range m.byID {
		if pid == self || p.IsDeleted {
			continue
		}
		if p.Email == email {
			return ErrDuplicateEmail
		}
		if p.Username == username {
			return ErrDuplicateUsername
		}
	}
	return nil
}

func clone(p *Person, o findOptions) *Person {
	c := *p
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		c.LastLoginAt = &t
	}
	return redact(&c, o)
}
