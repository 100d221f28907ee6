package credstore

import (
	"context"
	"fmt"
	"sync"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/google/uuid"
)

// Memory is an in-process credential store. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]goOTP.Identity
	byKey map[identityKey]string
}

type identityKey struct {
	role goOTP.Role
	key  string
}

func NewMemory() *Memory {
	return &Memory{
		byID:  make(map[string]goOTP.Identity),
		byKey: make(map[identityKey]string),
	}
}

func (m *Memory) CreateIdentity(_ context.Context, in goOTP.NewIdentity) (goOTP.Identity, error) {
	if !in.Role.Valid() || in.EmailOrUsername == "" {
		return goOTP.Identity{}, fmt.Errorf("credstore: invalid identity role=%q", in.Role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := identityKey{role: in.Role, key: in.EmailOrUsername}
	if _, exists := m.byKey[k]; exists {
		return goOTP.Identity{}, goOTP.ErrDuplicateIdentity
	}

	identity := goOTP.Identity{
		ID:              uuid.NewString(),
		EmailOrUsername: in.EmailOrUsername,
		PasswordHash:    in.PasswordHash,
		Role:            in.Role,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		CreatedAt:       in.CreatedAt,
	}
	m.byID[identity.ID] = identity
	m.byKey[k] = identity.ID
	return identity, nil
}

func (m *Memory) FindByEmailOrUsername(_ context.Context, role goOTP.Role, key string) (goOTP.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[identityKey{role: role, key: key}]
	if !ok {
		return goOTP.Identity{}, goOTP.ErrIdentityNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.byID[id]
	if !ok {
		return goOTP.ErrIdentityNotFound
	}
	identity.PasswordHash = hash
	m.byID[id] = identity
	return nil
}

// Len reports the number of stored identities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
