package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	usermodel "github.com/Varun5711/gatekeeper/internal/models/user"
)

// MemoryStorage is a mutex-guarded in-memory UserStore used in tests
// and local development. The email index makes the uniqueness check
// and the insert a single critical section.
type MemoryStorage struct {
	mu      sync.RWMutex
	users   map[string]*usermodel.User
	byEmail map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:   make(map[string]*usermodel.User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStorage) CreateUser(ctx context.Context, u *usermodel.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return ErrEmailExists
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	stored := *u
	s.users[u.ID] = &stored
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[email]
	if !exists {
		return nil, nil
	}

	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStorage) GetUserByID(ctx context.Context, id string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return nil, nil
	}

	copied := *u
	return &copied, nil
}

func (s *MemoryStorage) UpdateUser(ctx context.Context, u *usermodel.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[u.ID]
	if !exists {
		return fmt.Errorf("user %s not found", u.ID)
	}

	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now()

	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[id]
	if !exists {
		return nil
	}

	delete(s.byEmail, u.Email)
	delete(s.users, id)
	return nil
}
