package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/parkmate/internal/model"
	"github.com/iliyamo/parkmate/internal/utils"
)

// MemoryUserStore keeps accounts in process memory for STORE_DRIVER=memory.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[uint64]model.User
	byEmail map[string]uint64
	nextID  uint64
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byID: map[uint64]model.User{}, byEmail: map[string]uint64{}, nextID: 1}
}

func (s *MemoryUserStore) Create(ctx context.Context, email, name, password, role string, cost int) (uint64, error) {
	email = normalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return 0, ErrEmailExists
	}
	now := time.Now().UTC()
	u := model.User{
		ID: s.nextID, Email: email, Name: strings.TrimSpace(name), PasswordHash: hash,
		Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	s.nextID++
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return u.ID, nil
}

func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) EnsureUser(ctx context.Context, email, name, password, role string, cost int) (bool, error) {
	_, err := s.Create(ctx, email, name, password, role, cost)
	if errors.Is(err, ErrEmailExists) {
		return false, nil
	}
	return err == nil, err
}

type memoryToken struct {
	userID  uint64
	expires time.Time
	revoked bool
}

// MemoryTokenStore keeps refresh token hashes in process memory.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*memoryToken
	now    func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]*memoryToken{}, now: time.Now}
}

func (s *MemoryTokenStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = &memoryToken{userID: userID, expires: exp}
	return nil
}

func (s *MemoryTokenStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.revoked || s.now().After(t.expires) {
		return 0, ErrInvalidRefresh
	}
	return t.userID, nil
}

func (s *MemoryTokenStore) RevokeByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok {
		t.revoked = true
	}
	return nil
}

func (s *MemoryTokenStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.userID == userID {
			t.revoked = true
		}
	}
	return nil
}
