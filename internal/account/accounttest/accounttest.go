// Package accounttest provides an in-memory account store.
package accounttest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/models"
)

// Store is an in-memory account store.
type Store struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*models.User
	tokens map[string]*models.AuthToken

	tokenLookups int
}

func NewStore() *Store {
	return &Store{
		users:  map[uuid.UUID]*models.User{},
		tokens: map[string]*models.AuthToken{},
	}
}

func (s *Store) CreateUser(_ context.Context, username, email, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return nil, account.ErrUsernameTaken
		}
	}
	u := &models.User{ID: uuid.New(), Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, account.ErrUserNotFound
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetOrCreateToken(_ context.Context, userID uuid.UUID, key string, now time.Time) (*models.AuthToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.UserID == userID {
			out := *t
			return &out, false, nil
		}
	}
	t := &models.AuthToken{Key: key, UserID: userID, Created: now}
	s.tokens[key] = t
	out := *t
	return &out, true, nil
}

func (s *Store) RefreshToken(_ context.Context, key string, at time.Time) (*models.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[key]
	if !ok {
		return nil, account.ErrTokenNotFound
	}
	t.Created = at
	out := *t
	return &out, nil
}

func (s *Store) GetToken(_ context.Context, key string) (*models.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenLookups++
	t, ok := s.tokens[key]
	if !ok {
		return nil, account.ErrTokenNotFound
	}
	out := *t
	return &out, nil
}

// DeleteTokens drops every token, as if none was ever issued.
func (s *Store) DeleteTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]*models.AuthToken{}
}

// TokenLookups counts GetToken calls.
func (s *Store) TokenLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLookups
}
