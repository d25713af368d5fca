// Package auth issues bearer tokens and authenticates requests carrying them.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/models"
	"github.com/nikhilbhutani/texttospeech/internal/validation"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 150
	MinPasswordLength = 8
)

// ErrInvalidCredentials covers both an unknown username and a wrong password.
var ErrInvalidCredentials = errors.New("unable to log in with provided credentials")

// Store is the persistence the auth package needs. *account.Store implements it.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetOrCreateToken(ctx context.Context, userID uuid.UUID, key string, now time.Time) (*models.AuthToken, bool, error)
	RefreshToken(ctx context.Context, key string, at time.Time) (*models.AuthToken, error)
	GetToken(ctx context.Context, key string) (*models.AuthToken, error)
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Session is what a successful register or login hands back to the client.
type Session struct {
	Token   string
	User    *models.User
	Created bool // false when an existing token was refreshed
}

type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService signs tokens with secret. A zero ttl issues tokens without expiry.
func NewService(store Store, secret string, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func validateRegistration(username, password string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case username == "":
		return &validation.Error{Field: "username", Message: "username must not be empty"}
	case n < MinUsernameLength:
		return &validation.Error{Field: "username", Message: fmt.Sprintf("username must not be shorter than %d characters", MinUsernameLength)}
	case n > MaxUsernameLength:
		return &validation.Error{Field: "username", Message: fmt.Sprintf("username must not exceed %d characters", MaxUsernameLength)}
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return &validation.Error{Field: "password", Message: fmt.Sprintf("password must not be shorter than %d characters", MinPasswordLength)}
	}
	return nil
}

// Register creates the user and its first token.
func (s *Service) Register(ctx context.Context, username, password, email string) (*Session, error) {
	if err := validateRegistration(username, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, email, string(hash))
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", user.ID, "username", user.Username)

	return s.issue(ctx, user)
}

// ObtainToken checks the credentials and returns the user's token, creating
// it on first login and refreshing its creation time afterwards.
func (s *Service) ObtainToken(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, account.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

func (s *Service) issue(ctx context.Context, user *models.User) (*Session, error) {
	key, err := newTokenKey()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tok, created, err := s.store.GetOrCreateToken(ctx, user.ID, key, now)
	if err != nil {
		return nil, err
	}
	if !created {
		tok, err = s.store.RefreshToken(ctx, tok.Key, now)
		if err != nil {
			return nil, err
		}
	}

	signed, err := s.sign(user, tok)
	if err != nil {
		return nil, err
	}
	return &Session{Token: signed, User: user, Created: created}, nil
}

func (s *Service) sign(user *models.User, tok *models.AuthToken) (string, error) {
	claims := Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID.String(),
			ID:       tok.Key,
			IssuedAt: jwt.NewNumericDate(tok.Created),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(tok.Created.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// newTokenKey returns 40 hex characters.
func newTokenKey() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
