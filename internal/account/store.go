// Package account stores users and the bearer token each of them holds.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/texttospeech/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username is already taken")
	ErrTokenNotFound = errors.New("token not found")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanToken(row pgx.Row) (*models.AuthToken, error) {
	var t models.AuthToken
	err := row.Scan(&t.Key, &t.UserID, &t.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, username, email, password_hash, created_at`,
		username, email, passwordHash,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1", username,
	))
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1", id,
	))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetOrCreateToken returns the user's token, inserting one with key when the
// user has none. created reports whether the insert happened.
func (s *Store) GetOrCreateToken(ctx context.Context, userID uuid.UUID, key string, now time.Time) (*models.AuthToken, bool, error) {
	t, err := scanToken(s.db.QueryRow(ctx,
		`INSERT INTO auth_tokens (key, user_id, created) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING key, user_id, created`,
		key, userID, now,
	))
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, false, fmt.Errorf("create token: %w", err)
	}

	t, err = scanToken(s.db.QueryRow(ctx,
		"SELECT key, user_id, created FROM auth_tokens WHERE user_id = $1", userID,
	))
	if err != nil {
		return nil, false, fmt.Errorf("get token for user: %w", err)
	}
	return t, false, nil
}

// RefreshToken moves the token's created time to at.
func (s *Store) RefreshToken(ctx context.Context, key string, at time.Time) (*models.AuthToken, error) {
	t, err := scanToken(s.db.QueryRow(ctx,
		"UPDATE auth_tokens SET created = $2 WHERE key = $1 RETURNING key, user_id, created",
		key, at,
	))
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return t, nil
}

func (s *Store) GetToken(ctx context.Context, key string) (*models.AuthToken, error) {
	t, err := scanToken(s.db.QueryRow(ctx,
		"SELECT key, user_id, created FROM auth_tokens WHERE key = $1", key,
	))
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}
