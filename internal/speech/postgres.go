package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/texttospeech/internal/models"
)

const uniqueViolation = "23505"

const recordColumns = `id, owner_id, text, file_name, voice_path, created_at`

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanRecord(row pgx.Row) (*models.SpeechRecord, error) {
	var rec models.SpeechRecord
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Text, &rec.FileName, &rec.VoicePath, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrFileNameTaken
	}
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.SpeechRecord) (*models.SpeechRecord, error) {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	out, err := scanRecord(r.db.QueryRow(ctx,
		`INSERT INTO speech_records (id, owner_id, text, file_name, voice_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+recordColumns,
		id, rec.OwnerID, rec.Text, rec.FileName, rec.VoicePath, rec.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert speech record: %w", mapWriteError(err))
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM speech_records WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("get speech record: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) GetByFileName(ctx context.Context, ownerID uuid.UUID, fileName string) (*models.SpeechRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM speech_records WHERE file_name = $1 AND owner_id = $2`,
		fileName, ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("get speech record by file name: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.SpeechRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+` FROM speech_records
		 WHERE owner_id = $1 ORDER BY created_at DESC NULLS LAST, id LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list speech records: %w", err)
	}
	defer rows.Close()

	recs := []models.SpeechRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan speech record: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list speech records: %w", err)
	}
	return recs, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rec *models.SpeechRecord) (*models.SpeechRecord, error) {
	out, err := scanRecord(r.db.QueryRow(ctx,
		`UPDATE speech_records SET text = $3, file_name = $4, voice_path = $5
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+recordColumns,
		rec.ID, rec.OwnerID, rec.Text, rec.FileName, rec.VoicePath,
	))
	if err != nil {
		return nil, fmt.Errorf("update speech record: %w", mapWriteError(err))
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`DELETE FROM speech_records WHERE id = $1 AND owner_id = $2 RETURNING `+recordColumns,
		id, ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("delete speech record: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) FileNameTaken(ctx context.Context, fileName string, exceptID uuid.UUID) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM speech_records WHERE file_name = $1 AND id <> $2)`,
		fileName, exceptID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check file name: %w", err)
	}
	return taken, nil
}

func (r *PostgresRepository) VoicePathInUse(ctx context.Context, voicePath string) (bool, error) {
	var used bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM speech_records WHERE voice_path = $1)`,
		voicePath,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check voice path: %w", err)
	}
	return used, nil
}

// LockVoicePath takes a session advisory lock on a dedicated connection, so
// the API and the worker process exclude each other.
func (r *PostgresRepository) LockVoicePath(ctx context.Context, voicePath string) (func(), error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, voicePath); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock voice path: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, voicePath); err != nil {
				// Closing the session drops every lock it holds.
				slog.Warn("failed to unlock voice path, closing connection", "voice_path", voicePath, "error", err)
				conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}
