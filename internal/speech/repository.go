package speech

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/texttospeech/internal/models"
)

var (
	ErrNotFound      = errors.New("speech record not found")
	ErrFileNameTaken = errors.New("file name is already taken")
)

// Repository persists speech records. Lookups are scoped to the owning user;
// file names are unique across all users.
type Repository interface {
	Create(ctx context.Context, rec *models.SpeechRecord) (*models.SpeechRecord, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error)
	GetByFileName(ctx context.Context, ownerID uuid.UUID, fileName string) (*models.SpeechRecord, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.SpeechRecord, error)
	// Update writes text, file name and voice path of rec in one statement.
	Update(ctx context.Context, rec *models.SpeechRecord) (*models.SpeechRecord, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error)
	// FileNameTaken reports whether a record other than exceptID uses fileName.
	FileNameTaken(ctx context.Context, fileName string, exceptID uuid.UUID) (bool, error)
	VoicePathInUse(ctx context.Context, voicePath string) (bool, error)
	// LockVoicePath blocks until the caller holds the lock for voicePath.
	// Writers of a voice file and the cleanup worker both hold it, so a file
	// is never removed between its write and the row that references it.
	LockVoicePath(ctx context.Context, voicePath string) (unlock func(), err error)
}
