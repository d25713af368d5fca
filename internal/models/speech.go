package models

import (
	"time"

	"github.com/google/uuid"
)

// SpeechRecord links the submitted text and file name to the synthesized
// voice file. CreatedAt is nil until the record has been persisted once.
type SpeechRecord struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	OwnerID   uuid.UUID  `json:"owner_id" db:"owner_id"`
	Text      string     `json:"text" db:"text"`
	FileName  string     `json:"file_name" db:"file_name"`
	VoicePath string     `json:"voice_path" db:"voice_path"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}
