// Package speech turns submitted text into stored voice files and keeps the
// records that point at them.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/texttospeech/internal/audio"
	"github.com/nikhilbhutani/texttospeech/internal/language"
	"github.com/nikhilbhutani/texttospeech/internal/models"
	"github.com/nikhilbhutani/texttospeech/internal/queue"
	"github.com/nikhilbhutani/texttospeech/internal/synthesis"
	"github.com/nikhilbhutani/texttospeech/internal/validation"
	"github.com/nikhilbhutani/texttospeech/internal/voice"
)

var (
	// ErrImmutable is returned when updating a record that already has a
	// creation time.
	ErrImmutable = errors.New("record can no longer be replaced")
	// ErrVoiceMissing is returned when a record exists but its voice file
	// does not.
	ErrVoiceMissing = errors.New("voice file missing for record")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Cleaner schedules removal of voice files that lost their record.
type Cleaner interface {
	EnqueueVoiceCleanup(ctx context.Context, payload queue.VoiceCleanupPayload) error
}

type Options struct {
	SynthesisTimeout time.Duration // 0: no timeout beyond the request context
	ValidateMP3      bool
}

// Input is the client-supplied part of a record.
type Input struct {
	Text     string `json:"text"`
	FileName string `json:"file_name"`
}

type Service struct {
	repo    Repository
	synth   synthesis.Synthesizer
	voices  *voice.Manager
	cleaner Cleaner
	opts    Options
	now     func() time.Time
}

// NewService wires the service. cleaner may be nil, in which case voice files
// of deleted records are left in storage.
func NewService(repo Repository, synth synthesis.Synthesizer, voices *voice.Manager, cleaner Cleaner, opts Options) *Service {
	return &Service{
		repo:    repo,
		synth:   synth,
		voices:  voices,
		cleaner: cleaner,
		opts:    opts,
		now:     time.Now,
	}
}

// Create validates in, synthesizes and stores the voice file, then persists
// the record with its creation time. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in Input) (*models.SpeechRecord, error) {
	if err := validation.Validate(in.Text, in.FileName); err != nil {
		return nil, err
	}
	if err := s.ensureFileNameFree(ctx, in.FileName, uuid.Nil); err != nil {
		return nil, err
	}

	data, err := s.synthesize(ctx, in.Text)
	if err != nil {
		return nil, err
	}

	voicePath := s.voices.PathFor(in.FileName)
	unlock, err := s.repo.LockVoicePath(ctx, voicePath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another create may have claimed the name while this one synthesized.
	if err := s.ensureFileNameFree(ctx, in.FileName, uuid.Nil); err != nil {
		return nil, err
	}
	if _, err := s.voices.Store(ctx, in.FileName, data); err != nil {
		return nil, err
	}

	created := s.now().UTC()
	rec, err := s.repo.Create(ctx, &models.SpeechRecord{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Text:      in.Text,
		FileName:  in.FileName,
		VoicePath: voicePath,
		CreatedAt: &created,
	})
	if err != nil {
		// On a constraint hit the file at voicePath belongs to the winning row.
		if !errors.Is(err, ErrFileNameTaken) {
			s.discardVoice(ctx, voicePath)
		}
		return nil, err
	}

	slog.Info("speech record created", "id", rec.ID, "owner_id", ownerID, "file_name", rec.FileName)
	return rec, nil
}

// Update replaces text and file name of a record and regenerates its voice.
// Records carrying a creation time are rejected with ErrImmutable, which in
// practice covers every record made by Create. If the row cannot be written
// the voice file it pointed at is put back.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, in Input) (*models.SpeechRecord, error) {
	if err := validation.Validate(in.Text, in.FileName); err != nil {
		return nil, err
	}

	rec, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if rec.CreatedAt != nil {
		return nil, ErrImmutable
	}

	renamed := in.FileName != rec.FileName
	if renamed {
		if err := s.ensureFileNameFree(ctx, in.FileName, rec.ID); err != nil {
			return nil, err
		}
	}

	data, err := s.synthesize(ctx, in.Text)
	if err != nil {
		return nil, err
	}

	voicePath := s.voices.PathFor(in.FileName)
	unlock, err := s.repo.LockVoicePath(ctx, voicePath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if renamed {
		if err := s.ensureFileNameFree(ctx, in.FileName, rec.ID); err != nil {
			return nil, err
		}
	}

	var previous []byte
	replacing := voicePath == rec.VoicePath
	if replacing {
		if previous, err = s.readVoice(ctx, voicePath); err != nil {
			return nil, err
		}
	}

	if _, err := s.voices.Store(ctx, in.FileName, data); err != nil {
		return nil, err
	}

	oldPath := rec.VoicePath
	next := *rec
	next.Text = in.Text
	next.FileName = in.FileName
	next.VoicePath = voicePath

	updated, err := s.repo.Update(ctx, &next)
	if err != nil {
		switch {
		case replacing && previous != nil:
			if _, rerr := s.voices.Store(ctx, in.FileName, previous); rerr != nil {
				slog.Error("failed to restore voice file", "voice_path", voicePath, "error", rerr)
			}
		case !errors.Is(err, ErrFileNameTaken):
			s.discardVoice(ctx, voicePath)
		}
		return nil, err
	}

	if oldPath != "" && oldPath != voicePath {
		s.scheduleCleanup(ctx, oldPath, updated.ID, "renamed")
	}

	slog.Info("speech record updated", "id", updated.ID, "owner_id", ownerID, "file_name", updated.FileName)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error) {
	return s.repo.Get(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.SpeechRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, ownerID, limit, offset)
}

// Delete removes the record and, when a cleaner is configured, schedules
// removal of its voice file.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	rec, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		return err
	}

	s.scheduleCleanup(ctx, rec.VoicePath, rec.ID, "deleted")
	slog.Info("speech record deleted", "id", rec.ID, "owner_id", ownerID)
	return nil
}

// Download finds the owner's record named fileName and opens its voice file.
// The caller must close the returned reader.
func (s *Service) Download(ctx context.Context, ownerID uuid.UUID, fileName string) (*models.SpeechRecord, io.ReadCloser, error) {
	rec, err := s.repo.GetByFileName(ctx, ownerID, fileName)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.voices.Open(ctx, rec.VoicePath)
	if errors.Is(err, voice.ErrNotFound) {
		slog.Warn("voice file missing for existing record", "id", rec.ID, "voice_path", rec.VoicePath)
		return nil, nil, ErrVoiceMissing
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

func (s *Service) ensureFileNameFree(ctx context.Context, fileName string, exceptID uuid.UUID) error {
	taken, err := s.repo.FileNameTaken(ctx, fileName, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return ErrFileNameTaken
	}
	return nil
}

// synthesize renders text in its detected language. Every failure comes back
// as a *synthesis.Error.
func (s *Service) synthesize(ctx context.Context, text string) ([]byte, error) {
	lang := language.Detect(text)

	synthCtx := ctx
	if s.opts.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, s.opts.SynthesisTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.synth.Synthesize(synthCtx, synthesis.Request{Text: text, Lang: lang})
	if err != nil {
		var serr *synthesis.Error
		if !errors.As(err, &serr) {
			err = &synthesis.Error{Backend: s.synth.Name(), Err: err}
		}
		return nil, err
	}

	attrs := []any{
		"backend", s.synth.Name(),
		"lang", lang,
		"bytes", len(res.Audio),
		"latency_ms", time.Since(start).Milliseconds(),
	}
	if s.opts.ValidateMP3 {
		info, err := audio.ProbeMP3(res.Audio)
		if err != nil {
			return nil, &synthesis.Error{Backend: s.synth.Name(), Err: fmt.Errorf("engine returned unusable audio: %w", err)}
		}
		attrs = append(attrs, "duration", info.Duration)
	}
	slog.Debug("speech synthesized", attrs...)

	return res.Audio, nil
}

// readVoice returns the stored audio at voicePath, or nil when there is none.
func (s *Service) readVoice(ctx context.Context, voicePath string) ([]byte, error) {
	rc, err := s.voices.Open(ctx, voicePath)
	if errors.Is(err, voice.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read voice %s: %w", voicePath, err)
	}
	return data, nil
}

func (s *Service) discardVoice(ctx context.Context, voicePath string) {
	if err := s.voices.Remove(ctx, voicePath); err != nil {
		slog.Warn("failed to remove orphaned voice file", "voice_path", voicePath, "error", err)
	}
}

func (s *Service) scheduleCleanup(ctx context.Context, voicePath string, recordID uuid.UUID, reason string) {
	if s.cleaner == nil || voicePath == "" {
		return
	}
	err := s.cleaner.EnqueueVoiceCleanup(ctx, queue.VoiceCleanupPayload{
		VoicePath: voicePath,
		RecordID:  recordID.String(),
		Reason:    reason,
	})
	if err != nil {
		slog.Warn("failed to enqueue voice cleanup", "voice_path", voicePath, "error", err)
	}
}
