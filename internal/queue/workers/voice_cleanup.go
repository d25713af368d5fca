package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/texttospeech/internal/queue"
)

// VoiceRefs reports whether any record still points at a voice path and
// serializes access to that path with the writers of voice files.
type VoiceRefs interface {
	VoicePathInUse(ctx context.Context, voicePath string) (bool, error)
	LockVoicePath(ctx context.Context, voicePath string) (unlock func(), err error)
}

// VoiceRemover deletes a stored voice file.
type VoiceRemover interface {
	Remove(ctx context.Context, voicePath string) error
}

type VoiceCleanupWorker struct {
	refs   VoiceRefs
	voices VoiceRemover
}

func NewVoiceCleanupWorker(refs VoiceRefs, voices VoiceRemover) *VoiceCleanupWorker {
	return &VoiceCleanupWorker{refs: refs, voices: voices}
}

func (w *VoiceCleanupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.VoiceCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.VoicePath == "" {
		return fmt.Errorf("empty voice path: %w", asynq.SkipRetry)
	}

	// The file name may have been reused by a new record since the task was
	// queued; its file must stay. The lock is held across check and removal
	// so a file written ahead of its row is never removed.
	unlock, err := w.refs.LockVoicePath(ctx, payload.VoicePath)
	if err != nil {
		return fmt.Errorf("lock voice path: %w", err)
	}
	defer unlock()

	inUse, err := w.refs.VoicePathInUse(ctx, payload.VoicePath)
	if err != nil {
		return fmt.Errorf("check voice references: %w", err)
	}
	if inUse {
		slog.Info("voice still referenced, keeping file", "voice_path", payload.VoicePath, "record_id", payload.RecordID)
		return nil
	}

	if err := w.voices.Remove(ctx, payload.VoicePath); err != nil {
		return fmt.Errorf("remove voice: %w", err)
	}

	slog.Info("voice file removed", "voice_path", payload.VoicePath, "record_id", payload.RecordID, "reason", payload.Reason)
	return nil
}
