// Package voice maps record file names onto stored voice files.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/nikhilbhutani/texttospeech/internal/storage"
)

const (
	Extension   = ".mp3"
	ContentType = "audio/mpeg"
)

// ErrNotFound is returned when a voice path has no stored file.
var ErrNotFound = errors.New("voice file not found")

// Manager writes and reads voice files at <dir>/<file name>.mp3. Writing the
// same file name twice replaces the earlier file.
type Manager struct {
	store storage.Storage
	dir   string
}

func NewManager(store storage.Storage, dir string) *Manager {
	if dir == "" {
		dir = "voice"
	}
	return &Manager{store: store, dir: dir}
}

// PathFor returns the voice path a file name is stored under.
func (m *Manager) PathFor(fileName string) string {
	return path.Join(m.dir, fileName+Extension)
}

// Store writes audio for fileName and returns the voice path.
func (m *Manager) Store(ctx context.Context, fileName string, audio []byte) (string, error) {
	if fileName == "" || path.Base(fileName) != fileName || fileName == "." || fileName == ".." {
		return "", fmt.Errorf("invalid voice file name %q", fileName)
	}

	p := m.PathFor(fileName)
	if err := m.store.Upload(ctx, p, bytes.NewReader(audio), ContentType); err != nil {
		return "", fmt.Errorf("store voice %s: %w", p, err)
	}

	slog.Debug("voice stored", "path", p, "bytes", len(audio))
	return p, nil
}

// Open returns a reader for the voice file at voicePath.
func (m *Manager) Open(ctx context.Context, voicePath string) (io.ReadCloser, error) {
	rc, err := m.store.Download(ctx, voicePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open voice %s: %w", voicePath, err)
	}
	return rc, nil
}

// Remove deletes the voice file at voicePath. A missing file is not an error.
func (m *Manager) Remove(ctx context.Context, voicePath string) error {
	err := m.store.Delete(ctx, voicePath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove voice %s: %w", voicePath, err)
	}
	return nil
}
