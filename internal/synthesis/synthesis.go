// Package synthesis turns text into speech audio through an external engine.
package synthesis

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/texttospeech/internal/config"
	"github.com/nikhilbhutani/texttospeech/internal/language"
)

// Request holds the text to speak and the language to speak it in.
type Request struct {
	Text string
	Lang language.Code
}

// Result holds the generated audio and its content type.
type Result struct {
	Audio       []byte
	ContentType string
}

// Synthesizer is implemented by every text-to-speech backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// Error wraps any failure reported by a backend. Engine failures are not
// retried.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("synthesis (%s): %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Err: err}
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Backend {
	case "", "gtts":
		return NewGTTS(GTTSConfig{BaseURL: cfg.GTTSBaseURL}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Voice:   cfg.OpenAIVoice,
		}), nil
	case "yandex":
		y, err := NewYandex(YandexConfig{
			APIKey:   cfg.YandexAPIKey,
			FolderID: cfg.YandexFolderID,
			Endpoint: cfg.YandexEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return y, nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}
