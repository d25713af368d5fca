// Package speechtest provides in-memory stand-ins for the record store and
// the synthesis engine.
package speechtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/texttospeech/internal/models"
	"github.com/nikhilbhutani/texttospeech/internal/queue"
	"github.com/nikhilbhutani/texttospeech/internal/speech"
	"github.com/nikhilbhutani/texttospeech/internal/synthesis"
)

// Repository is a speech.Repository kept in a map.
type Repository struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.SpeechRecord

	// CreateErr and UpdateErr, when set, are returned instead of writing.
	CreateErr error
	UpdateErr error

	lockMu sync.Mutex
	locks  map[string]*pathLock
}

type pathLock struct {
	held    chan struct{}
	waiters int
}

var _ speech.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		records: map[uuid.UUID]models.SpeechRecord{},
		locks:   map[string]*pathLock{},
	}
}

// Put stores rec as is, bypassing every check.
func (r *Repository) Put(rec models.SpeechRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Repository) Create(_ context.Context, rec *models.SpeechRecord) (*models.SpeechRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	for _, existing := range r.records {
		if existing.FileName == rec.FileName {
			return nil, speech.ErrFileNameTaken
		}
	}
	out := *rec
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	r.records[out.ID] = out
	return &out, nil
}

func (r *Repository) Get(_ context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, speech.ErrNotFound
	}
	return &rec, nil
}

func (r *Repository) GetByFileName(_ context.Context, ownerID uuid.UUID, fileName string) (*models.SpeechRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.FileName == fileName && rec.OwnerID == ownerID {
			return &rec, nil
		}
	}
	return nil, speech.ErrNotFound
}

func (r *Repository) List(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]models.SpeechRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.SpeechRecord{}
	for _, rec := range r.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })

	if offset >= len(out) {
		return []models.SpeechRecord{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) Update(_ context.Context, rec *models.SpeechRecord) (*models.SpeechRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.UpdateErr != nil {
		return nil, r.UpdateErr
	}
	existing, ok := r.records[rec.ID]
	if !ok || existing.OwnerID != rec.OwnerID {
		return nil, speech.ErrNotFound
	}
	for id, other := range r.records {
		if id != rec.ID && other.FileName == rec.FileName {
			return nil, speech.ErrFileNameTaken
		}
	}
	existing.Text = rec.Text
	existing.FileName = rec.FileName
	existing.VoicePath = rec.VoicePath
	r.records[rec.ID] = existing
	return &existing, nil
}

func (r *Repository) Delete(_ context.Context, ownerID, id uuid.UUID) (*models.SpeechRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, speech.ErrNotFound
	}
	delete(r.records, id)
	return &rec, nil
}

func (r *Repository) FileNameTaken(_ context.Context, fileName string, exceptID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if id != exceptID && rec.FileName == fileName {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) VoicePathInUse(_ context.Context, voicePath string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.VoicePath == voicePath {
			return true, nil
		}
	}
	return false, nil
}

// LockVoicePath is an in-process lock per voice path.
func (r *Repository) LockVoicePath(ctx context.Context, voicePath string) (func(), error) {
	r.lockMu.Lock()
	l, ok := r.locks[voicePath]
	if !ok {
		l = &pathLock{held: make(chan struct{}, 1)}
		r.locks[voicePath] = l
	}
	l.waiters++
	r.lockMu.Unlock()

	defer func() {
		r.lockMu.Lock()
		l.waiters--
		r.lockMu.Unlock()
	}()

	select {
	case l.held <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-l.held }) }, nil
}

// LockWaiters reports how many callers are blocked on voicePath's lock.
func (r *Repository) LockWaiters(voicePath string) int {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if l, ok := r.locks[voicePath]; ok {
		return l.waiters
	}
	return 0
}

// Synthesizer records every request and answers with fixed audio.
type Synthesizer struct {
	mu       sync.Mutex
	requests []synthesis.Request

	Audio []byte
	Err   error
	// Delay holds each call until it elapses or the context ends.
	Delay time.Duration
	// AudioFor, when set, replaces Audio with per-request output.
	AudioFor func(req synthesis.Request) []byte
}

var _ synthesis.Synthesizer = (*Synthesizer)(nil)

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{Audio: []byte("ID3\x04fake-mp3-audio")}
}

func (s *Synthesizer) Name() string { return "fake" }

func (s *Synthesizer) Synthesize(ctx context.Context, req synthesis.Request) (*synthesis.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	audio, err, delay := s.Audio, s.Err, s.Delay
	if s.AudioFor != nil {
		audio = s.AudioFor(req)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &synthesis.Result{Audio: audio, ContentType: "audio/mpeg"}, nil
}

// Fail makes later calls return err. Safe to call while requests are served.
func (s *Synthesizer) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

func (s *Synthesizer) Requests() []synthesis.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]synthesis.Request(nil), s.requests...)
}

// Cleaner collects queued voice cleanups.
type Cleaner struct {
	mu       sync.Mutex
	payloads []queue.VoiceCleanupPayload
}

func (c *Cleaner) EnqueueVoiceCleanup(_ context.Context, payload queue.VoiceCleanupPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *Cleaner) Payloads() []queue.VoiceCleanupPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]queue.VoiceCleanupPayload(nil), c.payloads...)
}
