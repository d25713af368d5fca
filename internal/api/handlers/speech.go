package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/speech"
	"github.com/nikhilbhutani/texttospeech/internal/synthesis"
	"github.com/nikhilbhutani/texttospeech/internal/validation"
	"github.com/nikhilbhutani/texttospeech/internal/voice"
)

type SpeechHandler struct {
	svc *speech.Service
}

func NewSpeechHandler(svc *speech.Service) *SpeechHandler {
	return &SpeechHandler{svc: svc}
}

func (h *SpeechHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.svc.List(r.Context(), owner, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *SpeechHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var in speech.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.Create(r.Context(), owner, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *SpeechHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *SpeechHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var in speech.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.Update(r.Context(), owner, id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *SpeechHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Download streams the voice file of the caller's record named {file_name}
// as an attachment.
func (h *SpeechHandler) Download(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	rec, rc, err := h.svc.Download(r.Context(), owner, chi.URLParam(r, "file_name"))
	if err != nil {
		if errors.Is(err, speech.ErrNotFound) || errors.Is(err, speech.ErrVoiceMissing) {
			writeError(w, http.StatusNotFound, "voice not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", voice.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName+voice.Extension))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("voice download interrupted", "file_name", rec.FileName, "error", err)
	}
}

func ownerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id := account.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "authentication credentials were not provided")
		return uuid.Nil, false
	}
	return id, true
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// Unparseable ids cannot name an existing record.
		writeError(w, http.StatusNotFound, "record not found")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	var serr *synthesis.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, speech.ErrFileNameTaken):
		writeError(w, http.StatusBadRequest, "file name is already taken")
	case errors.Is(err, speech.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, speech.ErrVoiceMissing):
		writeError(w, http.StatusNotFound, "voice not found")
	case errors.Is(err, speech.ErrImmutable):
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %q not allowed", r.Method))
	case errors.As(err, &serr):
		slog.Error("speech synthesis failed", "backend", serr.Backend, "error", serr.Err,
			"request_id", chimiddleware.GetReqID(r.Context()))
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err,
			"request_id", chimiddleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
