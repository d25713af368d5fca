package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/texttospeech/internal/account/accounttest"
	"github.com/nikhilbhutani/texttospeech/internal/api/handlers"
	"github.com/nikhilbhutani/texttospeech/internal/auth"
	"github.com/nikhilbhutani/texttospeech/internal/config"
	"github.com/nikhilbhutani/texttospeech/internal/language"
	"github.com/nikhilbhutani/texttospeech/internal/models"
	"github.com/nikhilbhutani/texttospeech/internal/speech"
	"github.com/nikhilbhutani/texttospeech/internal/speech/speechtest"
	"github.com/nikhilbhutani/texttospeech/internal/storage"
	"github.com/nikhilbhutani/texttospeech/internal/voice"
)

const secret = "router-test-secret"

type testEnv struct {
	srv   *httptest.Server
	root  string
	repo  *speechtest.Repository
	synth *speechtest.Synthesizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		root:  t.TempDir(),
		repo:  speechtest.NewRepository(),
		synth: speechtest.NewSynthesizer(),
	}
	accounts := accounttest.NewStore()
	voices := voice.NewManager(storage.NewLocalStorage(env.root), "voice")

	cfg := &config.Config{Server: config.ServerConfig{CORSOrigins: []string{"*"}}}
	rt := New(cfg, Services{
		Speech: speech.NewService(env.repo, env.synth, voices, &speechtest.Cleaner{}, speech.Options{}),
		Auth:   auth.NewService(accounts, secret, 0),
		JWT:    auth.NewJWTMiddleware(secret, accounts, nil, 0),
		Health: handlers.NewHealthHandler(nil, nil),
	})

	env.srv = httptest.NewServer(rt.Setup())
	t.Cleanup(func() {
		env.srv.Close()
		rt.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register/", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "alice")

	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "alice", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/token/", "", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "Token refreshed", body["message"])
	assert.NotEmpty(t, body["user_id"])
	assert.NotEmpty(t, body["token"])

	resp = env.do(t, http.MethodPost, "/auth/token", "", map[string]string{"username": "alice", "password": "nope-nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unable to log in with provided credentials", decode[map[string]string](t, resp)["error"])
}

func TestSpeechRequiresAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, path := range []string{"/text-to-speech/", "/download-voice/greet1/"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestCreateAndDownload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "bob")

	resp := env.do(t, http.MethodPost, "/text-to-speech/", token, map[string]string{
		"text":      "Hello world, this is a test",
		"file_name": "greet1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[models.SpeechRecord](t, resp)
	assert.Equal(t, "voice/greet1.mp3", rec.VoicePath)
	assert.NotNil(t, rec.CreatedAt)

	_, err := os.Stat(filepath.Join(env.root, filepath.FromSlash(rec.VoicePath)))
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, "/download-voice/greet1/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="greet1.mp3"`, resp.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, env.synth.Audio, data)

	resp = env.do(t, http.MethodGet, "/text-to-speech/"+rec.ID.String()+"/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, rec.ID, decode[models.SpeechRecord](t, resp).ID)

	resp = env.do(t, http.MethodGet, "/text-to-speech", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.SpeechRecord](t, resp), 1)
}

func TestCreate_CyrillicText(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "carol")

	resp := env.do(t, http.MethodPost, "/text-to-speech/", token, map[string]string{
		"text":      strings.Repeat("А", 15),
		"file_name": "abcde",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	reqs := env.synth.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, language.Russian, reqs[0].Lang)
}

func TestCreate_ValidationErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "dave")

	cases := []struct {
		text, fileName, message string
	}{
		{"short", "greet1", "text must not be shorter than 10 characters"},
		{strings.Repeat("x", 701), "greet1", "text must not exceed 700 characters"},
		{"Hello world, this is a test", "abc", "file name must not be shorter than 5 characters"},
		{"Hello world, this is a test", strings.Repeat("n", 21), "file name must not exceed 20 characters"},
	}
	for _, c := range cases {
		resp := env.do(t, http.MethodPost, "/text-to-speech/", token, map[string]string{
			"text":      c.text,
			"file_name": c.fileName,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, c.message, decode[map[string]string](t, resp)["error"])
	}

	_, err := os.Stat(filepath.Join(env.root, "voice"))
	assert.True(t, os.IsNotExist(err), "no voice file written")
	assert.Empty(t, env.synth.Requests())
}

func TestCreate_DuplicateFileName(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "erin")

	in := map[string]string{"text": "Hello world, this is a test", "file_name": "greet1"}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/text-to-speech/", token, in).StatusCode)

	resp := env.do(t, http.MethodPost, "/text-to-speech/", env.register(t, "frank"), in)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "file name is already taken", decode[map[string]string](t, resp)["error"])
}

func TestCreate_SynthesisFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "grace")
	env.synth.Fail(io.ErrUnexpectedEOF)

	resp := env.do(t, http.MethodPost, "/text-to-speech/", token, map[string]string{
		"text":      "Hello world, this is a test",
		"file_name": "greet1",
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Zero(t, env.repo.Len())
}

func TestUpdate_CreatedRecordNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "heidi")

	resp := env.do(t, http.MethodPost, "/text-to-speech/", token, map[string]string{
		"text":      "Hello world, this is a test",
		"file_name": "greet1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[models.SpeechRecord](t, resp)

	resp = env.do(t, http.MethodPut, "/text-to-speech/"+rec.ID.String()+"/", token, map[string]string{
		"text":      "Another perfectly valid text",
		"file_name": "greet2",
	})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, `method "PUT" not allowed`, decode[map[string]string](t, resp)["error"])
}

func TestDownload_NotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "ivan")

	resp := env.do(t, http.MethodGet, "/download-voice/missing1/", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "voice not found", decode[map[string]string](t, resp)["error"])
}

func TestDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.register(t, "judy")

	resp := env.do(t, http.MethodPost, "/text-to-speech/", token, map[string]string{
		"text":      "Hello world, this is a test",
		"file_name": "greet1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[models.SpeechRecord](t, resp)

	other := env.register(t, "mallory")
	resp = env.do(t, http.MethodDelete, "/text-to-speech/"+rec.ID.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/text-to-speech/"+rec.ID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/text-to-speech/"+rec.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
