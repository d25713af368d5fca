package synthesis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/texttospeech/internal/language"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, splitText("   ", 200))
	assert.Equal(t, []string{"Hello world, this is a test"}, splitText("Hello   world,\nthis is a test", 200))
	assert.Equal(t, []string{"aaa bbb", "ccc"}, splitText("aaa bbb ccc", 7))
	assert.Equal(t, []string{"abcde", "fgh", "ij"}, splitText("abcdefgh ij", 5))

	long := strings.Repeat("слово ", 120)
	chunks := splitText(long, 200)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
	}
	assert.Equal(t, strings.TrimSpace(long), strings.Join(chunks, " "))
}

func TestGTTS_Synthesize(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		langs []string
		texts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_tts", r.URL.Path)
		assert.Equal(t, "tw-ob", r.URL.Query().Get("client"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		mu.Lock()
		langs = append(langs, r.URL.Query().Get("tl"))
		texts = append(texts, r.URL.Query().Get("q"))
		mu.Unlock()

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-" + r.URL.Query().Get("idx") + ";"))
	}))
	defer server.Close()

	g := NewGTTS(GTTSConfig{BaseURL: server.URL + "/"})
	text := strings.Repeat("А", 15) + " " + strings.Repeat("word ", 60)

	res, err := g.Synthesize(context.Background(), Request{Text: text, Lang: language.Russian})
	require.NoError(t, err)

	assert.Equal(t, "audio/mpeg", res.ContentType)
	assert.Equal(t, "ID3-0;ID3-1;", string(res.Audio))
	assert.Equal(t, []string{"ru", "ru"}, langs)
	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(texts, " "))
}

func TestGTTS_UpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := NewGTTS(GTTSConfig{BaseURL: server.URL})
	_, err := g.Synthesize(context.Background(), Request{Text: "Hello world, this is a test", Lang: language.English})
	require.Error(t, err)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "gtts", serr.Backend)
	assert.Contains(t, err.Error(), "429")
}

func TestGTTS_EmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	g := NewGTTS(GTTSConfig{BaseURL: server.URL})
	_, err := g.Synthesize(context.Background(), Request{Text: "Hello world, this is a test", Lang: language.English})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty audio")
}

func TestGTTS_ContextCanceled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGTTS(GTTSConfig{BaseURL: server.URL})
	_, err := g.Synthesize(ctx, Request{Text: "Hello world, this is a test", Lang: language.English})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
