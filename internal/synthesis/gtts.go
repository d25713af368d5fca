package synthesis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// maxChunkLen is the longest text the translate_tts endpoint accepts per call.
const maxChunkLen = 200

const gttsUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type GTTSConfig struct {
	BaseURL string // default: "https://translate.google.com"
}

// GTTS speaks text through the Google Translate TTS endpoint. Long text is
// split into chunks and the MP3 bodies are concatenated.
type GTTS struct {
	cfg        GTTSConfig
	httpClient *http.Client
}

func NewGTTS(cfg GTTSConfig) *GTTS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://translate.google.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GTTS{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GTTS) Name() string { return "gtts" }

func (g *GTTS) Synthesize(ctx context.Context, req Request) (*Result, error) {
	chunks := splitText(req.Text, maxChunkLen)
	if len(chunks) == 0 {
		return nil, wrap(g.Name(), fmt.Errorf("no text to speak"))
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		if err := g.fetch(ctx, &audio, chunk, string(req.Lang), i, len(chunks)); err != nil {
			return nil, wrap(g.Name(), err)
		}
	}

	return &Result{
		Audio:       audio.Bytes(),
		ContentType: "audio/mpeg",
	}, nil
}

func (g *GTTS) fetch(ctx context.Context, dst io.Writer, text, lang string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(text)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", gttsUserAgent)
	httpReq.Header.Set("Referer", g.cfg.BaseURL+"/")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tts failed (status %d, chunk %d/%d): %s", resp.StatusCode, idx+1, total, string(body))
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("empty audio for chunk %d/%d", idx+1, total)
	}
	return nil
}

// splitText breaks text into pieces of at most limit characters, cutting at
// whitespace. A single word longer than limit is cut mid-word.
func splitText(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)

		for wordLen > limit {
			flush()
			runes := []rune(word)
			chunks = append(chunks, string(runes[:limit]))
			word = string(runes[limit:])
			wordLen -= limit
		}
		if wordLen == 0 {
			continue
		}

		switch {
		case curLen == 0:
			cur.WriteString(word)
			curLen = wordLen
		case curLen+1+wordLen <= limit:
			cur.WriteByte(' ')
			cur.WriteString(word)
			curLen += 1 + wordLen
		default:
			flush()
			cur.WriteString(word)
			curLen = wordLen
		}
	}
	flush()

	return chunks
}
