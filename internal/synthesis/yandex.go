package synthesis

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"

	"github.com/nikhilbhutani/texttospeech/internal/language"
)

const defaultYandexEndpoint = "tts.api.cloud.yandex.net:443"

type YandexConfig struct {
	APIKey   string
	FolderID string
	Endpoint string // default: "tts.api.cloud.yandex.net:443"
}

// yandexVoices maps a language onto a SpeechKit voice that speaks it.
var yandexVoices = map[language.Code]string{
	language.Russian: "alena",
	language.English: "john",
}

// Yandex synthesizes speech with Yandex SpeechKit v3 over gRPC.
type Yandex struct {
	client   tts.SynthesizerClient
	conn     *grpc.ClientConn
	apiKey   string
	folderID string
}

var _ Synthesizer = (*Yandex)(nil)

func NewYandex(cfg YandexConfig) (*Yandex, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultYandexEndpoint
	}

	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, fmt.Errorf("connect to speechkit: %w", err)
	}

	return &Yandex{
		client:   tts.NewSynthesizerClient(conn),
		conn:     conn,
		apiKey:   cfg.APIKey,
		folderID: cfg.FolderID,
	}, nil
}

func (y *Yandex) Name() string { return "yandex" }

func (y *Yandex) Synthesize(ctx context.Context, req Request) (*Result, error) {
	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Api-Key "+y.apiKey,
		"x-folder-id", y.folderID,
	)

	stream, err := y.client.UtteranceSynthesis(ctx, buildUtteranceRequest(req))
	if err != nil {
		return nil, wrap(y.Name(), fmt.Errorf("start synthesis: %w", err))
	}

	var audio bytes.Buffer
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrap(y.Name(), fmt.Errorf("receive audio: %w", err))
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			audio.Write(chunk.GetData())
		}
	}

	if audio.Len() == 0 {
		return nil, wrap(y.Name(), errors.New("empty audio"))
	}

	return &Result{
		Audio:       audio.Bytes(),
		ContentType: "audio/mpeg",
	}, nil
}

func buildUtteranceRequest(req Request) *tts.UtteranceSynthesisRequest {
	voice, ok := yandexVoices[req.Lang]
	if !ok {
		voice = yandexVoices[language.Default]
	}

	out := &tts.UtteranceSynthesisRequest{}
	out.SetText(req.Text)

	voiceHint := &tts.Hints{}
	voiceHint.SetVoice(voice)
	out.SetHints([]*tts.Hints{voiceHint})

	container := &tts.ContainerAudio{}
	container.SetContainerAudioType(tts.ContainerAudio_MP3)
	spec := &tts.AudioFormatOptions{}
	spec.SetContainerAudio(container)
	out.SetOutputAudioSpec(spec)

	out.SetLoudnessNormalizationType(tts.UtteranceSynthesisRequest_LUFS)
	return out
}

func (y *Yandex) Close() error {
	return y.conn.Close()
}
