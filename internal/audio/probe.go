// Package audio inspects synthesized audio before it is stored.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

var ErrEmpty = errors.New("audio is empty")

// Info describes a decodable MP3 stream.
type Info struct {
	SampleRate int
	Duration   time.Duration
}

// ProbeMP3 decodes the stream header of data and reports its sample rate and
// playback length. It fails when data is not a readable MP3 stream.
func ProbeMP3(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		return nil, fmt.Errorf("decode mp3: invalid sample rate %d", rate)
	}

	// go-mp3 always decodes to 16-bit stereo PCM: 4 bytes per sample frame.
	samples := dec.Length() / 4
	return &Info{
		SampleRate: rate,
		Duration:   time.Duration(samples) * time.Second / time.Duration(rate),
	}, nil
}
