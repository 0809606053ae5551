//go:build voice

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const playbackBuffer = 1024

// Player plays LINEAR16 (WAV) replies on the default output device. It
// implements conversation.Player.
type Player struct {
	mu   sync.Mutex
	stop chan struct{}
}

func NewPlayer() *Player {
	return &Player{}
}

// Play blocks until the clip ends, ctx is cancelled or Stop is called.
func (p *Player) Play(ctx context.Context, data []byte, format string) error {
	if format != "wav" {
		return fmt.Errorf("%w: %s (set TTS_AUDIO_ENCODING=LINEAR16)", ErrUnsupportedFormat, format)
	}
	pcm, info, err := DecodeWAV(data)
	if err != nil {
		return err
	}
	samples := BytesToFloat32(pcm)

	stop := make(chan struct{})
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
	}
	p.stop = stop
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.stop == stop {
			p.stop = nil
		}
		p.mu.Unlock()
	}()

	buffer := make([]float32, playbackBuffer*info.Channels)
	stream, err := portaudio.OpenDefaultStream(0, info.Channels, float64(info.SampleRate), playbackBuffer, &buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(samples); pos += len(buffer) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return context.Canceled
		default:
		}

		n := copy(buffer, samples[pos:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}
	return nil
}

// Stop interrupts the clip being played, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}
