//go:build voice

package audio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/zhouzirui/locus/backend/internal/service/speech"
)

const framesPerBuffer = 480

// Recorder captures 16kHz mono audio from the default input device. It
// implements speech.Recorder; Stop returns a WAV file.
type Recorder struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	pcm        []int16
	done       chan struct{}
	endpointer *Endpointer
	onEndpoint func()
}

// NewRecorder returns a recorder. PortAudio must be initialised with Init.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SetEndpointer enables hands-free mode: fn runs once per recording when ep
// detects the end of an utterance.
func (r *Recorder) SetEndpointer(ep *Endpointer, fn func()) {
	r.mu.Lock()
	r.endpointer = ep
	r.onEndpoint = fn
	r.mu.Unlock()
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		return fmt.Errorf("capture already running")
	}

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(speech.Channels, 0, speech.SampleRate, len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	r.stream = stream
	r.pcm = r.pcm[:0]
	r.done = make(chan struct{})
	if r.endpointer != nil {
		r.endpointer.Reset()
	}

	go r.captureLoop(ctx, stream, buffer, r.done)
	return nil
}

func (r *Recorder) captureLoop(ctx context.Context, stream *portaudio.Stream, buffer []int16, done chan struct{}) {
	defer close(done)
	fired := false

	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			r.mu.Lock()
			running := r.stream == stream
			r.mu.Unlock()
			if !running {
				return
			}
			log.Printf("[audio] read error: %v", err)
			continue
		}

		r.mu.Lock()
		if r.stream != stream {
			r.mu.Unlock()
			return
		}
		r.pcm = append(r.pcm, buffer...)
		ep, fn := r.endpointer, r.onEndpoint
		r.mu.Unlock()

		if ep == nil || fired {
			continue
		}
		ended, err := ep.Feed(buffer)
		if err != nil {
			log.Printf("[audio] vad error: %v", err)
			continue
		}
		if ended && fn != nil {
			fired = true
			go fn()
		}
	}
}

// Stop halts capture and returns the recording as WAV.
func (r *Recorder) Stop() ([]byte, string, error) {
	r.mu.Lock()
	stream, done := r.stream, r.done
	r.stream = nil
	r.mu.Unlock()

	if stream == nil {
		return nil, "wav", nil
	}
	if err := stream.Stop(); err != nil {
		log.Printf("[audio] stop stream: %v", err)
	}
	<-done
	if err := stream.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close audio stream: %w", err)
	}

	r.mu.Lock()
	samples := r.pcm
	r.pcm = nil
	r.mu.Unlock()

	if len(samples) == 0 {
		return nil, "wav", nil
	}
	return speech.EncodeWAV(Int16ToBytes(samples), speech.SampleRate, speech.Channels), "wav", nil
}

// Init initialises PortAudio for the process; call the returned function on exit.
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return func() {
		if err := portaudio.Terminate(); err != nil {
			log.Printf("[audio] terminate: %v", err)
		}
	}, nil
}
