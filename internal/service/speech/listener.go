package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	ErrAlreadyListening = errors.New("already listening")
	ErrNotListening     = errors.New("not listening")
)

// Recorder captures one utterance between Start and Stop.
type Recorder interface {
	Start(ctx context.Context) error
	// Stop halts capture and returns the recording and its file format.
	Stop() ([]byte, string, error)
}

// Transcriber turns a recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format, language string) (string, error)
}

// Listener couples a Recorder with a Transcriber. Only one capture may be
// active at a time; a second StartListening is rejected.
type Listener struct {
	mu           sync.Mutex
	recorder     Recorder
	transcriber  Transcriber
	language     func() string
	onTranscript func(string)
	listening    bool
}

// NewListener builds a Listener. language is consulted at every stop so the
// hint follows the current session settings; it may be nil.
func NewListener(recorder Recorder, transcriber Transcriber, language func() string) *Listener {
	return &Listener{recorder: recorder, transcriber: transcriber, language: language}
}

// OnTranscript registers the callback that receives every recognised text.
func (l *Listener) OnTranscript(fn func(string)) {
	l.mu.Lock()
	l.onTranscript = fn
	l.mu.Unlock()
}

// Listening reports whether a capture is active.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// StartListening begins capturing audio.
func (l *Listener) StartListening(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listening {
		return ErrAlreadyListening
	}
	if err := l.recorder.Start(ctx); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	l.listening = true
	return nil
}

// StopListening halts capture, uploads the recording and returns the text.
func (l *Listener) StopListening(ctx context.Context) (string, error) {
	l.mu.Lock()
	if !l.listening {
		l.mu.Unlock()
		return "", ErrNotListening
	}
	l.listening = false
	audio, format, err := l.recorder.Stop()
	callback := l.onTranscript
	l.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("stop recorder: %w", err)
	}
	if len(audio) == 0 {
		return "", ErrEmptyRecording
	}

	language := ""
	if l.language != nil {
		language = l.language()
	}

	text, err := l.transcriber.Transcribe(ctx, audio, format, language)
	if err != nil {
		log.Printf("[stt] transcription error: %v", err)
		return "", err
	}

	if text != "" && callback != nil {
		callback(text)
	}
	return text, nil
}

// BufferRecorder collects audio pushed by a remote client. Chunks written
// while idle are dropped.
type BufferRecorder struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	format    string
	recording bool
}

// NewBufferRecorder returns a recorder for chunks in format. Raw "pcm" is
// wrapped in WAV on stop.
func NewBufferRecorder(format string) *BufferRecorder {
	return &BufferRecorder{format: normalizeRecorderFormat(format)}
}

// SetFormat changes the format of the next recording.
func (r *BufferRecorder) SetFormat(format string) {
	r.mu.Lock()
	r.format = normalizeRecorderFormat(format)
	r.mu.Unlock()
}

func (r *BufferRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Reset()
	r.recording = true
	return nil
}

// Write appends a chunk to the active recording.
func (r *BufferRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return 0, ErrNotListening
	}
	return r.buf.Write(p)
}

func (r *BufferRecorder) Stop() ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recording = false
	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	if r.format == "pcm" {
		if len(data) == 0 {
			return nil, "wav", nil
		}
		return EncodeWAV(data, SampleRate, Channels), "wav", nil
	}
	return data, r.format, nil
}

func normalizeRecorderFormat(format string) string {
	if format == "" {
		return "wav"
	}
	return format
}
