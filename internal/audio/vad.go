package audio

import (
	"fmt"
	"time"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Detector classifies one frame of 16-bit PCM as speech or not.
type Detector interface {
	Process(sampleRate int, frame []byte) (bool, error)
}

// EndpointConfig tunes hands-free end-of-speech detection.
type EndpointConfig struct {
	SampleRate int
	// Mode is the webrtc aggressiveness, 0 (least) to 3 (most).
	Mode      int
	Silence   time.Duration
	MinSpeech time.Duration
}

// DefaultEndpointConfig 16kHz，1.2 秒静音结束一句话
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SampleRate: 16000,
		Mode:       2,
		Silence:    1200 * time.Millisecond,
		MinSpeech:  300 * time.Millisecond,
	}
}

// Endpointer decides when a speaker has finished an utterance: at least
// MinSpeech of voiced frames followed by Silence of unvoiced ones.
type Endpointer struct {
	detector  Detector
	rate      int
	frameLen  int
	frameDur  time.Duration
	silence   time.Duration
	minSpeech time.Duration

	pending []int16
	voiced  time.Duration
	quiet   time.Duration
}

// NewEndpointer builds an Endpointer backed by the WebRTC VAD.
func NewEndpointer(cfg EndpointConfig) (*Endpointer, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}

	mode := min(max(cfg.Mode, 0), 3)
	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}
	return NewEndpointerWithDetector(vad, cfg)
}

// NewEndpointerWithDetector is NewEndpointer with a custom detector.
func NewEndpointerWithDetector(detector Detector, cfg EndpointConfig) (*Endpointer, error) {
	switch cfg.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("invalid sample rate %d, must be one of 8000, 16000, 32000, 48000", cfg.SampleRate)
	}

	// 30ms 帧
	frameLen := cfg.SampleRate * 30 / 1000
	return &Endpointer{
		detector:  detector,
		rate:      cfg.SampleRate,
		frameLen:  frameLen,
		frameDur:  30 * time.Millisecond,
		silence:   cfg.Silence,
		minSpeech: cfg.MinSpeech,
	}, nil
}

// Feed consumes samples and reports whether the utterance has ended.
func (e *Endpointer) Feed(samples []int16) (bool, error) {
	e.pending = append(e.pending, samples...)

	for len(e.pending) >= e.frameLen {
		frame := e.pending[:e.frameLen]
		active, err := e.detector.Process(e.rate, Int16ToBytes(frame))
		if err != nil {
			return false, fmt.Errorf("VAD processing failed: %w", err)
		}
		e.pending = e.pending[e.frameLen:]

		if active {
			e.voiced += e.frameDur
			e.quiet = 0
			continue
		}
		if e.voiced >= e.minSpeech {
			e.quiet += e.frameDur
			if e.quiet >= e.silence {
				return true, nil
			}
		}
	}
	return false, nil
}

// SpeechDetected reports whether enough speech has been heard to count as an
// utterance.
func (e *Endpointer) SpeechDetected() bool {
	return e.voiced >= e.minSpeech
}

// Reset prepares for the next utterance.
func (e *Endpointer) Reset() {
	e.pending = e.pending[:0]
	e.voiced = 0
	e.quiet = 0
}
