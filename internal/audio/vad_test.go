package audio

import (
	"errors"
	"testing"
	"time"
)

// loudDetector marks a frame voiced when its first sample is non-zero.
type loudDetector struct {
	frames int
	err    error
}

func (d *loudDetector) Process(_ int, frame []byte) (bool, error) {
	d.frames++
	if d.err != nil {
		return false, d.err
	}
	return frame[0] != 0 || frame[1] != 0, nil
}

func testEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SampleRate: 16000,
		Silence:    90 * time.Millisecond,
		MinSpeech:  60 * time.Millisecond,
	}
}

func frames(n int, value int16) []int16 {
	out := make([]int16, n*480)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestEndpointerSilenceNeverEnds(t *testing.T) {
	ep, err := NewEndpointerWithDetector(&loudDetector{}, testEndpointConfig())
	if err != nil {
		t.Fatalf("new endpointer: %v", err)
	}

	ended, err := ep.Feed(frames(50, 0))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if ended {
		t.Fatal("silence alone should not end an utterance")
	}
	if ep.SpeechDetected() {
		t.Fatal("no speech expected")
	}
}

func TestEndpointerSpeechThenSilence(t *testing.T) {
	detector := &loudDetector{}
	ep, err := NewEndpointerWithDetector(detector, testEndpointConfig())
	if err != nil {
		t.Fatalf("new endpointer: %v", err)
	}

	if ended, _ := ep.Feed(frames(3, 1000)); ended {
		t.Fatal("speech should not end the utterance")
	}
	if !ep.SpeechDetected() {
		t.Fatal("expected speech detected")
	}
	if ended, _ := ep.Feed(frames(2, 0)); ended {
		t.Fatal("60ms of silence is below the threshold")
	}
	ended, err := ep.Feed(frames(1, 0))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !ended {
		t.Fatal("expected end of utterance after 90ms of silence")
	}

	ep.Reset()
	if ep.SpeechDetected() {
		t.Fatal("reset should clear speech state")
	}
}

func TestEndpointerShortBlipIgnored(t *testing.T) {
	ep, _ := NewEndpointerWithDetector(&loudDetector{}, testEndpointConfig())

	samples := append(frames(1, 1000), frames(10, 0)...)
	ended, err := ep.Feed(samples)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if ended {
		t.Fatal("a single voiced frame is below MinSpeech")
	}
}

func TestEndpointerBuffersPartialFrames(t *testing.T) {
	detector := &loudDetector{}
	ep, _ := NewEndpointerWithDetector(detector, testEndpointConfig())

	ep.Feed(make([]int16, 300))
	if detector.frames != 0 {
		t.Fatalf("expected no frame processed, got %d", detector.frames)
	}
	ep.Feed(make([]int16, 300))
	if detector.frames != 1 {
		t.Fatalf("expected one frame processed, got %d", detector.frames)
	}
}

func TestEndpointerDetectorError(t *testing.T) {
	boom := errors.New("boom")
	ep, _ := NewEndpointerWithDetector(&loudDetector{err: boom}, testEndpointConfig())

	if _, err := ep.Feed(frames(1, 0)); !errors.Is(err, boom) {
		t.Fatalf("expected detector error, got %v", err)
	}
}

func TestEndpointerInvalidRate(t *testing.T) {
	cfg := testEndpointConfig()
	cfg.SampleRate = 22050
	if _, err := NewEndpointerWithDetector(&loudDetector{}, cfg); err == nil {
		t.Fatal("expected error for unsupported sample rate")
	}
}
