package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/locus/backend/internal/model/speech"
)

func TestServiceSynthesizeResolvesLocaleAndLevel(t *testing.T) {
	srv := newTTSServer(t, func(w http.ResponseWriter, r *http.Request, body ttsRequestBody) {
		if body.Voice.LanguageCode != "cmn-CN" || body.Voice.Name != "cmn-CN-Chirp3-HD-Kore" {
			t.Errorf("unexpected voice %+v", body.Voice)
		}
		if body.AudioConfig.SpeakingRate != 0.85 {
			t.Errorf("expected beginner rate, got %v", body.AudioConfig.SpeakingRate)
		}
		json.NewEncoder(w).Encode(map[string]string{"audioContent": base64.StdEncoding.EncodeToString([]byte("mp3"))})
	})

	svc := NewService(&speech.SpeechConfig{TTSAPIKey: "k", TTSEndpoint: srv.URL, TTSSpeakingRate: 1.0}, nil)
	resp, err := svc.SynthesizeToBuffer(context.Background(), "s1", "你好", "zh", "beginner")
	if err != nil {
		t.Fatalf("SynthesizeToBuffer err: %v", err)
	}
	if resp.Locale != "cmn-CN" || resp.Format != "mp3" || string(resp.AudioData) != "mp3" || resp.SessionID != "s1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestServiceTranscribeAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"hola"}`))
	}))
	defer srv.Close()

	svc := NewService(&speech.SpeechConfig{STTAPIKey: "k", STTEndpoint: srv.URL}, nil)
	if !svc.STTEnabled() || svc.TTSEnabled() {
		t.Fatal("unexpected enabled flags")
	}

	resp, err := svc.TranscribeAudio(context.Background(), &speech.ASRRequest{
		SessionID: "s1",
		AudioData: bytes.NewReader([]byte("audio")),
		Format:    "webm",
		Language:  "es",
	})
	if err != nil {
		t.Fatalf("TranscribeAudio err: %v", err)
	}
	if resp.Text != "hola" || resp.SessionID != "s1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestServiceBufferListener(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"bonjour"}`))
	}))
	defer srv.Close()

	svc := NewService(&speech.SpeechConfig{STTAPIKey: "k", STTEndpoint: srv.URL}, nil)
	listener, recorder := svc.NewBufferListener("pcm", func() string { return "fr" })

	ctx := context.Background()
	if err := listener.StartListening(ctx); err != nil {
		t.Fatalf("StartListening err: %v", err)
	}
	recorder.Write([]byte{0, 0, 1, 0})
	text, err := listener.StopListening(ctx)
	if err != nil {
		t.Fatalf("StopListening err: %v", err)
	}
	if text != "bonjour" {
		t.Fatalf("unexpected text %q", text)
	}
}
