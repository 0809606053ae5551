package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/model/speech"
)

func sessionLevel(raw string) session.Level {
	return session.Level(raw)
}

// TestWhisperTranscribeMultipart 验证 multipart 字段
func TestWhisperTranscribeMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("unexpected model %q", got)
		}
		if got := r.FormValue("language"); got != "fr" {
			t.Errorf("unexpected language %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "recording.m4a" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "audio-bytes" {
			t.Errorf("unexpected audio %q", data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" Je voudrais un café. "}`))
	}))
	defer srv.Close()

	client := NewWhisperClient(&speech.SpeechConfig{STTAPIKey: "sk-test", STTEndpoint: srv.URL})
	text, err := client.Transcribe(context.Background(), []byte("audio-bytes"), "m4a", "fr")
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "Je voudrais un café." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestWhisperOmitsEmptyLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Errorf("language part must be omitted")
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		if header.Filename != "recording.wav" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	client := NewWhisperClient(&speech.SpeechConfig{STTAPIKey: "k", STTEndpoint: srv.URL})
	if _, err := client.Transcribe(context.Background(), []byte{1, 2}, "pcm", ""); err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
}

func TestWhisperErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	client := NewWhisperClient(&speech.SpeechConfig{STTAPIKey: "k", STTEndpoint: srv.URL})
	if _, err := client.Transcribe(context.Background(), []byte{1}, "wav", ""); !errors.Is(err, ErrSTTUnavailable) {
		t.Fatalf("expected ErrSTTUnavailable, got %v", err)
	}

	if _, err := client.Transcribe(context.Background(), nil, "wav", ""); !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording, got %v", err)
	}

	disabled := NewWhisperClient(&speech.SpeechConfig{})
	if _, err := disabled.Transcribe(context.Background(), []byte{1}, "wav", ""); !errors.Is(err, ErrSTTDisabled) {
		t.Fatalf("expected ErrSTTDisabled, got %v", err)
	}
}
