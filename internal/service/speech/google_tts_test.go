package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/locus/backend/internal/model/speech"
)

func newTTSServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body ttsRequestBody)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ttsRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, r, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestGoogleTTSSynthesize 验证请求体与音频解码
func TestGoogleTTSSynthesize(t *testing.T) {
	audio := []byte("ID3-fake-mp3")
	srv := newTTSServer(t, func(w http.ResponseWriter, r *http.Request, body ttsRequestBody) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("unexpected key %q", got)
		}
		if body.Input.Text != "Bonjour!" {
			t.Errorf("unexpected text %q", body.Input.Text)
		}
		if body.Voice.LanguageCode != "fr-FR" || body.Voice.Name != "fr-FR-Chirp3-HD-Kore" {
			t.Errorf("unexpected voice %+v", body.Voice)
		}
		if body.AudioConfig.AudioEncoding != "MP3" || body.AudioConfig.Pitch != 0 || body.AudioConfig.SpeakingRate != 1 {
			t.Errorf("unexpected audio config %+v", body.AudioConfig)
		}
		json.NewEncoder(w).Encode(map[string]string{"audioContent": base64.StdEncoding.EncodeToString(audio)})
	})

	client := NewGoogleTTSClient(&speech.SpeechConfig{TTSAPIKey: "test-key", TTSEndpoint: srv.URL})
	got, voice, err := client.Synthesize(context.Background(), "Bonjour!", "fr-FR", nil)
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(got) != string(audio) {
		t.Fatalf("unexpected audio %q", got)
	}
	if voice != "fr-FR-Chirp3-HD-Kore" {
		t.Fatalf("unexpected voice %q", voice)
	}
}

// TestGoogleTTSFailures 覆盖非 2xx、非法 JSON、空音频和非法 base64
func TestGoogleTTSFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":{}}`},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`},
		{name: "malformed json", status: http.StatusOK, body: `{"audioContent":`},
		{name: "empty audio", status: http.StatusOK, body: `{"audioContent":""}`},
		{name: "invalid base64", status: http.StatusOK, body: `{"audioContent":"***"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			srv := newTTSServer(t, func(w http.ResponseWriter, r *http.Request, body ttsRequestBody) {
				calls++
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			client := NewGoogleTTSClient(&speech.SpeechConfig{TTSAPIKey: "k", TTSEndpoint: srv.URL})
			if _, _, err := client.Synthesize(context.Background(), "Salut", "fr-FR", nil); err == nil {
				t.Fatal("expected error")
			}
			if calls != 1 {
				t.Fatalf("expected exactly one request, got %d", calls)
			}
		})
	}
}

func TestGoogleTTSEmptyTextSkipsNetwork(t *testing.T) {
	client := NewGoogleTTSClient(&speech.SpeechConfig{TTSAPIKey: "k", TTSEndpoint: "http://127.0.0.1:0"})
	if _, _, err := client.Synthesize(context.Background(), "  ", "fr-FR", nil); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}

	disabled := NewGoogleTTSClient(&speech.SpeechConfig{})
	if _, _, err := disabled.Synthesize(context.Background(), "Salut", "fr-FR", nil); !errors.Is(err, ErrTTSDisabled) {
		t.Fatalf("expected ErrTTSDisabled, got %v", err)
	}
}

func TestGoogleTTSOptionsOverride(t *testing.T) {
	srv := newTTSServer(t, func(w http.ResponseWriter, r *http.Request, body ttsRequestBody) {
		if body.AudioConfig.AudioEncoding != "LINEAR16" || body.AudioConfig.SpeakingRate != 0.85 {
			t.Errorf("unexpected audio config %+v", body.AudioConfig)
		}
		json.NewEncoder(w).Encode(map[string]string{"audioContent": base64.StdEncoding.EncodeToString([]byte("RIFF"))})
	})

	client := NewGoogleTTSClient(&speech.SpeechConfig{TTSAPIKey: "k", TTSEndpoint: srv.URL})
	if _, _, err := client.Synthesize(context.Background(), "Hola", "es-ES", &SynthesisOptions{SpeakingRate: 0.85, Encoding: "linear16"}); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
}

func TestSpeakingRateForLevel(t *testing.T) {
	cases := []struct {
		level string
		base  float64
		want  float64
	}{
		{level: "beginner", base: 1.0, want: 0.85},
		{level: "intermediate", base: 1.0, want: 1.0},
		{level: "advanced", base: 1.0, want: 1.1},
		{level: "unknown", base: 0, want: 1.0},
		{level: "advanced", base: 4.0, want: 4.0},
	}

	for _, tc := range cases {
		got := SpeakingRateForLevel(sessionLevel(tc.level), tc.base)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("SpeakingRateForLevel(%s, %v) = %v, want %v", tc.level, tc.base, got, tc.want)
		}
	}
}
