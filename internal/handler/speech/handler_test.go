package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	speechmodel "github.com/zhouzirui/locus/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	speechsvc "github.com/zhouzirui/locus/backend/internal/service/speech"
)

type fakeSpeechService struct {
	mu sync.Mutex

	text          string
	transcribeErr error
	synthErr      error

	asrReq    speechmodel.ASRRequest
	asrAudio  []byte
	ttsReq    speechmodel.TTSRequest
	sttFormat string
	sttLang   string
}

func (f *fakeSpeechService) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	audio, _ := io.ReadAll(req.AudioData)
	f.mu.Lock()
	f.asrReq = *req
	f.asrAudio = audio
	f.mu.Unlock()

	text, err := f.Transcribe(ctx, audio, req.Format, req.Language)
	if err != nil {
		return nil, err
	}
	return &speechmodel.ASRResponse{SessionID: req.SessionID, Text: text}, nil
}

func (f *fakeSpeechService) Transcribe(_ context.Context, audio []byte, format, language string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asrAudio = audio
	f.sttFormat = format
	f.sttLang = language
	return f.text, f.transcribeErr
}

func (f *fakeSpeechService) SynthesizeSpeech(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttsReq = *req
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &speechmodel.TTSResponse{
		SessionID: req.SessionID,
		AudioData: []byte("ID3audio"),
		Locale:    "fr-FR",
		Voice:     "fr-FR-Standard-A",
		Format:    "mp3",
	}, nil
}

func (f *fakeSpeechService) TTSEnabled() bool { return true }
func (f *fakeSpeechService) STTEnabled() bool { return true }

type scriptedReplier struct {
	chunks []string
}

func (s scriptedReplier) SystemPrompt(scene.Scene, session.Config) string { return "" }

func (s scriptedReplier) StreamReply(context.Context, string, []chat.Message) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](len(s.chunks))
	for _, c := range s.chunks {
		sw.Send(schema.AssistantMessage(c, nil), nil)
	}
	sw.Close()
	return sr, nil
}

func newChatService(t *testing.T) *chatservice.Service {
	t.Helper()
	factory := func(sc scene.Scene, settings *session.Settings) (*conversation.Engine, error) {
		return conversation.NewEngine(conversation.Options{
			Scene:    sc,
			Settings: settings,
			Replier:  scriptedReplier{chunks: []string{"Bon", "jour", "!"}},
		})
	}
	svc := chatservice.NewService(scene.NewMemoryStore(scene.Seed()), session.Default(), factory, nil)
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc
}

func setupRouter(fake *fakeSpeechService, chatSvc *chatservice.Service) *chi.Mux {
	r := chi.NewRouter()
	New(fake, chatSvc).RegisterRoutes(r)
	return r
}

func multipartAudio(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatalf("CreateFormFile err: %v", err)
		}
		part.Write([]byte("audio-bytes"))
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestTranscribeUploadsAudio(t *testing.T) {
	fake := &fakeSpeechService{text: "Je voudrais un café"}
	r := setupRouter(fake, nil)

	body, contentType := multipartAudio(t, "clip.webm", map[string]string{"language": "fr-FR"})
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rr.Code, rr.Body.String())
	}
	var resp speechmodel.ASRResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Text != "Je voudrais un café" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if fake.asrReq.Format != "webm" || fake.asrReq.Language != "fr" {
		t.Fatalf("unexpected request %+v", fake.asrReq)
	}
	if string(fake.asrAudio) != "audio-bytes" {
		t.Fatalf("unexpected audio %q", fake.asrAudio)
	}
}

func TestTranscribeErrors(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		err      error
		code     int
	}{
		{"missing audio", "", nil, http.StatusBadRequest},
		{"stt disabled", "a.m4a", speechsvc.ErrSTTDisabled, http.StatusServiceUnavailable},
		{"empty recording", "a.m4a", speechsvc.ErrEmptyRecording, http.StatusBadRequest},
		{"upstream failure", "a.m4a", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(&fakeSpeechService{transcribeErr: tc.err}, nil)
			body, contentType := multipartAudio(t, tc.filename, nil)
			req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
			req.Header.Set("Content-Type", contentType)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
		})
	}
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	fake := &fakeSpeechService{}
	r := setupRouter(fake, nil)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"Bonjour","locale":"fr-CA"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Body.String() != "ID3audio" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if fake.ttsReq.Locale != "fr-CA" {
		t.Fatalf("locale not forwarded: %+v", fake.ttsReq)
	}
}

func TestSynthesizeValidation(t *testing.T) {
	r := setupRouter(&fakeSpeechService{}, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"  "}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	r = setupRouter(&fakeSpeechService{synthErr: speechsvc.ErrTTSUnavailable}, nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"Hola"}`)))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestSynthesizeWithSessionUsesSessionLanguage(t *testing.T) {
	fake := &fakeSpeechService{}
	chatSvc := newChatService(t)
	sess, err := chatSvc.CreateSession(context.Background(), "cafe", session.Config{TargetLanguage: "de", Level: session.Advanced})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	r := setupRouter(fake, chatSvc)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/speech/synthesize/"+sess.ID, bytes.NewBufferString(`{"text":"Guten Tag"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if fake.ttsReq.Language != "de" || fake.ttsReq.Level != "advanced" || fake.ttsReq.SessionID != sess.ID {
		t.Fatalf("session defaults not applied: %+v", fake.ttsReq)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/speech/synthesize/missing", bytes.NewBufferString(`{"text":"Guten Tag"}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealthReportsGateways(t *testing.T) {
	r := setupRouter(&fakeSpeechService{}, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/speech/health", nil))

	var body map[string]any
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "healthy" || body["tts"] != true || body["stt"] != true {
		t.Fatalf("unexpected health %v", body)
	}
}

func TestWebSocketFallbackWhenUnavailable(t *testing.T) {
	r := setupRouter(&fakeSpeechService{}, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/speech/ws/abc", nil))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 status, got %d", rr.Code)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{
		"a.MP3":    "mp3",
		"b.wav":    "wav",
		"c.webm":   "webm",
		"recorded": "m4a",
	}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Fatalf("inferAudioFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
