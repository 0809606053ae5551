package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/locus/backend/internal/model/speech"
)

const (
	defaultSTTEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	defaultSTTModel    = "whisper-1"
)

var (
	ErrEmptyRecording = errors.New("recording is empty")
	ErrSTTDisabled    = errors.New("stt api key not configured")
	ErrSTTUnavailable = errors.New("transcription request failed")
)

// WhisperClient uploads recordings to an OpenAI-compatible transcription endpoint.
type WhisperClient struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

// NewWhisperClient 创建转写客户端
func NewWhisperClient(config *speech.SpeechConfig) *WhisperClient {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transcribe sends one multipart request and returns the recognised text.
// format is the file extension of audio; language is an optional two-letter hint.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, format, language string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyRecording
	}
	if c.config.STTAPIKey == "" {
		return "", ErrSTTDisabled
	}

	format = normalizeFormat(format)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "recording."+format)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}

	model := c.config.STTModel
	if model == "" {
		model = defaultSTTModel
	}
	if err := mw.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if lang := strings.TrimSpace(language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.config.STTEndpoint
	if endpoint == "" {
		endpoint = defaultSTTEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.config.STTAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSTTUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[stt] transcription failed: status=%d body=%s", resp.StatusCode, truncateForLog(data))
		return "", fmt.Errorf("%w: http %d", ErrSTTUnavailable, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch format {
	case "":
		return "m4a"
	case "pcm":
		return "wav"
	default:
		return format
	}
}
