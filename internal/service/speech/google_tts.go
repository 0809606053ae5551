package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/speech"
)

const defaultTTSEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

var (
	ErrEmptyText      = errors.New("tts text is empty")
	ErrTTSDisabled    = errors.New("tts api key not configured")
	ErrEmptyAudio     = errors.New("tts response carried no audio")
	ErrTTSUnavailable = errors.New("tts request failed")
)

// GoogleTTSClient 调用 Google Cloud Text-to-Speech REST 接口
type GoogleTTSClient struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

type ttsInput struct {
	Text string `json:"text"`
}

type ttsVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type ttsAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	Pitch         float64 `json:"pitch"`
	SpeakingRate  float64 `json:"speakingRate"`
}

type ttsRequestBody struct {
	Input       ttsInput       `json:"input"`
	Voice       ttsVoice       `json:"voice"`
	AudioConfig ttsAudioConfig `json:"audioConfig"`
}

type ttsResponseBody struct {
	AudioContent string `json:"audioContent"`
}

// SynthesisOptions overrides the configured audio settings for one call.
type SynthesisOptions struct {
	SpeakingRate float64
	Encoding     string
}

// NewGoogleTTSClient 创建 Google TTS 客户端
func NewGoogleTTSClient(config *speech.SpeechConfig) *GoogleTTSClient {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleTTSClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Synthesize sends text to the synthesis endpoint with the voice for localeTag
// and returns the decoded audio bytes. Failures are not retried.
func (c *GoogleTTSClient) Synthesize(ctx context.Context, text, localeTag string, opts *SynthesisOptions) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyText
	}
	if c.config.TTSAPIKey == "" {
		return nil, "", ErrTTSDisabled
	}

	voice := locale.ResolveVoice(localeTag)
	body := ttsRequestBody{
		Input: ttsInput{Text: text},
		Voice: ttsVoice{LanguageCode: localeTag, Name: voice},
		AudioConfig: ttsAudioConfig{
			AudioEncoding: c.encoding(opts),
			Pitch:         c.config.TTSPitch,
			SpeakingRate:  c.speakingRate(opts),
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, voice, fmt.Errorf("encode tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, voice, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, voice, fmt.Errorf("%w: %v", ErrTTSUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, voice, fmt.Errorf("read tts response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[tts] synthesis failed: status=%d voice=%s body=%s", resp.StatusCode, voice, truncateForLog(data))
		return nil, voice, fmt.Errorf("%w: http %d", ErrTTSUnavailable, resp.StatusCode)
	}

	var decoded ttsResponseBody
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, voice, fmt.Errorf("decode tts response: %w", err)
	}
	if decoded.AudioContent == "" {
		return nil, voice, ErrEmptyAudio
	}

	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, voice, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, voice, ErrEmptyAudio
	}

	return audio, voice, nil
}

func (c *GoogleTTSClient) endpointURL() string {
	endpoint := c.config.TTSEndpoint
	if endpoint == "" {
		endpoint = defaultTTSEndpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "key=" + url.QueryEscape(c.config.TTSAPIKey)
}

func (c *GoogleTTSClient) encoding(opts *SynthesisOptions) string {
	if opts != nil && opts.Encoding != "" {
		return strings.ToUpper(opts.Encoding)
	}
	if c.config.TTSEncoding != "" {
		return strings.ToUpper(c.config.TTSEncoding)
	}
	return "MP3"
}

func (c *GoogleTTSClient) speakingRate(opts *SynthesisOptions) float64 {
	if opts != nil && opts.SpeakingRate > 0 {
		return opts.SpeakingRate
	}
	if c.config.TTSSpeakingRate > 0 {
		return c.config.TTSSpeakingRate
	}
	return 1.0
}

// formatForEncoding maps an audio encoding onto the file format reported to clients.
func formatForEncoding(encoding string) string {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return "wav"
	case "OGG_OPUS":
		return "ogg"
	case "MULAW", "ALAW":
		return "wav"
	default:
		return "mp3"
	}
}

func truncateForLog(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
