package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/model/speech"
	"github.com/zhouzirui/locus/backend/internal/observe"
)

// Service 语音服务核心业务逻辑
type Service struct {
	config    *speech.SpeechConfig
	ttsClient *GoogleTTSClient
	sttClient *WhisperClient
	metrics   *observe.Metrics
}

// NewService 创建语音服务实例, metrics 可以为 nil
func NewService(config *speech.SpeechConfig, metrics *observe.Metrics) *Service {
	return &Service{
		config:    config,
		ttsClient: NewGoogleTTSClient(config),
		sttClient: NewWhisperClient(config),
		metrics:   metrics,
	}
}

// TTSEnabled 表示是否配置了 TTS 密钥
func (s *Service) TTSEnabled() bool {
	return s.config.TTSAPIKey != ""
}

// STTEnabled 表示是否配置了转写密钥
func (s *Service) STTEnabled() bool {
	return s.config.STTAPIKey != ""
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req.AudioData == nil {
		return nil, ErrEmptyRecording
	}
	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return s.TranscribeBuffer(ctx, req.SessionID, audio, req.Format, req.Language)
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	start := time.Now()
	text, err := s.Transcribe(ctx, audioData, format, language)
	if err != nil {
		return nil, err
	}

	return &speech.ASRResponse{
		SessionID: sessionID,
		Text:      text,
		Duration:  time.Since(start).Milliseconds(),
		CreatedAt: time.Now(),
	}, nil
}

// Transcribe implements Transcriber and records the call latency.
func (s *Service) Transcribe(ctx context.Context, audio []byte, format, language string) (string, error) {
	start := time.Now()
	text, err := s.sttClient.Transcribe(ctx, audio, format, language)
	if !errors.Is(err, ErrEmptyRecording) && !errors.Is(err, ErrSTTDisabled) {
		s.metrics.RecordSTT(ctx, time.Since(start), err)
	}
	return text, err
}

// SynthesizeSpeech 文字转语音. Locale wins over Language; Level slows or
// speeds the configured speaking rate.
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	localeTag := strings.TrimSpace(req.Locale)
	if localeTag == "" {
		localeTag = locale.ResolveLocale(req.Language)
	}

	var opts *SynthesisOptions
	if req.Level != "" {
		if level, err := session.ParseLevel(req.Level); err == nil {
			opts = &SynthesisOptions{SpeakingRate: SpeakingRateForLevel(level, s.config.TTSSpeakingRate)}
		}
	}

	start := time.Now()
	audio, voice, err := s.ttsClient.Synthesize(ctx, req.Text, localeTag, opts)
	if !errors.Is(err, ErrEmptyText) && !errors.Is(err, ErrTTSDisabled) {
		s.metrics.RecordTTS(ctx, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	return &speech.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Locale:    localeTag,
		Voice:     voice,
		Format:    formatForEncoding(s.ttsClient.encoding(opts)),
		Duration:  time.Since(start).Milliseconds(),
		CreatedAt: time.Now(),
	}, nil
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, language, level string) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Language:  language,
		Level:     level,
	})
}

// NewBufferListener 为 WebSocket 会话创建一个基于内存缓冲的监听器
func (s *Service) NewBufferListener(format string, language func() string) (*Listener, *BufferRecorder) {
	recorder := NewBufferRecorder(format)
	return NewListener(recorder, s, language), recorder
}
