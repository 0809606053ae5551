package speech

import (
	"context"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/locus/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/locus/backend/internal/service/speech"
	"github.com/zhouzirui/locus/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	Transcribe(ctx context.Context, audio []byte, format, language string) (string, error)
	TTSEnabled() bool
	STTEnabled() bool
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
}

// New 创建语音处理器。chatSvc 可以为 nil，此时不提供 WebSocket 与会话相关默认值
func New(speechSvc SpeechService, chatSvc *chatservice.Service) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesizeWithSession)
		speechRouter.Get("/health", h.handleHealth)

		if h.chatSvc != nil {
			NewWebSocketHandler(h.speechSvc, h.chatSvc).RegisterWebSocketRoutes(speechRouter)
		} else {
			speechRouter.Get("/ws/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "speech websocket not available")
			})
		}
	})
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	format := r.FormValue("format")
	if format == "" {
		format = inferAudioFormat(header.Filename)
	}

	asrReq := &speech.ASRRequest{
		SessionID: r.FormValue("sessionId"),
		AudioData: file,
		Format:    format,
		Language:  locale.LanguageOf(r.FormValue("language")),
	}

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), asrReq)
	if err != nil {
		respondSpeechError(w, "speech recognition failed", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, "")
}

// handleSynthesizeWithSession 未指定语言时使用会话的目标语言与水平
func (h *Handler) handleSynthesizeWithSession(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, chi.URLParam(r, "sessionID"))
}

func (h *Handler) processSynthesize(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req speech.TTSRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if sessionID != "" {
		req.SessionID = sessionID
		if !h.applySessionDefaults(r.Context(), &req) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		respondSpeechError(w, "speech synthesis failed", err)
		return
	}

	format := resp.Format
	if format == "" {
		format = "mpeg"
	}
	w.Header().Set("Content-Type", audioContentType(format))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "inline; filename=speech."+resp.Format)
	w.Header().Set("X-Voice-Name", resp.Voice)
	w.Header().Set("X-Voice-Locale", resp.Locale)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		log.Printf("failed to write audio response: %v", err)
	}
}

func (h *Handler) applySessionDefaults(ctx context.Context, req *speech.TTSRequest) bool {
	if h.chatSvc == nil {
		return true
	}
	sess, err := h.chatSvc.GetSession(ctx, req.SessionID)
	if err != nil {
		return false
	}
	if req.Locale == "" && req.Language == "" {
		req.Language = sess.Config.TargetLanguage
	}
	if req.Level == "" {
		req.Level = string(sess.Config.Level)
	}
	return true
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "speech",
		"tts":     h.speechSvc.TTSEnabled(),
		"stt":     h.speechSvc.STTEnabled(),
	})
}

func respondSpeechError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, speechsvc.ErrEmptyText), errors.Is(err, speechsvc.ErrEmptyRecording):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, speechsvc.ErrTTSDisabled), errors.Is(err, speechsvc.ErrSTTDisabled):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("[speech] %s: %v", message, err)
		utils.RespondError(w, http.StatusBadGateway, message)
	}
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".ogg", ".flac", ".mp4", ".mpeg", ".mpga":
		return strings.TrimPrefix(ext, ".")
	default:
		return "m4a"
	}
}

func audioContentType(format string) string {
	switch format {
	case "mp3", "mpeg":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
