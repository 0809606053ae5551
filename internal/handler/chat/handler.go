package chat

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/model/session"
	chatService "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
	"github.com/zhouzirui/locus/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logs    transcript.Store
}

// New 创建聊天处理器。logs 为 nil 时保存接口返回 503
func New(chatSvc *chatService.Service, logs transcript.Store) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logs:    logs,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.handleGetSession)
		sr.Delete("/", h.handleDeleteSession)
		sr.Put("/config", h.handleUpdateConfig)
		sr.Get("/messages", h.handleListMessages)
		sr.Post("/messages", h.handleSendMessage)
		sr.Post("/reset", h.handleReset)
		sr.Post("/save", h.handleSave)
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SceneID string `json:"sceneId"`
		session.Config
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.chatSvc.CreateSession(r.Context(), payload.SceneID, payload.Config)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateConfig 更新语言设置，下一轮回复生效
func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch session.Config
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.chatSvc.UpdateConfig(r.Context(), chi.URLParam(r, "sessionID"), patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	engine, err := h.chatSvc.Engine(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":  engine.Messages(),
		"streaming": engine.Streaming(),
	})
}

// handleSendMessage 提交用户输入，回复通过 /stream 推送
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engine, err := h.chatSvc.Engine(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	turn, err := engine.SendMessage(r.Context(), payload.Content)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		utils.RespondIgnored(w, "empty")
	case errors.Is(err, conversation.ErrDuplicateInput):
		utils.RespondIgnored(w, "duplicate")
	case err != nil:
		respondServiceError(w, err)
	default:
		utils.RespondJSON(w, http.StatusAccepted, turn)
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	engine, err := h.chatSvc.Engine(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	engine.ResetChat()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleSave 把当前对话保存为聊天记录。reset=true 时保存后清空对话
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "transcript store unavailable")
		return
	}

	var payload struct {
		Title string `json:"title"`
		Reset bool   `json:"reset"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	engine, err := h.chatSvc.Engine(sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	saved, err := h.logs.Add(r.Context(), engine.Snapshot(payload.Title))
	if err != nil {
		if !errors.Is(err, transcript.ErrPersist) {
			log.Printf("[chat] save session=%s failed: %v", sessionID, err)
			utils.RespondError(w, http.StatusInternalServerError, "failed to save chat log")
			return
		}
		// 内存中已保存，落盘失败仅记录日志
		log.Printf("[chat] chat log %s kept in memory only: %v", saved.ID, err)
	}

	if payload.Reset {
		engine.ResetChat()
	}
	utils.RespondJSON(w, http.StatusCreated, saved)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, conversation.ErrClosed):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, chatService.ErrSceneNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrSceneLocked):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chatService.ErrInvalidConfig):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, conversation.ErrTurnInProgress):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[chat] unexpected error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
