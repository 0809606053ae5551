package transcript

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/store/transcript"
	"github.com/zhouzirui/locus/backend/pkg/utils"
)

// Handler 已保存聊天记录的HTTP处理器
type Handler struct {
	logs transcript.Store
}

// New 创建聊天记录处理器
func New(logs transcript.Store) *Handler {
	return &Handler{logs: logs}
}

// RegisterRoutes 注册聊天记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chatlogs", h.handleList)
	r.Get("/chatlogs/{logID}", h.handleGet)
	r.Delete("/chatlogs/{logID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	logs, err := h.logs.List(r.Context())
	if err != nil {
		log.Printf("[transcript] list failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list chat logs")
		return
	}
	utils.RespondJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cl, err := h.logs.Get(r.Context(), chi.URLParam(r, "logID"))
	if errors.Is(err, transcript.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "chat log not found")
		return
	}
	if err != nil {
		log.Printf("[transcript] get failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load chat log")
		return
	}
	utils.RespondJSON(w, http.StatusOK, cl)
}

// handleDelete 删除记录。落盘失败时内存中已删除，只记录日志
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.logs.Delete(r.Context(), chi.URLParam(r, "logID"))
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "chat log not found")
		return
	case errors.Is(err, transcript.ErrPersist):
		log.Printf("[transcript] delete not persisted: %v", err)
	case err != nil:
		log.Printf("[transcript] delete failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete chat log")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
