package scene

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/pkg/utils"
)

// Handler 场景目录的HTTP处理器
type Handler struct {
	scenes scene.Store
}

// New 创建场景处理器
func New(scenes scene.Store) *Handler {
	return &Handler{scenes: scenes}
}

// RegisterRoutes 注册场景相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/scenes", h.handleListScenes)
	r.Get("/scenes/{sceneID}", h.handleGetScene)
}

// handleListScenes 列出所有场景，包括未解锁的
func (h *Handler) handleListScenes(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scenes.List())
}

func (h *Handler) handleGetScene(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scenes.FindByID(chi.URLParam(r, "sceneID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "scene not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sc)
}
