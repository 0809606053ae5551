package stream

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/model/chat"
	chatService "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler pushes conversation engine events to the browser via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc, heartbeat: heartbeatInterval}
}

// RegisterRoutes registers the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// snapshotEvent is the first event of every stream so a client that connects
// mid-turn starts from the current state.
type snapshotEvent struct {
	Messages  []chat.Message `json:"messages"`
	Streaming bool           `json:"streaming"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	engine, err := h.chatSvc.Engine(sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 先订阅再取快照，避免两者之间的事件丢失
	events, cancel := engine.Subscribe()
	defer cancel()

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[stream] opened session=%s", sessionID)
	defer log.Printf("[stream] closed session=%s", sessionID)

	if err := sse.Event("snapshot", snapshotEvent{Messages: engine.Messages(), Streaming: engine.Streaming()}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				sse.Event("closed", map[string]string{"sessionId": sessionID})
				return
			}
			if err := sse.Event(string(ev.Type), ev); err != nil {
				log.Printf("[stream] write failed session=%s: %v", sessionID, err)
				return
			}
		case <-ticker.C:
			if err := sse.Comment("heartbeat"); err != nil {
				return
			}
		}
	}
}
