package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/locus/backend/internal/handler/chat"
	sceneHandler "github.com/zhouzirui/locus/backend/internal/handler/scene"
	"github.com/zhouzirui/locus/backend/internal/handler/speech"
	"github.com/zhouzirui/locus/backend/internal/handler/stream"
	transcriptHandler "github.com/zhouzirui/locus/backend/internal/handler/transcript"
	middlewarePkg "github.com/zhouzirui/locus/backend/internal/middleware"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/observe"
	chatService "github.com/zhouzirui/locus/backend/internal/service/chat"
	speechService "github.com/zhouzirui/locus/backend/internal/service/speech"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
	"github.com/zhouzirui/locus/backend/pkg/utils"
)

// Dependencies 路由所需的服务。Speech、Metrics 与 MetricsHandler 可以为 nil
type Dependencies struct {
	Scenes         scene.Store
	Chat           *chatService.Service
	Speech         *speechService.Service
	Transcripts    transcript.Store
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(observe.Middleware(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		sceneHandler.New(deps.Scenes).RegisterRoutes(api)
		chat.New(deps.Chat, deps.Transcripts).RegisterRoutes(api)
		stream.New(deps.Chat).RegisterRoutes(api)

		if deps.Transcripts != nil {
			transcriptHandler.New(deps.Transcripts).RegisterRoutes(api)
		}

		// Register speech routes if speech service is available
		if deps.Speech != nil {
			speech.New(deps.Speech, deps.Chat).RegisterRoutes(api)
		}
	})

	return r
}
