package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/locus/backend/internal/config"
	"github.com/zhouzirui/locus/backend/internal/handler"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/observe"
	"github.com/zhouzirui/locus/backend/internal/service/ai"
	"github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	"github.com/zhouzirui/locus/backend/internal/service/speech"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	scenes, err := loadScenes(cfg.Session.ScenesFile)
	if err != nil {
		log.Fatalf("failed to load scenes: %v", err)
	}

	var (
		provider *observe.Provider
		metrics  *observe.Metrics
	)
	if cfg.Metrics.Enabled {
		provider, err = observe.NewPrometheusProvider()
		if err != nil {
			log.Fatalf("failed to initialize metrics: %v", err)
		}
		metrics = provider.Metrics
	}

	// Initialize AI service
	var aiService *ai.Service
	if cfg.LLM.Enabled() {
		chatModel, err := ai.NewChatModel(ctx, cfg.LLM)
		if err == nil {
			aiService, err = ai.NewService(ctx, chatModel)
		}
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 LLM 相关环境变量")
		} else {
			log.Printf("AI service initialized (provider=%s model=%s)", cfg.LLM.Provider, cfg.LLM.Model)
		}
	} else {
		log.Println("LLM 凭证未配置，跳过 AI 功能初始化")
	}

	// Initialize Speech service
	var speechService *speech.Service
	if cfg.Speech.Enabled() {
		speechService = speech.NewService(cfg.Speech.Model(), metrics)
		log.Printf("Speech service initialized (tts=%t stt=%t)", cfg.Speech.TTSEnabled, cfg.Speech.STTEnabled)
	} else {
		log.Println("语音服务凭证未配置，跳过语音功能初始化")
	}

	logs, err := transcript.Open(cfg.Store.Backend, cfg.Store.Path())
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}
	defer logs.Close()

	chatService := chat.NewService(scenes, cfg.Session.Defaults, newEngineFactory(aiService, speechService, metrics, cfg.Session.TurnTimeout), metrics)

	deps := handler.Dependencies{
		Scenes:      scenes,
		Chat:        chatService,
		Speech:      speechService,
		Transcripts: logs,
		Metrics:     metrics,
		MetricsPath: cfg.Metrics.Path,
	}
	if provider != nil {
		deps.MetricsHandler = provider.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Locus backend listening on %s", cfg.Server.Addr)
	if err := runServer(ctx, srv, func(shutdownCtx context.Context) {
		chatService.Close(shutdownCtx)
		if provider != nil {
			if err := provider.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics shutdown: %v", err)
			}
		}
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func loadScenes(path string) (*scene.MemoryStore, error) {
	if path == "" {
		return scene.NewMemoryStore(scene.Seed()), nil
	}
	items, err := scene.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d scenes from %s", len(items), path)
	return scene.NewMemoryStore(items), nil
}

// newEngineFactory 每个会话一个引擎；服务端不播放音频，合成结果通过事件推给客户端
func newEngineFactory(aiService *ai.Service, speechService *speech.Service, metrics *observe.Metrics, turnTimeout time.Duration) chat.EngineFactory {
	return func(sc scene.Scene, settings *session.Settings) (*conversation.Engine, error) {
		if aiService == nil {
			return nil, chat.ErrUnavailable
		}
		opts := conversation.Options{
			Scene:       sc,
			Settings:    settings,
			Replier:     aiService,
			Metrics:     metrics,
			TurnTimeout: turnTimeout,
		}
		if speechService != nil && speechService.TTSEnabled() {
			opts.Synthesizer = speechService
		}
		return conversation.NewEngine(opts)
	}
}

func runServer(ctx context.Context, srv *http.Server, cleanup func(context.Context)) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		cleanup(shutdownCtx)
		log.Println("server stopped")
		return err
	})

	return g.Wait()
}
