package cmd

import (
	"context"
	"fmt"

	"github.com/zhouzirui/locus/backend/internal/config"
	"github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/service/ai"
	chatService "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	"github.com/zhouzirui/locus/backend/internal/service/speech"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
)

// runtime 是终端客户端的一次会话：一个引擎加上保存记录用的存储。
type runtime struct {
	cfg     *config.Config
	chat    *chatService.Service
	session chat.Session
	engine  *conversation.Engine
	speech  *speech.Service
	logs    transcript.Store
}

// newRuntime wires the in-process engine. player may be nil for text-only use.
func newRuntime(ctx context.Context, cfg *config.Config, profile *config.Profile, player conversation.Player) (*runtime, error) {
	if !cfg.LLM.Enabled() {
		return nil, fmt.Errorf("LLM is not configured: set OPENAI_API_KEY or the Ark credentials")
	}
	chatModel, err := ai.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	aiService, err := ai.NewService(ctx, chatModel)
	if err != nil {
		return nil, err
	}

	scenes := scene.NewMemoryStore(scene.Seed())
	if cfg.Session.ScenesFile != "" {
		items, err := scene.LoadFile(cfg.Session.ScenesFile)
		if err != nil {
			return nil, err
		}
		scenes = scene.NewMemoryStore(items)
	}

	var speechSvc *speech.Service
	if cfg.Speech.Enabled() {
		speechSvc = speech.NewService(cfg.Speech.Model(), nil)
	}

	factory := func(sc scene.Scene, settings *session.Settings) (*conversation.Engine, error) {
		opts := conversation.Options{
			Scene:       sc,
			Settings:    settings,
			Replier:     aiService,
			TurnTimeout: cfg.Session.TurnTimeout,
		}
		if speechSvc != nil && speechSvc.TTSEnabled() && player != nil {
			opts.Synthesizer = speechSvc
			opts.Player = player
		}
		return conversation.NewEngine(opts)
	}

	logs, err := transcript.Open(cfg.Store.Backend, cfg.Store.Path())
	if err != nil {
		return nil, err
	}

	svc := chatService.NewService(scenes, cfg.Session.Defaults, factory, nil)
	sess, err := svc.CreateSession(ctx, profile.Session.Scene, session.Config{})
	if err != nil {
		logs.Close()
		return nil, err
	}
	engine, err := svc.Engine(sess.ID)
	if err != nil {
		logs.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, chat: svc, session: sess, engine: engine, speech: speechSvc, logs: logs}, nil
}

func (r *runtime) Close(ctx context.Context) {
	r.chat.Close(ctx)
	r.logs.Close()
}

// save stores the current conversation; empty conversations are skipped.
func (r *runtime) save(ctx context.Context, title string) (chat.ChatLog, bool, error) {
	snapshot := r.engine.Snapshot(title)
	if len(snapshot.Messages) == 0 {
		return chat.ChatLog{}, false, nil
	}
	saved, err := r.logs.Add(ctx, snapshot)
	return saved, true, err
}
