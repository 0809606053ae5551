package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	modelchat "github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	chat "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
)

type silentReplier struct{}

func (silentReplier) SystemPrompt(scene.Scene, session.Config) string { return "" }

func (silentReplier) StreamReply(context.Context, string, []modelchat.Message) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](1)
	sw.Close()
	return sr, nil
}

func newService() *chat.Service {
	factory := func(sc scene.Scene, settings *session.Settings) (*conversation.Engine, error) {
		return conversation.NewEngine(conversation.Options{Scene: sc, Settings: settings, Replier: silentReplier{}})
	}
	return chat.NewService(scene.NewMemoryStore(scene.Seed()), session.Default(), factory, nil)
}

func TestServiceGetSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "cafe", session.Config{TargetLanguage: "ES"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != sess.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, sess.ID)
	}
	if got.SceneID != "cafe" {
		t.Fatalf("unexpected scene ID: got %s", got.SceneID)
	}
	want := session.Config{KnownLanguage: "en", TargetLanguage: "es", Level: session.Beginner}
	if got.Config != want {
		t.Fatalf("unexpected config: %+v", got.Config)
	}
	if got.LevelDescription == "" || got.LevelDescription != sess.LevelDescription {
		t.Fatalf("unexpected level description %q / %q", got.LevelDescription, sess.LevelDescription)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Engine("missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceDefaultsToCafe(t *testing.T) {
	svc := newService()

	sess, err := svc.CreateSession(context.Background(), "", session.Config{})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if sess.SceneID != scene.DefaultID {
		t.Fatalf("unexpected scene %s", sess.SceneID)
	}
}

func TestServiceRejectsLockedAndUnknownScenes(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "supermarket", session.Config{}); !errors.Is(err, chat.ErrSceneLocked) {
		t.Fatalf("expected ErrSceneLocked, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "moon-base", session.Config{}); !errors.Is(err, chat.ErrSceneNotFound) {
		t.Fatalf("expected ErrSceneNotFound, got %v", err)
	}
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "cafe", session.Config{Level: "expert"}); !errors.Is(err, chat.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "cafe", session.Config{TargetLanguage: "not a code"}); !errors.Is(err, chat.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestServiceUpdateConfig(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "cafe", session.Config{})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	updated, err := svc.UpdateConfig(ctx, sess.ID, session.Config{Level: session.Advanced})
	if err != nil {
		t.Fatalf("UpdateConfig err: %v", err)
	}
	if updated.Config.Level != session.Advanced || updated.Config.TargetLanguage != "fr" {
		t.Fatalf("unexpected config %+v", updated.Config)
	}

	engine, _ := svc.Engine(sess.ID)
	if engine.Settings().Snapshot().Level != session.Advanced {
		t.Fatal("engine settings not updated")
	}

	if updated.LevelDescription != session.Advanced.Description() {
		t.Fatalf("unexpected level description %q", updated.LevelDescription)
	}

	shouted, err := svc.UpdateConfig(ctx, sess.ID, session.Config{Level: "BEGINNER"})
	if err != nil {
		t.Fatalf("UpdateConfig err: %v", err)
	}
	if shouted.Config.Level != session.Beginner || engine.Settings().Snapshot().Level != session.Beginner {
		t.Fatalf("level must be stored in canonical form, got %q", shouted.Config.Level)
	}

	if _, err := svc.UpdateConfig(ctx, sess.ID, session.Config{Level: "guru"}); !errors.Is(err, chat.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestServiceCloseSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, "cafe", session.Config{})
	engine, _ := svc.Engine(sess.ID)

	if err := svc.CloseSession(ctx, sess.ID); err != nil {
		t.Fatalf("CloseSession err: %v", err)
	}
	if _, err := engine.SendMessage(ctx, "Bonjour"); !errors.Is(err, conversation.ErrClosed) {
		t.Fatalf("engine must be closed, got %v", err)
	}
	if err := svc.CloseSession(ctx, sess.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
