package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/observe"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSceneNotFound   = errors.New("scene not found")
	ErrSceneLocked     = errors.New("scene is locked")
	ErrInvalidConfig   = errors.New("invalid session configuration")
	ErrUnavailable     = errors.New("conversation engine unavailable")
)

// EngineFactory builds the conversation engine for a new session.
type EngineFactory func(sc scene.Scene, settings *session.Settings) (*conversation.Engine, error)

// Service keeps the live conversation engines keyed by session id.
type Service struct {
	scenes   scene.Store
	defaults session.Config
	factory  EngineFactory
	metrics  *observe.Metrics

	mu       sync.RWMutex
	sessions map[string]chat.Session
	engines  map[string]*conversation.Engine
}

// NewService bootstraps the in-memory session registry.
func NewService(scenes scene.Store, defaults session.Config, factory EngineFactory, metrics *observe.Metrics) *Service {
	return &Service{
		scenes:   scenes,
		defaults: defaults,
		factory:  factory,
		metrics:  metrics,
		sessions: make(map[string]chat.Session),
		engines:  make(map[string]*conversation.Engine),
	}
}

// CreateSession provisions a session on sceneID. Empty fields of cfg fall back
// to the configured defaults.
func (s *Service) CreateSession(ctx context.Context, sceneID string, cfg session.Config) (chat.Session, error) {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" {
		sceneID = scene.DefaultID
	}

	sc, ok := s.scenes.FindByID(sceneID)
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
	}
	if sc.Locked {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrSceneLocked, sceneID)
	}

	merged := s.defaults.Merge(cfg)
	if err := ValidateConfig(merged); err != nil {
		return chat.Session{}, err
	}

	settings := session.NewSettings(merged)
	engine, err := s.factory(sc, settings)
	if err != nil {
		return chat.Session{}, fmt.Errorf("create conversation engine: %w", err)
	}

	sess := chat.Session{
		ID:               uuid.NewString(),
		SceneID:          sc.ID,
		Config:           merged,
		LevelDescription: merged.Level.Description(),
		CreatedAt:        time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.engines[sess.ID] = engine
	s.mu.Unlock()

	s.metrics.SessionOpened(ctx)
	log.Printf("[session] created id=%s scene=%s target=%s level=%s", sess.ID, sc.ID, merged.TargetLanguage, merged.Level)
	return sess, nil
}

// GetSession retrieves a session by identifier with its current settings.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	sess.Config = s.engines[sessionID].Settings().Snapshot()
	sess.LevelDescription = sess.Config.Level.Description()
	return sess, nil
}

// Engine returns the conversation engine bound to a session.
func (s *Service) Engine(sessionID string) (*conversation.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	engine, ok := s.engines[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return engine, nil
}

// UpdateConfig overlays patch on the session settings. The next turn picks
// the new values up.
func (s *Service) UpdateConfig(ctx context.Context, sessionID string, patch session.Config) (chat.Session, error) {
	engine, err := s.Engine(sessionID)
	if err != nil {
		return chat.Session{}, err
	}

	merged := engine.Settings().Snapshot().Merge(patch)
	if err := ValidateConfig(merged); err != nil {
		return chat.Session{}, err
	}
	engine.Settings().Update(merged)

	return s.GetSession(ctx, sessionID)
}

// CloseSession resets the engine and forgets the session.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	engine, ok := s.engines[sessionID]
	delete(s.engines, sessionID)
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	engine.Close()
	s.metrics.SessionClosed(ctx)
	return nil
}

// Close ends every session.
func (s *Service) Close(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.engines))
	for id := range s.engines {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		_ = s.CloseSession(ctx, id)
	}
}

// ValidateConfig checks the language codes and level.
func ValidateConfig(cfg session.Config) error {
	if !locale.ValidCode(cfg.KnownLanguage) {
		return fmt.Errorf("%w: known language %q", ErrInvalidConfig, cfg.KnownLanguage)
	}
	if !locale.ValidCode(cfg.TargetLanguage) {
		return fmt.Errorf("%w: target language %q", ErrInvalidConfig, cfg.TargetLanguage)
	}
	if _, err := session.ParseLevel(string(cfg.Level)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
