package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Level is the learner's self-reported proficiency.
type Level string

const (
	Beginner     Level = "beginner"
	Intermediate Level = "intermediate"
	Advanced     Level = "advanced"
)

var ErrInvalidLevel = errors.New("invalid language level")

// ParseLevel accepts the level names case-insensitively.
func ParseLevel(raw string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(raw))) {
	case Beginner:
		return Beginner, nil
	case Intermediate:
		return Intermediate, nil
	case Advanced:
		return Advanced, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
	}
}

// Description explains the level the way the level picker presents it.
func (l Level) Description() string {
	switch l {
	case Beginner:
		return "You know basic words and phrases but have limited conversation skills."
	case Intermediate:
		return "You can hold conversations and understand common phrases."
	case Advanced:
		return "You have strong fluency and understand complex language structures."
	default:
		return ""
	}
}

// Config is the per-session language setup.
type Config struct {
	KnownLanguage  string `json:"knownLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	Level          Level  `json:"languageLevel"`
}

// Default mirrors the values a fresh install starts with.
func Default() Config {
	return Config{KnownLanguage: "en", TargetLanguage: "fr", Level: Beginner}
}

// Merge overlays the non-empty fields of patch onto c. Codes are lower-cased
// and a recognised level is stored in its canonical form.
func (c Config) Merge(patch Config) Config {
	if strings.TrimSpace(patch.KnownLanguage) != "" {
		c.KnownLanguage = strings.ToLower(strings.TrimSpace(patch.KnownLanguage))
	}
	if strings.TrimSpace(patch.TargetLanguage) != "" {
		c.TargetLanguage = strings.ToLower(strings.TrimSpace(patch.TargetLanguage))
	}
	if strings.TrimSpace(string(patch.Level)) != "" {
		// 无法识别的值原样保留，交给校验拒绝
		if level, err := ParseLevel(string(patch.Level)); err == nil {
			c.Level = level
		} else {
			c.Level = patch.Level
		}
	}
	return c
}

// Settings holds a Config that the UI mutates while an engine reads it. The
// engine receives the pointer at construction and snapshots it per turn.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSettings returns Settings initialised with cfg.
func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update replaces the configuration.
func (s *Settings) Update(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}
