package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/session"
)

// Profile 是终端客户端的 TOML 配置，覆盖环境变量中的同名设置。
type Profile struct {
	Session ProfileSession `toml:"session"`
	LLM     ProfileLLM     `toml:"llm"`
	Speech  ProfileSpeech  `toml:"speech"`
	Store   ProfileStore   `toml:"store"`
	Voice   ProfileVoice   `toml:"voice"`
}

type ProfileSession struct {
	KnownLanguage  string   `toml:"known_language"`
	TargetLanguage string   `toml:"target_language"`
	Level          string   `toml:"level"`
	Scene          string   `toml:"scene"`
	TurnTimeout    Duration `toml:"turn_timeout"`
}

type ProfileLLM struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	Temperature *float64 `toml:"temperature"`
}

type ProfileSpeech struct {
	Encoding     string   `toml:"encoding"`
	SpeakingRate *float64 `toml:"speaking_rate"`
	Pitch        *float64 `toml:"pitch"`
}

type ProfileStore struct {
	Backend string `toml:"backend"`
	DataDir string `toml:"data_dir"`
}

// ProfileVoice 控制免手动模式的端点检测。
type ProfileVoice struct {
	VADMode   *int     `toml:"vad_mode"`
	Silence   Duration `toml:"silence"`
	MinSpeech Duration `toml:"min_speech"`
}

// Duration 支持 "1.5s" 这样的字符串
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadProfile reads a TOML profile and validates its values.
func LoadProfile(path string) (*Profile, error) {
	path = os.ExpandEnv(path)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("profile not found: %w", err)
	}

	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if p.Session.KnownLanguage != "" && !locale.ValidCode(p.Session.KnownLanguage) {
		return fmt.Errorf("invalid session.known_language %q", p.Session.KnownLanguage)
	}
	if p.Session.TargetLanguage != "" && !locale.ValidCode(p.Session.TargetLanguage) {
		return fmt.Errorf("invalid session.target_language %q", p.Session.TargetLanguage)
	}
	if p.Session.Level != "" {
		if _, err := session.ParseLevel(p.Session.Level); err != nil {
			return fmt.Errorf("invalid session.level: %w", err)
		}
	}
	if p.LLM.Provider != "" && p.LLM.Provider != ProviderOpenAI && p.LLM.Provider != ProviderArk {
		return fmt.Errorf("invalid llm.provider %q", p.LLM.Provider)
	}
	if p.Store.Backend != "" && p.Store.Backend != StoreJSON && p.Store.Backend != StoreSQLite {
		return fmt.Errorf("invalid store.backend %q", p.Store.Backend)
	}
	if p.Voice.VADMode != nil && (*p.Voice.VADMode < 0 || *p.Voice.VADMode > 3) {
		return fmt.Errorf("invalid voice.vad_mode %d", *p.Voice.VADMode)
	}
	return nil
}

// Apply 把 profile 中设置过的字段写入 cfg。
func (p *Profile) Apply(cfg *Config) {
	if p.Session.KnownLanguage != "" {
		cfg.Session.Defaults.KnownLanguage = p.Session.KnownLanguage
	}
	if p.Session.TargetLanguage != "" {
		cfg.Session.Defaults.TargetLanguage = p.Session.TargetLanguage
	}
	if level, err := session.ParseLevel(p.Session.Level); err == nil {
		cfg.Session.Defaults.Level = level
	}
	if p.Session.TurnTimeout.Duration > 0 {
		cfg.Session.TurnTimeout = p.Session.TurnTimeout.Duration
	}

	if p.LLM.Provider != "" {
		cfg.LLM.Provider = p.LLM.Provider
	}
	if p.LLM.Model != "" {
		cfg.LLM.Model = p.LLM.Model
	}
	if p.LLM.Temperature != nil {
		cfg.LLM.Temperature = p.LLM.Temperature
	}

	if p.Speech.Encoding != "" {
		cfg.Speech.TTSEncoding = p.Speech.Encoding
	}
	if p.Speech.SpeakingRate != nil {
		cfg.Speech.TTSSpeakingRate = *p.Speech.SpeakingRate
	}
	if p.Speech.Pitch != nil {
		cfg.Speech.TTSPitch = *p.Speech.Pitch
	}

	if p.Store.Backend != "" {
		cfg.Store.Backend = p.Store.Backend
	}
	if p.Store.DataDir != "" {
		cfg.Store.DataDir = p.Store.DataDir
	}
}
