package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/locus/backend/internal/model/session"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locus.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadProfileApply(t *testing.T) {
	path := writeProfile(t, `
[session]
known_language = "de"
target_language = "es"
level = "Advanced"
scene = "cafe"
turn_timeout = "90s"

[llm]
model = "gpt-4o-mini"
temperature = 0.4

[speech]
encoding = "LINEAR16"
speaking_rate = 0.9

[store]
backend = "sqlite"
data_dir = "/tmp/locus"

[voice]
vad_mode = 3
silence = "800ms"
`)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Session.Scene != "cafe" || p.Voice.Silence.Duration != 800*time.Millisecond || *p.Voice.VADMode != 3 {
		t.Fatalf("unexpected profile %+v", p)
	}

	cfg := &Config{
		Session: SessionConfig{Defaults: session.Default(), TurnTimeout: time.Minute},
		LLM:     LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o"},
		Speech:  SpeechConfig{TTSEncoding: "MP3", TTSSpeakingRate: 1},
		Store:   StoreConfig{Backend: StoreJSON, DataDir: "./data"},
	}
	p.Apply(cfg)

	want := session.Config{KnownLanguage: "de", TargetLanguage: "es", Level: session.Advanced}
	if cfg.Session.Defaults != want {
		t.Fatalf("unexpected defaults %+v", cfg.Session.Defaults)
	}
	if cfg.Session.TurnTimeout != 90*time.Second {
		t.Fatalf("unexpected turn timeout %v", cfg.Session.TurnTimeout)
	}
	if cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.Provider != ProviderOpenAI || *cfg.LLM.Temperature != 0.4 {
		t.Fatalf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.Speech.TTSEncoding != "LINEAR16" || cfg.Speech.TTSSpeakingRate != 0.9 {
		t.Fatalf("unexpected speech %+v", cfg.Speech)
	}
	if cfg.Store.Path() != filepath.Join("/tmp/locus", "chatLogs.db") {
		t.Fatalf("unexpected store path %q", cfg.Store.Path())
	}
}

func TestEmptyProfileKeepsConfig(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "# nothing here\n"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}

	cfg := &Config{Session: SessionConfig{Defaults: session.Default(), TurnTimeout: time.Minute}}
	p.Apply(cfg)
	if cfg.Session.Defaults != session.Default() || cfg.Session.TurnTimeout != time.Minute {
		t.Fatalf("empty profile changed config: %+v", cfg.Session)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	cases := map[string]string{
		"level":    "[session]\nlevel = \"expert\"\n",
		"language": "[session]\ntarget_language = \"??\"\n",
		"backend":  "[store]\nbackend = \"redis\"\n",
		"vad":      "[voice]\nvad_mode = 7\n",
		"duration": "[session]\nturn_timeout = \"soon\"\n",
		"syntax":   "[session\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadProfile(writeProfile(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "profile not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
