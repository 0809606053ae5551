package cmd

import (
	"github.com/zhouzirui/locus/backend/internal/audio"
	"github.com/zhouzirui/locus/backend/internal/config"
)

// endpointConfig overlays the profile's [voice] table on the defaults.
func endpointConfig(v config.ProfileVoice) audio.EndpointConfig {
	cfg := audio.DefaultEndpointConfig()
	if v.VADMode != nil {
		cfg.Mode = *v.VADMode
	}
	if v.Silence.Duration > 0 {
		cfg.Silence = v.Silence.Duration
	}
	if v.MinSpeech.Duration > 0 {
		cfg.MinSpeech = v.MinSpeech.Duration
	}
	return cfg
}
