package speech

import "github.com/zhouzirui/locus/backend/internal/model/session"

var levelRateFactor = map[session.Level]float64{
	session.Beginner:     0.85,
	session.Intermediate: 1.0,
	session.Advanced:     1.1,
}

// SpeakingRateForLevel scales base so beginners hear slower speech.
// The result is clamped to the range the synthesis API accepts.
func SpeakingRateForLevel(level session.Level, base float64) float64 {
	if base <= 0 {
		base = 1.0
	}
	factor, ok := levelRateFactor[level]
	if !ok {
		factor = 1.0
	}

	rate := base * factor
	if rate < 0.25 {
		rate = 0.25
	}
	if rate > 4.0 {
		rate = 4.0
	}
	return rate
}
