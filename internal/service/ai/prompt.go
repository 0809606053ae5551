package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
)

// PromptBuilder renders the system prompt for a scene persona.
type PromptBuilder struct {
	levelRules   []string
	teachingRule []string
}

// NewPromptBuilder returns a builder with the default teaching rules.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		levelRules: []string{
			"For beginners: Use simple phrases, speak slowly, and provide gentle corrections. Use vocabulary related to everyday situations.",
			"For intermediate learners: Introduce more complex grammatical structures and vocabulary. Correct errors thoughtfully without overwhelming.",
			"For advanced learners: Have natural, flowing conversations. Use idioms, cultural references, and challenge them appropriately.",
		},
		teachingRule: []string{
			"Be conversational and responsive",
			"Ask follow-up questions to keep the conversation flowing",
			"When correcting, highlight the error subtly and demonstrate the correct form",
			"Occasionally share brief cultural insights related to language usage",
			"Keep responses concise (under 75 words) since this is a spoken interface",
		},
	}
}

// BuildSystemPrompt renders the prompt for sc with the learner settings in cfg.
// Language names come from the English display names of the codes.
func (pb *PromptBuilder) BuildSystemPrompt(sc scene.Scene, cfg session.Config) string {
	knownName := locale.LanguageName(cfg.KnownLanguage)
	if knownName == "" {
		knownName = "their native language"
	}
	targetName := locale.LanguageName(locale.LanguageOf(cfg.TargetLanguage))
	if targetName == "" {
		targetName = "the target language"
	}

	persona := sc.PersonaName
	if persona == "" {
		persona = "Locus"
	}
	role := sc.Role
	if role == "" {
		role = "barista"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your name is %s, a friendly and encouraging %s in a language learning environment specializing in %s.\n", persona, role, targetName)
	if sc.Personality != "" {
		fmt.Fprintf(&b, "Your personality is %s.\n", sc.Personality)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "The user is speaking to you in %s to practice their %s with relevant vocabulary as well as casual small talk.\n", sc.Setting, targetName)
	fmt.Fprintf(&b, "Their native language is %s.\n", knownName)
	fmt.Fprintf(&b, "Their proficiency level is %s.\n\n", cfg.Level)

	if len(sc.Focus) > 0 {
		fmt.Fprintf(&b, "Help users practice with %s. ", joinFocus(sc.Focus))
	}
	b.WriteString("Make sure to be friendly and gently correct users if they make a mistake.")
	if sc.Opening != "" {
		b.WriteString(" ")
		b.WriteString(sc.Opening)
	}
	b.WriteString("\n\nBased on their level:\n- ")
	b.WriteString(strings.Join(pb.levelRules, "\n- "))
	b.WriteString("\n\nYour teaching style:\n- ")
	b.WriteString(strings.Join(pb.teachingRule, "\n- "))
	fmt.Fprintf(&b, "\n\nIMPORTANT: Always respond in %s. Only use %s if the user seems genuinely confused. No emojis: Do not use any emojis or decorative characters.", targetName, knownNameOrEnglish(knownName))

	return b.String()
}

func knownNameOrEnglish(name string) string {
	if name == "their native language" {
		return "English"
	}
	return name
}

// joinFocus renders "a, b, and c".
func joinFocus(items []string) string {
	switch len(items) {
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
