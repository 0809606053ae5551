// Package locale resolves two-letter language codes into the locale tags and
// synthesis voices used by the speech gateways.
package locale

import (
	"log"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// VoiceSuffix is appended to a locale to name the synthesis voice.
const VoiceSuffix = "-Chirp3-HD-Kore"

var preferredLocales = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
	"es": "es-ES",
	"de": "de-DE",
	"ja": "ja-JP",
	"ta": "ta-IN",
	"zh": "cmn-CN",
	"ko": "ko-KR",
	"vi": "vi-VN",
	"ar": "ar-XA",
	"gu": "gu-IN",
	"hi": "hi-IN",
	"mr": "mr-IN",
	"pt": "pt-BR",
	"te": "te-IN",
}

var defaultVoices = map[string]string{
	"es-ES":  "es-ES" + VoiceSuffix,
	"fr-FR":  "fr-FR" + VoiceSuffix,
	"ja-JP":  "ja-JP" + VoiceSuffix,
	"en-US":  "en-US" + VoiceSuffix,
	"ta-IN":  "ta-IN" + VoiceSuffix,
	"cmn-CN": "cmn-CN" + VoiceSuffix,
	"ko-KR":  "ko-KR" + VoiceSuffix,
	"vi-VN":  "vi-VN" + VoiceSuffix,
	"ar-XA":  "ar-XA" + VoiceSuffix,
	"gu-IN":  "gu-IN" + VoiceSuffix,
	"hi-IN":  "hi-IN" + VoiceSuffix,
	"mr-IN":  "mr-IN" + VoiceSuffix,
	"pt-BR":  "pt-BR" + VoiceSuffix,
	"te-IN":  "te-IN" + VoiceSuffix,
}

// ResolveLocale maps a two-letter language code to the locale tag used for
// recognition and synthesis. Unknown codes become "<code>-<CODE>".
func ResolveLocale(code string) string {
	code = strings.TrimSpace(code)
	if tag, ok := preferredLocales[strings.ToLower(code)]; ok {
		return tag
	}
	fallback := code + "-" + strings.ToUpper(code)
	log.Printf("[locale] fallback locale used: %s", fallback)
	return fallback
}

// ResolveVoice picks the synthesis voice for a locale tag. Locales outside the
// table are normalised to lower-case language and upper-case region.
func ResolveVoice(localeTag string) string {
	localeTag = strings.TrimSpace(localeTag)
	if voice, ok := defaultVoices[localeTag]; ok {
		return voice
	}

	parts := strings.Split(localeTag, "-")
	lang := strings.ToLower(parts[0])
	region := strings.ToUpper(parts[len(parts)-1])
	return lang + "-" + region + VoiceSuffix
}

// LanguageOf returns the language subtag of a locale tag.
func LanguageOf(localeTag string) string {
	lang, _, _ := strings.Cut(strings.TrimSpace(localeTag), "-")
	return strings.ToLower(lang)
}

// ValidCode reports whether code is a known language subtag.
func ValidCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	_, err := language.Parse(code)
	return err == nil
}

// LanguageName returns the English display name for a language code, or ""
// when the code is not recognised.
func LanguageName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	return display.Languages(language.English).Name(tag)
}
