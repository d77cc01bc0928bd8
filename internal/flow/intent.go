package flow

import "strings"

// Intent is the classification of one inbound text message.
type Intent string

const (
	IntentGreeting     Intent = "greeting"
	IntentMediaRequest Intent = "media_request"
	IntentContinuation Intent = "flow_continuation"
	IntentFreeText     Intent = "free_text"
)

// mediaKeyword triggers the welcome media clip wherever it appears in the text.
const mediaKeyword = "media"

var greetingPhrases = map[string]struct{}{
	"hola":          {},
	"buenos días":   {},
	"buenas tardes": {},
	"buenas noches": {},
	"hi":            {},
	"hello":         {},
}

// NormalizeText trims and lower-cases user input before classification or menu lookup.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsGreeting reports whether text is exactly one of the greeting phrases.
func IsGreeting(text string) bool {
	_, ok := greetingPhrases[text]
	return ok
}

// Classify returns the intent of normalized text. The first matching rule wins:
// exact greeting, then "media" substring, then an active flow, then free text.
func Classify(text string, hasActiveFlow bool) Intent {
	switch {
	case IsGreeting(text):
		return IntentGreeting
	case strings.Contains(text, mediaKeyword):
		return IntentMediaRequest
	case hasActiveFlow:
		return IntentContinuation
	default:
		return IntentFreeText
	}
}
