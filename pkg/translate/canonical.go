package translate

import "fmt"

// Format identifies a public wire format.
type Format int

const (
	// FormatOpenAI is the OpenAI chat completions format.
	FormatOpenAI Format = iota
	// FormatAnthropic is the Anthropic Messages format.
	FormatAnthropic
)

// String returns the format name used in logs and metric labels.
func (f Format) String() string {
	switch f {
	case FormatOpenAI:
		return "openai"
	case FormatAnthropic:
		return "anthropic"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Message is one canonical chat message with flattened text content.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is the format-neutral request built once per inbound call.
// It is not modified after decoding.
type ChatRequest struct {
	Model         string
	Messages      []Message
	Stream        bool
	MaxTokens     *int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
}

// DeltaKind tags a Delta.
type DeltaKind int

const (
	// TextDelta carries a text fragment.
	TextDelta DeltaKind = iota
	// ErrorDelta carries an upstream error signal.
	ErrorDelta
)

// Delta is one decoded unit of upstream output. Its kind is fixed at decode
// time; consumers switch on Kind and never re-inspect the payload.
type Delta struct {
	Kind         DeltaKind
	Text         string
	ErrorMessage string
}

// Text returns a text delta.
func Text(s string) Delta {
	return Delta{Kind: TextDelta, Text: s}
}

// Error returns an error delta.
func Error(msg string) Delta {
	return Delta{Kind: ErrorDelta, ErrorMessage: msg}
}
