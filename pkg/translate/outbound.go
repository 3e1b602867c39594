package translate

import (
	"errors"
	"regexp"
	"strings"
)

// Error types used in response envelopes.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeServer         = "server_error"
	ErrorTypeTimeout        = "timeout_error"
)

// StopReasonEndTurn is the only stop reason the vendor stream can express.
const StopReasonEndTurn = "end_turn"

// ResponseMeta identifies one response. Batch translation is a pure function
// of the deltas and the meta, so fixing the meta fixes the output bytes.
type ResponseMeta struct {
	ID      string
	Model   string
	Created int64
}

// StreamError is returned by Collect when the upstream stream carried an
// error signal.
type StreamError struct {
	Message string
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return "upstream stream error: " + e.Message
}

// Collect concatenates the text deltas in order. The first error delta
// aborts collection and is returned as a *StreamError.
func Collect(deltas []Delta) (string, error) {
	var sb strings.Builder
	for _, d := range deltas {
		switch d.Kind {
		case TextDelta:
			sb.WriteString(d.Text)
		case ErrorDelta:
			return "", &StreamError{Message: d.ErrorMessage}
		}
	}
	return sb.String(), nil
}

var (
	endUserPattern = regexp.MustCompile(`(?s)^.*<\|END_USER\|>`)
	leadingPattern = regexp.MustCompile(`^\n[a-zA-Z]?`)
)

// CleanText strips the prompt echo the vendor prepends to batch output:
// everything through the last <|END_USER|> marker, then a single leading
// newline with an optional letter. The result is trimmed.
func CleanText(s string) string {
	s = endUserPattern.ReplaceAllString(s, "")
	s = leadingPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// UpstreamErrorMessage renders an upstream failure the way deployed clients
// expect to see it.
func UpstreamErrorMessage(msg string) string {
	return "⚠️ 请求失败 ⚠️\n\n错误：" + msg
}

// ErrorMessage returns the caller-facing text for err, unwrapping a
// StreamError to the vendor's own message.
func ErrorMessage(err error) string {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// OpenAICompletion is the OpenAI batch response body.
type OpenAICompletion struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

// OpenAIChoice is one choice of a batch response.
type OpenAIChoice struct {
	Index        int                `json:"index"`
	Message      OpenAIReplyMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

// OpenAIReplyMessage is the assistant message of a batch response.
type OpenAIReplyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIUsage is always zero; the vendor stream reports no token counts.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIResponse builds the batch body for text.
func OpenAIResponse(meta ResponseMeta, text string) *OpenAICompletion {
	return &OpenAICompletion{
		ID:      meta.ID,
		Object:  "chat.completion",
		Created: meta.Created,
		Model:   meta.Model,
		Choices: []OpenAIChoice{{
			Index:        0,
			Message:      OpenAIReplyMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	}
}

// AnthropicMessageResponse is the Anthropic batch response body.
type AnthropicMessageResponse struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Role         string           `json:"role"`
	Content      []AnthropicBlock `json:"content"`
	Model        string           `json:"model"`
	StopReason   string           `json:"stop_reason"`
	StopSequence *string          `json:"stop_sequence"`
	Usage        AnthropicUsage   `json:"usage"`
}

// AnthropicBlock is a text content block.
type AnthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage is always zero; the vendor stream reports no token counts.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicResponse builds the batch body for text.
func AnthropicResponse(meta ResponseMeta, text string) *AnthropicMessageResponse {
	return &AnthropicMessageResponse{
		ID:         meta.ID,
		Type:       "message",
		Role:       "assistant",
		Content:    []AnthropicBlock{{Type: "text", Text: text}},
		Model:      meta.Model,
		StopReason: StopReasonEndTurn,
	}
}

// OpenAIErrorBody is the OpenAI error envelope.
type OpenAIErrorBody struct {
	Error OpenAIErrorDetail `json:"error"`
}

// OpenAIErrorDetail describes an OpenAI-format error.
type OpenAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// OpenAIError builds an OpenAI error envelope.
func OpenAIError(kind, msg string) *OpenAIErrorBody {
	return &OpenAIErrorBody{Error: OpenAIErrorDetail{Message: msg, Type: kind}}
}

// AnthropicErrorBody is the Anthropic error envelope. Type is empty for
// authentication failures, which deployed clients expect without it.
type AnthropicErrorBody struct {
	Type  string               `json:"type,omitempty"`
	Error AnthropicErrorDetail `json:"error"`
}

// AnthropicErrorDetail describes an Anthropic-format error.
type AnthropicErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicError builds an Anthropic error envelope.
func AnthropicError(kind, msg string) *AnthropicErrorBody {
	body := &AnthropicErrorBody{Error: AnthropicErrorDetail{Type: kind, Message: msg}}
	if kind != ErrorTypeAuthentication {
		body.Type = "error"
	}
	return body
}

// ErrorBody builds the error envelope for format.
func ErrorBody(format Format, kind, msg string) any {
	if format == FormatAnthropic {
		return AnthropicError(kind, msg)
	}
	return OpenAIError(kind, msg)
}

// ResponseBody builds the batch body for format.
func ResponseBody(format Format, meta ResponseMeta, text string) any {
	if format == FormatAnthropic {
		return AnthropicResponse(meta, text)
	}
	return OpenAIResponse(meta, text)
}
