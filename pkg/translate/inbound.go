package translate

import (
	"bytes"
	"encoding/json"
	"strings"
)

// OpenAIRequest is the subset of the OpenAI chat completions request the
// gateway reads.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        json.RawMessage `json:"stop,omitempty"` // string or []string
}

// OpenAIMessage is a chat message whose content is a string or an array of
// content parts.
type OpenAIMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicRequest is the subset of the Anthropic Messages request the
// gateway reads.
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        json.RawMessage    `json:"system,omitempty"` // string or []ContentBlock
	MaxTokens     *int               `json:"max_tokens,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

// AnthropicMessage is a message whose content is a string or an array of
// content blocks.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentPart covers both OpenAI content parts and Anthropic content blocks;
// only text parts are kept.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeOpenAI parses an OpenAI chat completions body.
func DecodeOpenAI(body []byte) (*ChatRequest, error) {
	var in OpenAIRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, translationErrorf(err, "invalid JSON in request body")
	}

	req := &ChatRequest{
		Model:       in.Model,
		Stream:      in.Stream,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
		TopP:        in.TopP,
	}

	for i, m := range in.Messages {
		text, err := FlattenContent(m.Content)
		if err != nil {
			return nil, translationErrorf(err, "messages[%d].content", i)
		}
		req.Messages = append(req.Messages, Message{Role: m.Role, Content: text})
	}

	stop, err := decodeStop(in.Stop)
	if err != nil {
		return nil, translationErrorf(err, "stop must be a string or an array of strings")
	}
	req.StopSequences = stop

	if err := validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeAnthropic parses an Anthropic Messages body. A top-level system
// prompt becomes a leading system message.
func DecodeAnthropic(body []byte) (*ChatRequest, error) {
	var in AnthropicRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, translationErrorf(err, "invalid JSON in request body")
	}

	req := &ChatRequest{
		Model:         in.Model,
		Stream:        in.Stream,
		MaxTokens:     in.MaxTokens,
		Temperature:   in.Temperature,
		TopP:          in.TopP,
		StopSequences: in.StopSequences,
	}

	system, err := FlattenContent(in.System)
	if err != nil {
		return nil, translationErrorf(err, "system")
	}
	if system != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: system})
	}

	for i, m := range in.Messages {
		text, err := FlattenContent(m.Content)
		if err != nil {
			return nil, translationErrorf(err, "messages[%d].content", i)
		}
		req.Messages = append(req.Messages, Message{Role: m.Role, Content: text})
	}

	if err := validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// FlattenContent returns string content as-is, and for an array of parts
// concatenates the text of parts typed "text" in order with no separator.
// Null or absent content is empty.
func FlattenContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String(), nil
	default:
		return "", &TranslationError{Message: "content must be a string or an array of content parts"}
	}
}

func decodeStop(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func validate(req *ChatRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return &TranslationError{Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &TranslationError{Message: "messages must not be empty"}
	}
	for i, m := range req.Messages {
		if m.Role == "" {
			return translationErrorf(nil, "messages[%d].role is required", i)
		}
	}
	return nil
}
