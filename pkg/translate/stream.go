package translate

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Framer renders deltas as server-sent events in one public format.
type Framer interface {
	// Text writes one text fragment.
	Text(w io.Writer, text string) error
	// Error writes an error event followed by the terminal marker.
	Error(w io.Writer, msg string) error
	// Done writes the normal terminal events.
	Done(w io.Writer) error
}

// NewFramer returns the framer for format.
func NewFramer(format Format, meta ResponseMeta) Framer {
	if format == FormatAnthropic {
		return &AnthropicStream{Meta: meta}
	}
	return &OpenAIStream{Meta: meta}
}

// OpenAIStream writes chat.completion.chunk events.
type OpenAIStream struct {
	Meta ResponseMeta
}

type openAIChunk struct {
	ID      string              `json:"id"`
	Object  string              `json:"object"`
	Created int64               `json:"created"`
	Model   string              `json:"model"`
	Choices []openAIChunkChoice `json:"choices"`
}

type openAIChunkChoice struct {
	Index int              `json:"index"`
	Delta openAIChunkDelta `json:"delta"`
}

type openAIChunkDelta struct {
	Content string `json:"content"`
}

// Text implements Framer.
func (s *OpenAIStream) Text(w io.Writer, text string) error {
	return writeEvent(w, openAIChunk{
		ID:      s.Meta.ID,
		Object:  "chat.completion.chunk",
		Created: s.Meta.Created,
		Model:   s.Meta.Model,
		Choices: []openAIChunkChoice{{Index: 0, Delta: openAIChunkDelta{Content: text}}},
	})
}

// Error implements Framer.
func (s *OpenAIStream) Error(w io.Writer, msg string) error {
	if err := writeEvent(w, OpenAIError(ErrorTypeServer, msg)); err != nil {
		return err
	}
	return writeDone(w)
}

// Done implements Framer.
func (s *OpenAIStream) Done(w io.Writer) error {
	return writeDone(w)
}

// AnthropicStream writes Messages API stream events.
type AnthropicStream struct {
	Meta ResponseMeta
}

type anthropicDeltaEvent struct {
	Type  string             `json:"type"`
	Index int                `json:"index"`
	Delta anthropicTextDelta `json:"delta"`
}

type anthropicTextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicStopEvent struct {
	Type    string               `json:"type"`
	Message anthropicStopMessage `json:"message"`
}

type anthropicStopMessage struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Role         string           `json:"role"`
	Content      []AnthropicBlock `json:"content"`
	Model        string           `json:"model"`
	StopReason   string           `json:"stop_reason"`
	StopSequence *string          `json:"stop_sequence"`
}

// Text implements Framer.
func (s *AnthropicStream) Text(w io.Writer, text string) error {
	return writeEvent(w, anthropicDeltaEvent{
		Type:  "content_block_delta",
		Index: 0,
		Delta: anthropicTextDelta{Type: "text_delta", Text: text},
	})
}

// Error implements Framer.
func (s *AnthropicStream) Error(w io.Writer, msg string) error {
	if err := writeEvent(w, AnthropicError(ErrorTypeServer, msg)); err != nil {
		return err
	}
	return writeDone(w)
}

// Done implements Framer.
func (s *AnthropicStream) Done(w io.Writer) error {
	err := writeEvent(w, anthropicStopEvent{
		Type: "message_stop",
		Message: anthropicStopMessage{
			ID:         s.Meta.ID,
			Type:       "message",
			Role:       "assistant",
			Content:    []AnthropicBlock{},
			Model:      s.Meta.Model,
			StopReason: StopReasonEndTurn,
		},
	})
	if err != nil {
		return err
	}
	return writeDone(w)
}

// Stream writes one response through a Framer and guarantees that exactly
// one terminal signal is written. Text after the terminal signal is dropped.
type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	framer Framer
	ended  bool
	frames int
}

// NewStream returns a Stream writing to w.
func NewStream(w io.Writer, framer Framer) *Stream {
	return &Stream{w: w, framer: framer}
}

// Text writes a text fragment. Empty fragments are skipped.
func (s *Stream) Text(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || text == "" {
		return nil
	}
	s.frames++
	return s.framer.Text(s.w, text)
}

// Fail ends the stream with an upstream error. It reports whether this call
// wrote the terminal signal.
func (s *Stream) Fail(msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, nil
	}
	s.ended = true
	return true, s.framer.Error(s.w, UpstreamErrorMessage(msg))
}

// Finish ends the stream normally. It reports whether this call wrote the
// terminal signal.
func (s *Stream) Finish() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, nil
	}
	s.ended = true
	return true, s.framer.Done(s.w)
}

// Ended reports whether the terminal signal has been written.
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Frames returns the number of text frames written.
func (s *Stream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// writeEvent writes v as a single "data:" event and flushes.
func writeEvent(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	flush(w)
	return nil
}

// writeDone writes the [DONE] marker and flushes.
func writeDone(w io.Writer) error {
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}
	flush(w)
	return nil
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
