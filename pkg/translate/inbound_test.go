package translate

import (
	"errors"
	"testing"
)

func TestDecodeOpenAI(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantMsgs []Message
		wantStop []string
		wantErr  bool
	}{
		{
			name:     "string content",
			body:     `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`,
			wantMsgs: []Message{{Role: "user", Content: "hello"}},
		},
		{
			name: "array content keeps text parts only",
			body: `{"model":"gpt-4o","messages":[{"role":"user","content":[
				{"type":"text","text":"a"},
				{"type":"image_url","image_url":{"url":"http://x"}},
				{"type":"text","text":"b"}]}]}`,
			wantMsgs: []Message{{Role: "user", Content: "ab"}},
		},
		{
			name:     "stop as string",
			body:     `{"model":"m","messages":[{"role":"user","content":"x"}],"stop":"END"}`,
			wantMsgs: []Message{{Role: "user", Content: "x"}},
			wantStop: []string{"END"},
		},
		{
			name:     "stop as array",
			body:     `{"model":"m","messages":[{"role":"user","content":"x"}],"stop":["a","b"]}`,
			wantMsgs: []Message{{Role: "user", Content: "x"}},
			wantStop: []string{"a", "b"},
		},
		{
			name:     "null content",
			body:     `{"model":"m","messages":[{"role":"assistant","content":null}]}`,
			wantMsgs: []Message{{Role: "assistant", Content: ""}},
		},
		{
			name:    "malformed json",
			body:    `{"model":`,
			wantErr: true,
		},
		{
			name:    "missing model",
			body:    `{"messages":[{"role":"user","content":"x"}]}`,
			wantErr: true,
		},
		{
			name:    "empty messages",
			body:    `{"model":"m","messages":[]}`,
			wantErr: true,
		},
		{
			name:    "numeric content",
			body:    `{"model":"m","messages":[{"role":"user","content":42}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeOpenAI([]byte(tt.body))
			if tt.wantErr {
				var te *TranslationError
				if !errors.As(err, &te) {
					t.Fatalf("DecodeOpenAI() error = %v, want *TranslationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeOpenAI() error = %v", err)
			}
			assertMessages(t, req.Messages, tt.wantMsgs)
			assertStrings(t, req.StopSequences, tt.wantStop)
		})
	}
}

func TestDecodeOpenAI_CopiesSampling(t *testing.T) {
	req, err := DecodeOpenAI([]byte(`{"model":"m","stream":true,"max_tokens":64,"temperature":0.5,"top_p":0.9,
		"messages":[{"role":"user","content":"x"}]}`))
	if err != nil {
		t.Fatalf("DecodeOpenAI() error = %v", err)
	}
	if !req.Stream {
		t.Error("Stream = false, want true")
	}
	if req.MaxTokens == nil || *req.MaxTokens != 64 {
		t.Errorf("MaxTokens = %v, want 64", req.MaxTokens)
	}
	if req.Temperature == nil || *req.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", req.Temperature)
	}
	if req.TopP == nil || *req.TopP != 0.9 {
		t.Errorf("TopP = %v, want 0.9", req.TopP)
	}
}

func TestDecodeAnthropic(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantMsgs []Message
		wantErr  bool
	}{
		{
			name: "system string becomes leading message",
			body: `{"model":"claude-3.5-sonnet","system":"be brief","max_tokens":100,
				"messages":[{"role":"user","content":"hi"}]}`,
			wantMsgs: []Message{
				{Role: "system", Content: "be brief"},
				{Role: "user", Content: "hi"},
			},
		},
		{
			name: "system blocks and content blocks",
			body: `{"model":"m","system":[{"type":"text","text":"s1"},{"type":"text","text":"s2"}],
				"messages":[{"role":"user","content":[{"type":"text","text":"q"},{"type":"image","source":{}}]},
				{"role":"assistant","content":"a"}]}`,
			wantMsgs: []Message{
				{Role: "system", Content: "s1s2"},
				{Role: "user", Content: "q"},
				{Role: "assistant", Content: "a"},
			},
		},
		{
			name:     "no system",
			body:     `{"model":"m","messages":[{"role":"user","content":"hi"}]}`,
			wantMsgs: []Message{{Role: "user", Content: "hi"}},
		},
		{
			name:    "missing model",
			body:    `{"messages":[{"role":"user","content":"hi"}]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `hello`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeAnthropic([]byte(tt.body))
			if tt.wantErr {
				var te *TranslationError
				if !errors.As(err, &te) {
					t.Fatalf("DecodeAnthropic() error = %v, want *TranslationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeAnthropic() error = %v", err)
			}
			assertMessages(t, req.Messages, tt.wantMsgs)
		})
	}
}

func TestDecodeAnthropic_StopSequences(t *testing.T) {
	req, err := DecodeAnthropic([]byte(`{"model":"m","max_tokens":10,"stop_sequences":["\n\nHuman:"],
		"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("DecodeAnthropic() error = %v", err)
	}
	assertStrings(t, req.StopSequences, []string{"\n\nHuman:"})
	if req.MaxTokens == nil || *req.MaxTokens != 10 {
		t.Errorf("MaxTokens = %v, want 10", req.MaxTokens)
	}
}

func assertMessages(t *testing.T, got, want []Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func assertStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
