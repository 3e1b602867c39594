package translate

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/encoding/protowire"
)

// Connect envelope flags.
const (
	flagCompressed byte = 0x01
	flagEndStream  byte = 0x02
)

// envelopeHeaderSize is the flag byte plus the big-endian payload length.
const envelopeHeaderSize = 5

// maxFrameSize bounds a single upstream frame, before and after
// decompression.
const maxFrameSize = 16 << 20

// Vendor chat message roles.
const (
	vendorRoleUser      = 1
	vendorRoleAssistant = 2
)

// Field numbers of the vendor chat request.
const (
	fieldMessages       protowire.Number = 2
	fieldInstructions   protowire.Number = 4
	fieldProjectPath    protowire.Number = 5
	fieldModel          protowire.Number = 7
	fieldRequestID      protowire.Number = 9
	fieldSummary        protowire.Number = 11
	fieldConversationID protowire.Number = 15

	fieldMessageContent protowire.Number = 1
	fieldMessageRole    protowire.Number = 2
	fieldMessageID      protowire.Number = 13

	fieldInstructionText protowire.Number = 1

	fieldModelName  protowire.Number = 1
	fieldModelEmpty protowire.Number = 4

	fieldResponseText protowire.Number = 1
)

// DefaultProjectPath is sent as the workspace path of every conversation.
const DefaultProjectPath = "/path/to/project"

// EncodeOptions controls EncodeChatBody.
type EncodeOptions struct {
	// RequestID and ConversationID default to fresh UUIDs.
	RequestID      string
	ConversationID string

	// ProjectPath defaults to DefaultProjectPath.
	ProjectPath string

	// Compress gzips the payload and sets the compressed flag.
	Compress bool

	// NewID generates message ids. Defaults to uuid.NewString.
	NewID func() string
}

// EncodeChatBody builds the vendor chat request for req wrapped in a connect
// envelope. System messages are joined into the instructions field; other
// messages keep their order. Sampling parameters have no vendor field and
// are not sent.
func EncodeChatBody(req *ChatRequest, opts EncodeOptions) ([]byte, error) {
	if req == nil {
		return nil, &TranslationError{Message: "nil request"}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.RequestID == "" {
		opts.RequestID = opts.NewID()
	}
	if opts.ConversationID == "" {
		opts.ConversationID = opts.NewID()
	}
	if opts.ProjectPath == "" {
		opts.ProjectPath = DefaultProjectPath
	}

	var (
		msg          []byte
		instructions []string
	)

	for _, m := range req.Messages {
		if m.Role == "system" {
			instructions = append(instructions, m.Content)
			continue
		}
		role := uint64(vendorRoleUser)
		if m.Role == "assistant" {
			role = vendorRoleAssistant
		}

		var inner []byte
		inner = appendString(inner, fieldMessageContent, m.Content)
		inner = protowire.AppendTag(inner, fieldMessageRole, protowire.VarintType)
		inner = protowire.AppendVarint(inner, role)
		inner = appendString(inner, fieldMessageID, opts.NewID())

		msg = appendBytes(msg, fieldMessages, inner)
	}

	var instr []byte
	instr = appendString(instr, fieldInstructionText, strings.Join(instructions, "\n"))
	msg = appendBytes(msg, fieldInstructions, instr)

	msg = appendString(msg, fieldProjectPath, opts.ProjectPath)

	var model []byte
	model = appendString(model, fieldModelName, req.Model)
	model = appendString(model, fieldModelEmpty, "")
	msg = appendBytes(msg, fieldModel, model)

	msg = appendString(msg, fieldRequestID, opts.RequestID)
	msg = appendString(msg, fieldSummary, "")
	msg = appendString(msg, fieldConversationID, opts.ConversationID)

	return EncodeEnvelope(msg, opts.Compress)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// EncodeEnvelope prefixes payload with a connect envelope header,
// compressing it first when compress is set.
func EncodeEnvelope(payload []byte, compress bool) ([]byte, error) {
	flag := byte(0)
	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		payload = buf.Bytes()
		flag |= flagCompressed
	}

	out := make([]byte, envelopeHeaderSize+len(payload))
	out[0] = flag
	binary.BigEndian.PutUint32(out[1:envelopeHeaderSize], uint32(len(payload)))
	copy(out[envelopeHeaderSize:], payload)
	return out, nil
}

// DecodeFrame converts one connect frame into a delta. The boolean is false
// when the frame carries nothing to emit: an empty text message or an
// end-of-stream trailer without an error.
func DecodeFrame(flag byte, payload []byte) (Delta, bool, error) {
	if flag&flagCompressed != 0 {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return Delta{}, false, translationErrorf(err, "invalid compressed frame")
		}
		defer zr.Close()
		payload, err = io.ReadAll(io.LimitReader(zr, maxFrameSize+1))
		if err != nil {
			return Delta{}, false, translationErrorf(err, "invalid compressed frame")
		}
		if len(payload) > maxFrameSize {
			return Delta{}, false, &TranslationError{Message: fmt.Sprintf("decompressed frame exceeds %d bytes", maxFrameSize)}
		}
	}

	if flag&flagEndStream != 0 {
		msg, ok := decodeTrailer(payload)
		if !ok {
			return Delta{}, false, nil
		}
		return Error(msg), true, nil
	}

	text, err := decodeResponseText(payload)
	if err != nil {
		return Delta{}, false, err
	}
	if text == "" {
		return Delta{}, false, nil
	}
	return Text(text), true, nil
}

// decodeResponseText extracts the text field of a vendor response message.
func decodeResponseText(b []byte) (string, error) {
	var sb strings.Builder
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", translationErrorf(protowire.ParseError(n), "invalid response frame")
		}
		b = b[n:]

		if num == fieldResponseText && typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return "", translationErrorf(protowire.ParseError(m), "invalid response frame")
			}
			sb.Write(v)
			b = b[m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return "", translationErrorf(protowire.ParseError(m), "invalid response frame")
		}
		b = b[m:]
	}
	return sb.String(), nil
}

// trailer is the connect end-of-stream JSON message.
type trailer struct {
	Error json.RawMessage `json:"error"`
}

type trailerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Debug struct {
			Error   string `json:"error"`
			Details struct {
				Title  string `json:"title"`
				Detail string `json:"detail"`
			} `json:"details"`
		} `json:"debug"`
	} `json:"details"`
}

// decodeTrailer returns the error message carried by an end-of-stream
// trailer. A trailer that is empty, not JSON, or has no error member
// carries nothing.
func decodeTrailer(payload []byte) (string, bool) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", false
	}

	var t trailer
	if err := json.Unmarshal(payload, &t); err != nil {
		return "", false
	}
	raw := bytes.TrimSpace(t.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	var te trailerError
	if err := json.Unmarshal(raw, &te); err != nil {
		return string(raw), true
	}
	for _, d := range te.Details {
		if d.Debug.Details.Detail != "" {
			return d.Debug.Details.Detail, true
		}
		if d.Debug.Details.Title != "" {
			return d.Debug.Details.Title, true
		}
	}
	switch {
	case te.Message != "":
		return te.Message, true
	case te.Code != "":
		return te.Code, true
	default:
		return string(raw), true
	}
}

// FrameReader reassembles connect frames from arbitrarily split chunks.
type FrameReader struct {
	buf []byte
}

// NewFrameReader returns an empty FrameReader.
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// Feed appends chunk and decodes every complete frame now available. A
// partial frame stays buffered until the next call.
func (r *FrameReader) Feed(chunk []byte) ([]Delta, error) {
	r.buf = append(r.buf, chunk...)

	var deltas []Delta
	for len(r.buf) >= envelopeHeaderSize {
		flag := r.buf[0]
		size := binary.BigEndian.Uint32(r.buf[1:envelopeHeaderSize])
		if size > maxFrameSize {
			return deltas, &TranslationError{Message: fmt.Sprintf("frame of %d bytes exceeds limit", size)}
		}
		end := envelopeHeaderSize + int(size)
		if len(r.buf) < end {
			break
		}

		d, ok, err := DecodeFrame(flag, r.buf[envelopeHeaderSize:end])
		r.buf = r.buf[end:]
		if err != nil {
			return deltas, err
		}
		if ok {
			deltas = append(deltas, d)
		}
	}

	if len(r.buf) == 0 {
		r.buf = nil
	}
	return deltas, nil
}

// Pending returns the number of buffered bytes of an incomplete frame.
func (r *FrameReader) Pending() int {
	return len(r.buf)
}
