package upstream

import (
	"strings"

	"github.com/google/uuid"
)

// Session holds the identity headers shared by the calls made for one
// inbound request.
type Session struct {
	Token     string
	Checksum  string
	ClientKey string
	SessionID string
}

// NewSession creates a Session for token. The checksum is, in order of
// precedence, headerChecksum (the caller's x-cursor-checksum header), the
// configured upstream.checksum, or one generated from the token.
func (c *Client) NewSession(token, headerChecksum string) Session {
	token = strings.TrimSpace(token)

	checksum := strings.TrimSpace(headerChecksum)
	if checksum == "" {
		checksum = c.cfg.Checksum
	}
	if checksum == "" {
		checksum = GenerateChecksum(token, c.now())
	}

	return Session{
		Token:     token,
		Checksum:  checksum,
		ClientKey: uuid.NewString(),
		SessionID: uuid.NewString(),
	}
}
