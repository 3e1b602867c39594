// Cursorgate is an OpenAI- and Anthropic-compatible gateway in front of the
// Cursor chat service.
//
// It accepts /v1/chat/completions and /v1/messages requests, resolves the
// caller's API key to a pooled Cursor session cookie, relays the chat to the
// vendor's streaming endpoint, and answers in the caller's format, streamed
// or not.
//
// Usage:
//
//	# Start the gateway
//	cursorgate run --config config.yaml
//
//	# Inspect and edit the invalid cookie list
//	cursorgate cookies list
//	cursorgate cookies add <cookie>
//	cursorgate cookies remove 0
//
//	# Show version information
//	cursorgate version
package main

func main() {
	Execute()
}
