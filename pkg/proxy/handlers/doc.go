// Package handlers provides the HTTP handlers of the gateway's public API.
//
//	POST /v1/chat/completions  NewChatHandler      OpenAI format
//	POST /v1/messages          NewMessagesHandler  Anthropic format
//	GET  /v1/models            NewModelsHandler    configured model list
//
// A chat handler checks the caller's API key first, then reads the body
// (bounded by server.max_request_body_size), decodes it into a
// translate.ChatRequest and hands it to the relay with the key and checksum
// header. Requests that fail before the relay get an error envelope in the
// handler's format: 405 for a wrong method, 401 for a missing key (or an
// unknown one when an Authenticator is set), 413 for an oversize body, 400
// for malformed JSON or a missing model or messages. The relay resolves the
// key again to pick the cookie for the call.
package handlers
