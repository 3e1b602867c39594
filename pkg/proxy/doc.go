// Package proxy holds the request and response helpers shared by the
// gateway's handlers and middleware.
//
// # Requests
//
// ReadBody reads a request body up to a byte limit and reports an oversize
// body as a *RequestError with status 413. ExtractAPIKey accepts either
// "Authorization: Bearer <key>" or "x-api-key: <key>"; ExtractChecksum reads
// the caller-supplied x-cursor-checksum header.
//
// FormatForPath picks the wire format for a path: /v1/messages and anything
// under it is Anthropic, every other path is OpenAI.
//
// # Errors
//
// HandleError maps an error to a status code and an envelope in the given
// format:
//
//	*RequestError, *translate.TranslationError   400 (or the error's status)
//	*credentials.AuthError                       401
//	*RateLimitError                              429
//	*translate.StreamError                       500
//	*upstream.UpstreamError                      502, or 504 on timeout
//	anything else                                500, message hidden
//
// OpenAI envelopes look like
//
//	{"error": {"message": "...", "type": "invalid_request_error", "code": "..."}}
//
// and Anthropic envelopes like
//
//	{"type": "error", "error": {"type": "authentication_error", "message": "..."}}
//
// WriteError writes the result; WriteJSONResponse and SetSSEHeaders cover the
// success paths.
package proxy
