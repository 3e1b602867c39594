package proxy

import (
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/cursorgate/pkg/credentials"
	"mercator-hq/cursorgate/pkg/translate"
	"mercator-hq/cursorgate/pkg/upstream"
)

// internalErrorMessage hides unexpected errors from callers.
const internalErrorMessage = "An internal error occurred. Please try again later."

// HandleError maps err to an HTTP status and an error envelope in format.
//
//	status, body := proxy.HandleError(err, translate.FormatAnthropic)
//	proxy.WriteJSONResponse(w, status, body)
func HandleError(err error, format translate.Format) (int, any) {
	status, kind, code, msg := classify(err)
	if format == translate.FormatAnthropic {
		return status, translate.AnthropicError(kind, msg)
	}
	body := translate.OpenAIError(kind, msg)
	body.Error.Code = code
	return status, body
}

// WriteError writes the envelope for err.
func WriteError(w http.ResponseWriter, err error, format translate.Format) {
	status, body := HandleError(err, format)
	if werr := WriteJSONResponse(w, status, body); werr != nil {
		slog.Debug("failed to write error response", "error", werr)
	}
}

func classify(err error) (status int, kind, code, msg string) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		return status, translate.ErrorTypeInvalidRequest, reqErr.Code, reqErr.Message
	}

	var transErr *translate.TranslationError
	if errors.As(err, &transErr) {
		return http.StatusBadRequest, translate.ErrorTypeInvalidRequest, "", transErr.Error()
	}

	var authErr *credentials.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, translate.ErrorTypeAuthentication, CodeInvalidAPIKey, authErr.Error()
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests, translate.ErrorTypeRateLimit, CodeRateLimited, rateErr.Error()
	}

	var streamErr *translate.StreamError
	if errors.As(err, &streamErr) {
		return http.StatusInternalServerError, translate.ErrorTypeServer, CodeUpstreamError,
			translate.UpstreamErrorMessage(streamErr.Message)
	}

	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) {
		msg := translate.UpstreamErrorMessage(upErr.Message)
		if upErr.Kind == upstream.KindTimeout {
			return http.StatusGatewayTimeout, translate.ErrorTypeTimeout, CodeUpstreamTimeout, msg
		}
		return http.StatusBadGateway, translate.ErrorTypeServer, CodeUpstreamError, msg
	}

	return http.StatusInternalServerError, translate.ErrorTypeServer, "", internalErrorMessage
}
