package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/cursorgate/pkg/proxy"
)

// modelOwner is reported as the owner of every advertised model.
const modelOwner = "cursor"

// ModelList is the OpenAI /v1/models body.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Model is one entry of ModelList.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelsHandler serves the configured model list.
type ModelsHandler struct {
	list ModelList
}

// NewModelsHandler creates a handler advertising models. created is
// reported as the creation time of every model.
func NewModelsHandler(models []string, created time.Time) *ModelsHandler {
	list := ModelList{Object: "list", Data: make([]Model, 0, len(models))}
	for _, id := range models {
		list.Data = append(list.Data, Model{
			ID:      id,
			Object:  "model",
			Created: created.Unix(),
			OwnedBy: modelOwner,
		})
	}
	return &ModelsHandler{list: list}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		proxy.WriteError(w, &proxy.RequestError{
			Message: "Method " + r.Method + " not allowed. Use GET instead.",
			Code:    "method_not_allowed",
			Status:  http.StatusMethodNotAllowed,
		}, proxy.FormatForPath(r.URL.Path))
		return
	}
	if err := proxy.WriteJSONResponse(w, http.StatusOK, h.list); err != nil {
		slog.ErrorContext(r.Context(), "failed to write models response", "error", err)
	}
}
