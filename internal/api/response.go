package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jymapp/jym/internal/models"
)

// writeJSONResponse writes the standard envelope with the given status.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("API: failed to encode response", "error", err)
	}
}
