package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/soundtrace/eras-api/internal/logging"
)

// writeJSON marshals v and writes it with the given status, logging (but
// not retrying) any encode/write failure.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(v)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("encoding JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Logger().Error().Err(err).Msg("writing JSON response")
	}
}

// errorBody is the JSON shape every error response shares.
type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeErrorWithStage(w http.ResponseWriter, status int, message, stage string) {
	writeJSON(w, status, errorBody{Error: message, Stage: stage})
}
