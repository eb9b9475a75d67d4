package gateway

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a JSON response. Used by middlewares and handlers so
// every error surface carries the same shape.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
