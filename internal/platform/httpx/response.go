package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON encodes payload with the given status. Encoding failures after the header is sent
// cannot be reported to the client and are dropped.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
