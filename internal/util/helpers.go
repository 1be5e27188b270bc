package util

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorDoc is the JSON error document returned on rejected requests.
type ErrorDoc struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// WriteError writes an ErrorDoc whose code mirrors the HTTP status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorDoc{Code: status, Msg: msg})
}
