// Package api contains helpers shared by the JSON API handlers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/dentalrpa/journalize/process"
)

// JSONError encodes err as JSON to w. A zero statusCode selects one
// from the error: business errors are the caller's problem and carry
// their full message, anything else is a server-side fault whose
// message is already opaque.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	if statusCode < 1 {
		if process.IsBusiness(err) {
			statusCode = http.StatusUnprocessableEntity
		} else {
			statusCode = http.StatusInternalServerError
		}
	}
	jsonErr := &struct {
		Err string `json:"error"`
	}{Err: err.Error()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonErr)
}

// JSON encodes v as JSON to w with statusCode.
func JSON(w http.ResponseWriter, v interface{}, statusCode int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}
