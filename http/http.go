// Package http includes handlers and utilities shared by the API surface.
package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ReadAllAndReplaceBody reads all of r.Body and replaces it with a new
// byte buffer so that downstream handlers can read it again.
func ReadAllAndReplaceBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return b, err
	}
	defer r.Body.Close()
	r.Body = io.NopCloser(bytes.NewBuffer(b))
	return b, nil
}

// DumpHandler writes the request line and body of each request to
// output. Intended for inspecting incoming item payloads during
// development.
func DumpHandler(next http.Handler, output io.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := ReadAllAndReplaceBody(r)
		fmt.Fprintf(output, "%s %s\n%s\n", r.Method, r.URL.Path, body)
		next.ServeHTTP(w, r)
	}
}
