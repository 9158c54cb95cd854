// Package httpx writes JSON and RFC7807 problem responses and maps domain
// errors to status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"
	maxBodyBytes       = 1 << 20
)

// ProblemDetail is the RFC7807 body.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with status.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, contentTypeJSON, status, data)
}

// Problem writes an about:blank problem with the given title and detail.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	write(w, contentTypeProblem, status, ProblemDetail{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func write(w http.ResponseWriter, contentType string, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON reads a single JSON document into target. Unknown fields,
// trailing data and bodies over 1 MiB fail with ErrBadRequest.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", ErrBadRequest)
	}
	return nil
}
