// Package httputil holds the request/response helpers shared by every
// handler.
package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteError writes a ServiceError as JSON.
func WriteError(w http.ResponseWriter, serr *errors.ServiceError) {
	WriteJSON(w, serr.HTTPStatus, errorBody{Error: errorDetail{
		Code:    string(serr.Code),
		Message: serr.Message,
		Details: serr.Details,
	}})
}

// Error maps any error onto the response. Unknown errors become an opaque
// 500 and are logged with the request's trace id.
func Error(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	serr := errors.GetServiceError(err)
	if serr == nil {
		serr = errors.Internal("Something went wrong. Please try again.", err)
	}
	if serr.HTTPStatus >= 500 && log != nil {
		log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	WriteError(w, serr)
}

// DecodeJSON reads the request body into dest, rejecting unknown fields and
// oversized payloads.
func DecodeJSON(r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.Validation("Request body too large.")
		}
		return errors.Validation("Invalid request body.")
	}
	return nil
}
