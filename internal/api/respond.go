package api

import (
	"encoding/json"
	"net/http"

	"revenue-reconciliation-service/pkg/errors"
)

type errorBody struct {
	Error *errors.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP status codes. Anything that
// is not a taxonomy error is reported as an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, err.Error())
	}
	writeJSON(w, statusFor(e), errorBody{Error: e})
}

func statusFor(e *errors.Error) int {
	switch e.Code {
	case errors.CodeSessionNotFound, errors.CodeDataNotFound, errors.CodeUnknownMatch:
		return http.StatusNotFound
	case errors.CodeIdentityReviewRequired:
		return http.StatusConflict
	}
	switch e.Category {
	case errors.CategoryFile, errors.CategoryParse, errors.CategoryValidation,
		errors.CategoryConfiguration, errors.CategoryIdentity:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads an optional JSON body into dst. An empty body is fine;
// malformed JSON is a validation error.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidFormat,
			"request body is not valid JSON")
	}
	return nil
}
