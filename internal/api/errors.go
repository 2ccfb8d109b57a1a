package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgmembers/internal/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code clients switch on.
type ErrorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError names a request field that failed validation.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its status and error code. Internal errors are
// logged and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)

	detail := ErrorDetail{
		Code:    kind.String(),
		Message: http.StatusText(kind.HTTPStatus()),
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && kind != apperr.KindInternal {
		if appErr.Message != "" {
			detail.Message = appErr.Message
		}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			detail.Fields = append(detail.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}

	if kind == apperr.KindInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	}

	writeJSON(w, kind.HTTPStatus(), ErrorResponse{Error: detail})
}

func validationError(op, message string, err error) error {
	return apperr.Wrap(apperr.KindValidation, op, message, err)
}

// WriteAuthError renders an authentication failure as an Unauthenticated
// error body. It matches auth.ErrorWriter.
func WriteAuthError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, apperr.Wrap(apperr.KindUnauthenticated, "auth", "authentication required", err))
}
