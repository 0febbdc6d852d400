package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/apperr"
)

type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr renders ae with the status its code maps to.
func writeErr(w http.ResponseWriter, ae *apperr.AppError) {
	writeJSON(w, statusFor(ae.Code), apiError{Error: apiErrorBody{
		Code:    string(ae.Code),
		Message: ae.Message,
		Field:   ae.Field,
	}})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeMissingCredential:
		return http.StatusPreconditionFailed
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeProvider:
		return http.StatusBadGateway
	case apperr.CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppErr renders err's public part. Causes only go to the log.
func writeAppErr(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var ae *apperr.AppError
	if !errors.As(err, &ae) {
		ae = apperr.Internal("internal error", err)
	}

	if statusFor(ae.Code) >= http.StatusInternalServerError {
		log.WithError(err).WithField("code", ae.Code).Error("request failed")
	}
	writeErr(w, ae)
}
