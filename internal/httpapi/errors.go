package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/entity"
	"github.com/yanizio/tenantstore/internal/rds"
)

// errBadRequest marks malformed bodies and path parameters.
var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, entity.ErrTenantContextMissing):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest), errors.As(err, &verr), condition.IsCompileError(err):
		return http.StatusBadRequest
	case errors.Is(err, rds.ErrNotFound):
		return http.StatusNotFound
	case rds.IsDuplicateKey(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api operation failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api response encode failed", zap.Error(err))
	}
}
