// Package api implements the thin HTTP surface: query CRUD, OAuth2 code
// exchange, delivery-target management, user settings, the static image
// directory and the status/metrics endpoints. Errors surface as bare
// status codes — bodies never carry failure details.
package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/errs"
)

// writeJSON writes a JSON-encoded success response.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeErr logs the failure and writes its mapped status code with an
// empty body.
func writeErr(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := errs.HTTPStatus(err)
	switch errs.KindOf(err) {
	case errs.KindInvalidParameter, errs.KindUnauthorized, errs.KindJwt:
		logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	default:
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	w.WriteHeader(status)
}

// decodeJSON decodes the request body into dst; a false return means the
// 400 has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}
