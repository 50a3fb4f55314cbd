package server

import (
	"net/http"

	"github.com/whatsnext/whatsnext/internal/werrors"
)

// writeError maps a werrors.Kind to the HTTP status codes named in
// SPEC_FULL.md's error-handling section (404/400/409/504/500).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch werrors.KindOf(err) {
	case werrors.KindNotFound:
		status = http.StatusNotFound
	case werrors.KindValidation:
		status = http.StatusBadRequest
	case werrors.KindConflict:
		status = http.StatusConflict
	case werrors.KindTransportFailure:
		status = http.StatusGatewayTimeout
	case werrors.KindExecutionFailure, werrors.KindFatal, werrors.KindUnknown:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
