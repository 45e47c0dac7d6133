package server

import (
	"encoding/json"
	"net/http"

	"github.com/opsdata-io/gateway/errs"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// writeError maps an *errs.Error's Kind to an HTTP status per spec §7's
// disposition column; a plain error falls back to 500.
func writeError(w http.ResponseWriter, err error) {
	var kind errs.Kind
	var cause string
	if e, ok := err.(*errs.Error); ok {
		kind = e.Kind
		cause = e.Cause
	} else {
		cause = err.Error()
	}

	status := http.StatusInternalServerError
	switch kind {
	case errs.QueryInvalid, errs.AdapterSelectionAmbiguous, errs.ConfigInvalid:
		status = http.StatusBadRequest
	case errs.AuthExpired, errs.AuthTimeout:
		status = http.StatusUnauthorized
	case errs.BackendUnreachable, errs.SchemaIndexUnavailable:
		status = http.StatusServiceUnavailable
	case errs.QuotaExceeded:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, errBody(cause))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("malformed JSON body: "+err.Error()))
		return false
	}
	return true
}
