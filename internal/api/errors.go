package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is the JSON body of every error response. Target names the
// supervisor the request was about, when there is one.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// Error codes returned by the status API.
const (
	CodeUnknownTarget      = "unknown_target"
	CodeDaemonStopping     = "daemon_stopping"
	CodeHistoryUnavailable = "history_unavailable"
	CodeInvalidLimit       = "invalid_limit"
	CodeNoRoute            = "no_route"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeInternal           = "internal_error"
)

// codeStatus maps each code to its HTTP status.
var codeStatus = map[string]int{
	CodeUnknownTarget:      http.StatusNotFound,
	CodeDaemonStopping:     http.StatusServiceUnavailable,
	CodeHistoryUnavailable: http.StatusServiceUnavailable,
	CodeInvalidLimit:       http.StatusBadRequest,
	CodeNoRoute:            http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeInternal:           http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = codeStatus[e.Code]
	}
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	writeJSON(w, e.Status, e)
}

func writeUnknownTarget(w http.ResponseWriter, target string) {
	writeError(w, Error{
		Code:    CodeUnknownTarget,
		Message: "no supervisor for target " + target,
		Target:  target,
	})
}

func writeDaemonStopping(w http.ResponseWriter, target string) {
	writeError(w, Error{
		Code:    CodeDaemonStopping,
		Message: "supervisors are shutting down",
		Target:  target,
	})
}

func writeHistoryUnavailable(w http.ResponseWriter) {
	writeError(w, Error{
		Code:    CodeHistoryUnavailable,
		Message: "session history is not recorded by this daemon",
	})
}

func writeInvalidLimit(w http.ResponseWriter, raw string, maxLimit int) {
	writeError(w, Error{
		Code:    CodeInvalidLimit,
		Message: fmt.Sprintf("limit %q must be between 1 and %d", raw, maxLimit),
	})
}

func writeInternal(w http.ResponseWriter, message string) {
	writeError(w, Error{Code: CodeInternal, Message: message})
}
