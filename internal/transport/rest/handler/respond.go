package handler

import (
	"encoding/json"
	"net/http"
)

// Error kinds carried in every error body.
const (
	KindInvalidRequest      = "invalid_request"
	KindQualityRejected     = "quality_rejected"
	KindMalformedEvaluation = "malformed_evaluation"
	KindTransportFailure    = "transport_failure"
	KindCancelled           = "cancelled"
	KindNotFound            = "not_found"
	KindInternal            = "internal_error"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Field             string `json:"field,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
	FailedCriteriaLog any    `json:"failed_criteria_log,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, body)
}
