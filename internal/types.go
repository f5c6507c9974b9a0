package internal

import (
	"time"

	"github.com/valpere/listforge/internal/evaluation"
	"github.com/valpere/listforge/internal/orchestrator"
)

// Outcome statuses recorded in history. The first two mirror
// orchestrator.Status; the rest are escalations.
const (
	StatusAccepted            = string(orchestrator.StatusAccepted)
	StatusRejected            = string(orchestrator.StatusRejected)
	StatusMalformedEvaluation = "malformed_evaluation"
	StatusTransportFailure    = "transport_failure"
	StatusCancelled           = "cancelled"
	StatusFailed              = "failed"
)

type GenerationRequest struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Language    string    `json:"language"`
	Title       string    `json:"title"`
	Input       string    `json:"input"`
	Timestamp   time.Time `json:"timestamp"`
}

type GenerationAttempt struct {
	RequestID       string            `json:"request_id"`
	Attempt         int               `json:"attempt"`
	HTML            string            `json:"html"`
	Evaluation      evaluation.Record `json:"evaluation"`
	Accepted        bool              `json:"accepted"`
	FailingCriteria map[string]int    `json:"failing_criteria,omitempty"`
	LatencyMs       int64             `json:"latency_ms"`
	CreatedAt       time.Time         `json:"created_at"`
}

type GenerationOutcome struct {
	RequestID         string                      `json:"request_id"`
	Status            string                      `json:"status"`
	AttemptCount      int                         `json:"attempt_count"`
	HTML              string                      `json:"html,omitempty"`
	Evaluation        *evaluation.Record          `json:"evaluation,omitempty"`
	FailedCriteriaLog []orchestrator.AttemptEntry `json:"failed_criteria_log"`
	Reason            string                      `json:"reason,omitempty"`
	DetectedLanguage  string                      `json:"detected_language,omitempty"`
	Cached            bool                        `json:"cached"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// CachedListing is an accepted listing kept for reuse by identical requests.
type CachedListing struct {
	Fingerprint      string            `json:"fingerprint"`
	Language         string            `json:"language"`
	HTML             string            `json:"html"`
	Evaluation       evaluation.Record `json:"evaluation"`
	DetectedLanguage string            `json:"detected_language,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
