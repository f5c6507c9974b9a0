package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/valpere/listforge/internal/evaluation"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/property"
	"github.com/valpere/listforge/internal/service"
)

// maxBodyBytes caps a property description upload.
const maxBodyBytes = 1 << 20

// ListingGenerator is satisfied by *service.ListingService.
type ListingGenerator interface {
	Generate(ctx context.Context, d property.Description) (*service.Outcome, error)
}

// ListingResponse is the 200 body of POST /generate-listing.
type ListingResponse struct {
	RequestID         string                      `json:"request_id"`
	HTML              string                      `json:"html"`
	Evaluation        *evaluation.Record          `json:"evaluation"`
	Retries           int                         `json:"retries"`
	FailedCriteriaLog []orchestrator.AttemptEntry `json:"failed_criteria_log"`
	Cached            bool                        `json:"cached"`
	DetectedLanguage  string                      `json:"detected_language,omitempty"`
}

// ListingHandler handles listing generation
type ListingHandler struct {
	svc    ListingGenerator
	logger *zap.Logger
}

func NewListingHandler(svc ListingGenerator, logger *zap.Logger) *ListingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingHandler{svc: svc, logger: logger}
}

// Generate handles POST /generate-listing
func (h *ListingHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var d property.Description
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&d); err != nil {
		msg := "request body must be a JSON property description"
		if !errors.Is(err, io.EOF) {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		writeError(w, http.StatusBadRequest, ErrorBody{Error: KindInvalidRequest, Message: msg})
		return
	}

	out, err := h.svc.Generate(r.Context(), d)
	if err != nil {
		h.writeGenerateError(w, r, err)
		return
	}

	res := out.Result
	if !res.Accepted() {
		writeError(w, http.StatusUnprocessableEntity, ErrorBody{
			Error:             KindQualityRejected,
			Message:           res.Reason,
			RequestID:         out.RequestID,
			FailedCriteriaLog: res.Log,
		})
		return
	}

	writeJSON(w, http.StatusOK, ListingResponse{
		RequestID:         out.RequestID,
		HTML:              res.HTML,
		Evaluation:        res.Evaluation,
		Retries:           res.AttemptCount,
		FailedCriteriaLog: res.Log,
		Cached:            out.Cached,
		DetectedLanguage:  out.DetectedLanguage,
	})
}

func (h *ListingHandler) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := DescribeError(err)
	switch status {
	case http.StatusServiceUnavailable:
		h.logger.Info("Request cancelled by client", zap.String("request_id", body.RequestID), zap.String("remote", r.RemoteAddr))
	case http.StatusInternalServerError:
		h.logger.Error("Listing generation failed", zap.String("request_id", body.RequestID), zap.Error(err))
	}
	writeError(w, status, body)
}

// DescribeError maps an error from ListingGenerator.Generate to its HTTP
// status and response body.
func DescribeError(err error) (int, ErrorBody) {
	var (
		ve *property.ValidationError
		re *service.RequestError
		me *orchestrator.MalformedEvaluationError
		tf *orchestrator.TransportFailureError
	)
	requestID := ""
	if errors.As(err, &re) {
		requestID = re.RequestID
	}

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorBody{Error: KindInvalidRequest, Message: ve.Error(), Field: ve.Field}
	case errors.As(err, &me):
		return http.StatusBadGateway, ErrorBody{
			Error:             KindMalformedEvaluation,
			Message:           "the evaluator returned output that could not be parsed",
			RequestID:         requestID,
			FailedCriteriaLog: orchestrator.FailureLog(err),
		}
	case errors.As(err, &tf):
		msg := fmt.Sprintf("the %s backend failed", tf.Stage)
		if tf.Timeout() {
			msg = fmt.Sprintf("the %s backend timed out", tf.Stage)
		}
		return http.StatusGatewayTimeout, ErrorBody{
			Error:             KindTransportFailure,
			Message:           msg,
			RequestID:         requestID,
			FailedCriteriaLog: orchestrator.FailureLog(err),
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorBody{Error: KindCancelled, Message: "request cancelled", RequestID: requestID}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: KindInternal, Message: "internal error", RequestID: requestID}
	}
}
