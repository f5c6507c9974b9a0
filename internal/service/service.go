// Package service runs one listing request end to end: validation, result
// reuse, the generate-evaluate loop, the language check and history.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valpere/listforge/internal"
	"github.com/valpere/listforge/internal/language"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/property"
	"github.com/valpere/listforge/internal/validator"
)

// Runner is satisfied by *orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, d property.Description, opts ...orchestrator.RunOption) (*orchestrator.Result, error)
}

// ResultCache stores accepted listings keyed by property fingerprint and
// language.
type ResultCache interface {
	GetCachedListing(ctx context.Context, fingerprint, lang string) (*internal.CachedListing, bool, error)
	SaveListing(ctx context.Context, l internal.CachedListing) error
}

// History records every request and how it ended.
type History interface {
	SaveRequest(ctx context.Context, req internal.GenerationRequest) error
	SaveAttempt(ctx context.Context, a internal.GenerationAttempt) error
	SaveOutcome(ctx context.Context, o internal.GenerationOutcome) error
}

// LanguageChecker is satisfied by *validator.Validator.
type LanguageChecker interface {
	Check(html string, lang language.Code) validator.Report
}

// Outcome is what a caller gets back for a finished request. Result is
// never nil.
type Outcome struct {
	RequestID        string
	Result           *orchestrator.Result
	Cached           bool
	DetectedLanguage string
	LanguageCheck    *validator.Report
}

// RequestError carries the request ID of a run that ended in an error.
type RequestError struct {
	RequestID string
	Err       error
}

func (e *RequestError) Error() string { return e.RequestID + ": " + e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

type ListingService struct {
	runner  Runner
	cache   ResultCache
	history History
	checker LanguageChecker
	logger  *zap.Logger
	newID   func() string
}

type Option func(*ListingService)

func WithCache(c ResultCache) Option {
	return func(s *ListingService) { s.cache = c }
}

func WithHistory(h History) Option {
	return func(s *ListingService) { s.history = h }
}

func WithLanguageChecker(c LanguageChecker) Option {
	return func(s *ListingService) { s.checker = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *ListingService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the uuid request IDs.
func WithIDGenerator(f func() string) Option {
	return func(s *ListingService) { s.newID = f }
}

func New(runner Runner, opts ...Option) *ListingService {
	s := &ListingService{
		runner: runner,
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate validates d and produces a listing for it. A quality rejection
// is returned as an Outcome whose Result is rejected. Escalations are
// returned as a *RequestError wrapping the orchestrator error, and invalid
// input as *property.ValidationError.
//
// Cache and history failures are logged and never fail the request.
func (s *ListingService) Generate(ctx context.Context, d property.Description) (*Outcome, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	lang := d.Lang()
	logger := s.logger.With(zap.String("request_id", id), zap.String("language", lang.String()))

	fingerprint, err := d.Fingerprint()
	if err != nil {
		return nil, err
	}

	// History is written even when the caller goes away mid-run.
	persistCtx := context.WithoutCancel(ctx)
	s.saveRequest(persistCtx, logger, d, id, fingerprint)

	if out := s.fromCache(ctx, logger, id, fingerprint, lang); out != nil {
		s.saveOutcome(persistCtx, logger, out)
		return out, nil
	}

	var opts []orchestrator.RunOption
	opts = append(opts, orchestrator.WithRunLogger(logger))
	if s.history != nil {
		opts = append(opts, orchestrator.WithObserver(s.attemptRecorder(persistCtx, logger, id)))
	}

	start := time.Now()
	res, err := s.runner.Run(ctx, d, opts...)
	if err != nil {
		status := classify(err)
		logger.Warn("Generation ended with error", zap.String("status", status), zap.Error(err))
		s.saveFailure(persistCtx, logger, id, status, err)
		return nil, &RequestError{RequestID: id, Err: err}
	}

	out := &Outcome{RequestID: id, Result: res}
	if res.Accepted() {
		s.checkLanguage(logger, out, lang)
		s.storeInCache(persistCtx, logger, out, fingerprint, lang)
	}

	logger.Info("Generation finished",
		zap.String("status", string(res.Status)),
		zap.Int("attempt_count", res.AttemptCount),
		zap.Duration("elapsed", time.Since(start)))

	s.saveOutcome(persistCtx, logger, out)
	return out, nil
}

func (s *ListingService) fromCache(ctx context.Context, logger *zap.Logger, id, fingerprint string, lang language.Code) *Outcome {
	if s.cache == nil {
		return nil
	}
	l, found, err := s.cache.GetCachedListing(ctx, fingerprint, lang.String())
	if err != nil {
		logger.Warn("Result cache lookup failed", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	logger.Info("Serving cached listing", zap.String("fingerprint", fingerprint))
	eval := l.Evaluation
	return &Outcome{
		RequestID: id,
		Result: &orchestrator.Result{
			Status:     orchestrator.StatusAccepted,
			HTML:       l.HTML,
			Evaluation: &eval,
			Log:        []orchestrator.AttemptEntry{},
		},
		Cached:           true,
		DetectedLanguage: l.DetectedLanguage,
	}
}

func (s *ListingService) checkLanguage(logger *zap.Logger, out *Outcome, lang language.Code) {
	if s.checker == nil {
		return
	}
	report := s.checker.Check(out.Result.HTML, lang)
	out.LanguageCheck = &report
	out.DetectedLanguage = report.Detected
	if report.Mismatch() {
		logger.Warn("Accepted listing language mismatch", zap.String("check", report.String()))
	}
}

func (s *ListingService) storeInCache(ctx context.Context, logger *zap.Logger, out *Outcome, fingerprint string, lang language.Code) {
	if s.cache == nil {
		return
	}
	err := s.cache.SaveListing(ctx, internal.CachedListing{
		Fingerprint:      fingerprint,
		Language:         lang.String(),
		HTML:             out.Result.HTML,
		Evaluation:       *out.Result.Evaluation,
		DetectedLanguage: out.DetectedLanguage,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to cache listing", zap.Error(err))
	}
}

func (s *ListingService) attemptRecorder(ctx context.Context, logger *zap.Logger, id string) orchestrator.Observer {
	return orchestrator.ObserverFunc(func(_ context.Context, a orchestrator.Attempt) {
		err := s.history.SaveAttempt(ctx, internal.GenerationAttempt{
			RequestID:       id,
			Attempt:         a.Number,
			HTML:            a.HTML,
			Evaluation:      a.Evaluation,
			Accepted:        a.Accepted,
			FailingCriteria: a.FailingCriteria,
			LatencyMs:       a.Duration.Milliseconds(),
			CreatedAt:       time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("Failed to record attempt", zap.Int("attempt", a.Number), zap.Error(err))
		}
	})
}

func (s *ListingService) saveRequest(ctx context.Context, logger *zap.Logger, d property.Description, id, fingerprint string) {
	if s.history == nil {
		return
	}
	input, err := d.CanonicalJSON()
	if err != nil {
		logger.Warn("Failed to encode request for history", zap.Error(err))
		return
	}
	err = s.history.SaveRequest(ctx, internal.GenerationRequest{
		ID:          id,
		Fingerprint: fingerprint,
		Language:    d.Lang().String(),
		Title:       d.Title,
		Input:       string(input),
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to record request", zap.Error(err))
	}
}

func (s *ListingService) saveOutcome(ctx context.Context, logger *zap.Logger, out *Outcome) {
	if s.history == nil {
		return
	}
	res := out.Result
	err := s.history.SaveOutcome(ctx, internal.GenerationOutcome{
		RequestID:         out.RequestID,
		Status:            string(res.Status),
		AttemptCount:      res.AttemptCount,
		HTML:              res.HTML,
		Evaluation:        res.Evaluation,
		FailedCriteriaLog: res.Log,
		Reason:            res.Reason,
		DetectedLanguage:  out.DetectedLanguage,
		Cached:            out.Cached,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to record outcome", zap.Error(err))
	}
}

func (s *ListingService) saveFailure(ctx context.Context, logger *zap.Logger, id, status string, cause error) {
	if s.history == nil {
		return
	}
	log := orchestrator.FailureLog(cause)
	err := s.history.SaveOutcome(ctx, internal.GenerationOutcome{
		RequestID:         id,
		Status:            status,
		AttemptCount:      len(log),
		FailedCriteriaLog: log,
		Reason:            cause.Error(),
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to record outcome", zap.Error(err))
	}
}

// classify maps a run error to its history status.
func classify(err error) string {
	var me *orchestrator.MalformedEvaluationError
	var tf *orchestrator.TransportFailureError
	switch {
	case errors.As(err, &me):
		return internal.StatusMalformedEvaluation
	case errors.As(err, &tf):
		return internal.StatusTransportFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return internal.StatusCancelled
	default:
		return internal.StatusFailed
	}
}
