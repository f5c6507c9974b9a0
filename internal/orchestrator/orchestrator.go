// Package orchestrator runs the generate, evaluate, retry loop for one
// listing request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/listforge/internal/evaluation"
	"github.com/valpere/listforge/internal/llm"
	"github.com/valpere/listforge/internal/postprocess"
	"github.com/valpere/listforge/internal/prompt"
	"github.com/valpere/listforge/internal/property"
)

const (
	// DefaultMaxRetries is the attempt budget per request.
	DefaultMaxRetries = 3
	// DefaultMinScore is the quality threshold on the evaluator's 0-10
	// scale. It is also the per-criterion bar used for the failure log.
	DefaultMinScore = 8
	// DefaultCallTimeout bounds each generator and evaluator call, including
	// any client-side retries of that call.
	DefaultCallTimeout = 60 * time.Second
)

// Policy is fixed for the lifetime of an Orchestrator.
type Policy struct {
	MaxRetries  int           `mapstructure:"max_retries" json:"max_retries"`
	MinScore    int           `mapstructure:"min_score" json:"min_score"`
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
}

// DefaultPolicy returns three attempts, a minimum score of 8 and 60s calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  DefaultMaxRetries,
		MinScore:    DefaultMinScore,
		CallTimeout: DefaultCallTimeout,
	}
}

// Status is the terminal state of a run.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// AttemptEntry records one rejected attempt.
type AttemptEntry struct {
	Attempt         int            `json:"attempt"`
	TotalScore      int            `json:"total_score"`
	FailingCriteria map[string]int `json:"failing_criteria"`
}

// Result is the terminal outcome of a run. Accepted results carry HTML and
// Evaluation; rejected results carry Reason. Log is never nil.
type Result struct {
	Status       Status             `json:"status"`
	HTML         string             `json:"html,omitempty"`
	Evaluation   *evaluation.Record `json:"evaluation,omitempty"`
	AttemptCount int                `json:"attempt_count"`
	Log          []AttemptEntry     `json:"failed_criteria_log"`
	Reason       string             `json:"reason,omitempty"`
}

// Accepted reports whether the run produced a listing.
func (r *Result) Accepted() bool { return r.Status == StatusAccepted }

// MalformedEvaluationError means the evaluator answered but its output could
// not be decoded. It ends the run without consuming the retry budget. Log
// holds the attempts rejected before it; the malformed one is not included.
type MalformedEvaluationError struct {
	Attempt int
	Log     []AttemptEntry
	Err     error
}

func (e *MalformedEvaluationError) Error() string {
	return fmt.Sprintf("attempt %d: evaluator returned invalid output: %v", e.Attempt, e.Err)
}

func (e *MalformedEvaluationError) Unwrap() error { return e.Err }

// TransportFailureError means a backend call failed or timed out. Log holds
// the attempts rejected before the failure.
type TransportFailureError struct {
	Attempt int
	Stage   string
	Log     []AttemptEntry
	Err     error
}

func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("attempt %d: %s call failed: %v", e.Attempt, e.Stage, e.Err)
}

func (e *TransportFailureError) Unwrap() error { return e.Err }

// Timeout reports whether the call hit its deadline.
func (e *TransportFailureError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// FailureLog returns the attempts rejected before err ended a run. It is
// never nil.
func FailureLog(err error) []AttemptEntry {
	var (
		me  *MalformedEvaluationError
		tf  *TransportFailureError
		log []AttemptEntry
	)
	switch {
	case errors.As(err, &me):
		log = me.Log
	case errors.As(err, &tf):
		log = tf.Log
	}
	if log == nil {
		return []AttemptEntry{}
	}
	return log
}

const (
	StageGenerator = "generator"
	StageEvaluator = "evaluator"
)

// Attempt is handed to an Observer after each successful evaluation.
type Attempt struct {
	Number          int
	HTML            string
	Evaluation      evaluation.Record
	Accepted        bool
	FailingCriteria map[string]int
	Duration        time.Duration
}

// Observer is notified of every evaluated attempt, accepted or not.
type Observer interface {
	OnAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

func (f ObserverFunc) OnAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// Orchestrator holds no per-request state; Run is safe for concurrent use
// as long as the generators are.
type Orchestrator struct {
	generator llm.Generator
	evaluator llm.Generator
	renderer  *prompt.Renderer
	policy    Policy
	sanitizer *postprocess.Sanitizer
	logger    *zap.Logger
}

type Option func(*Orchestrator)

// WithLogger sets the logger used when a Run has no logger of its own.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSanitizer cleans generated HTML before it is evaluated and returned.
func WithSanitizer(s *postprocess.Sanitizer) Option {
	return func(o *Orchestrator) { o.sanitizer = s }
}

// New wires the two generators and the renderer. Zero or negative policy
// fields take their defaults.
func New(generator, evaluator llm.Generator, renderer *prompt.Renderer, policy Policy, opts ...Option) *Orchestrator {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultMaxRetries
	}
	if policy.MinScore < 0 {
		policy.MinScore = DefaultMinScore
	}
	if policy.CallTimeout <= 0 {
		policy.CallTimeout = DefaultCallTimeout
	}

	o := &Orchestrator{
		generator: llm.WithTimeout(generator, policy.CallTimeout),
		evaluator: llm.WithTimeout(evaluator, policy.CallTimeout),
		renderer:  renderer,
		policy:    policy,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy { return o.policy }

type runConfig struct {
	logger   *zap.Logger
	observer Observer
}

// RunOption scopes logging and observation to a single Run.
type RunOption func(*runConfig)

// WithRunLogger replaces the orchestrator's logger for one Run.
func WithRunLogger(l *zap.Logger) RunOption {
	return func(rc *runConfig) {
		if l != nil {
			rc.logger = l
		}
	}
}

// WithObserver registers obs for one Run.
func WithObserver(obs Observer) RunOption {
	return func(rc *runConfig) { rc.observer = obs }
}

// Run generates and evaluates until the evaluator's total_score reaches
// MinScore or MaxRetries attempts were rejected.
//
// A quality rejection is a Result, not an error. Errors are returned for
// malformed evaluator output (*MalformedEvaluationError), backend failures
// and timeouts (*TransportFailureError) and cancellation of ctx, which
// abandons the remaining budget.
func (o *Orchestrator) Run(ctx context.Context, d property.Description, opts ...RunOption) (*Result, error) {
	rc := runConfig{logger: o.logger}
	for _, opt := range opts {
		opt(&rc)
	}
	logger := rc.logger

	genPrompt, err := o.renderer.RenderGenerator(d)
	if err != nil {
		return nil, fmt.Errorf("failed to render generator prompt: %w", err)
	}

	failures := make([]AttemptEntry, 0, o.policy.MaxRetries)

	for attempt := 1; attempt <= o.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		alog := logger.With(zap.Int("attempt", attempt))
		alog.Debug("Generating listing", zap.String("language", genPrompt.LanguageCode))

		raw, err := o.generator.Generate(ctx, genPrompt.Text)
		if err != nil {
			return nil, callError(ctx, alog, StageGenerator, attempt, failures, err)
		}
		html := postprocess.CleanHTML(raw)
		if o.sanitizer != nil {
			html = o.sanitizer.Sanitize(html)
		}

		evalPrompt, err := o.renderer.RenderEvaluator(html)
		if err != nil {
			return nil, fmt.Errorf("failed to render evaluator prompt: %w", err)
		}

		rawEval, err := o.evaluator.Generate(ctx, evalPrompt)
		if err != nil {
			return nil, callError(ctx, alog, StageEvaluator, attempt, failures, err)
		}

		rec, err := evaluation.Parse(rawEval)
		if err != nil {
			alog.Error("Evaluator returned invalid output",
				zap.Error(err),
				zap.String("output", evaluation.Excerpt(rawEval, 200)))
			return nil, &MalformedEvaluationError{Attempt: attempt, Log: failures, Err: err}
		}

		accepted := rec.TotalScore >= o.policy.MinScore
		var failing map[string]int
		if !accepted {
			failing = rec.FailingCriteria(o.policy.MinScore)
		}
		if rc.observer != nil {
			rc.observer.OnAttempt(ctx, Attempt{
				Number:          attempt,
				HTML:            html,
				Evaluation:      rec,
				Accepted:        accepted,
				FailingCriteria: failing,
				Duration:        time.Since(start),
			})
		}

		if accepted {
			alog.Info("Listing accepted",
				zap.Int("total_score", rec.TotalScore),
				zap.Int("rejected_attempts", len(failures)))
			return &Result{
				Status:       StatusAccepted,
				HTML:         html,
				Evaluation:   &rec,
				AttemptCount: len(failures),
				Log:          failures,
			}, nil
		}

		failures = append(failures, AttemptEntry{
			Attempt:         attempt,
			TotalScore:      rec.TotalScore,
			FailingCriteria: failing,
		})
		alog.Info("Listing below quality threshold",
			zap.Int("total_score", rec.TotalScore),
			zap.Int("min_score", o.policy.MinScore),
			zap.Any("failing_criteria", failing))
	}

	logger.Warn("Retry budget exhausted",
		zap.Int("max_retries", o.policy.MaxRetries),
		zap.Int("min_score", o.policy.MinScore))

	return &Result{
		Status:       StatusRejected,
		AttemptCount: len(failures),
		Log:          failures,
		Reason: fmt.Sprintf("Generated content did not reach minimum score %d after %d attempts",
			o.policy.MinScore, o.policy.MaxRetries),
	}, nil
}

func callError(ctx context.Context, logger *zap.Logger, stage string, attempt int, failures []AttemptEntry, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logger.Warn("Backend call failed",
		zap.String("stage", stage),
		zap.Error(err))
	return &TransportFailureError{Attempt: attempt, Stage: stage, Log: failures, Err: err}
}
