package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrExhausted is returned by Static once every canned response was used.
var ErrExhausted = errors.New("stub responses exhausted")

// Static is a deterministic Generator that replays canned responses in
// order and repeats the last one. It records every prompt it receives.
type Static struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	repeat    bool
}

// NewStatic returns a Static that repeats its last response forever.
func NewStatic(responses ...string) *Static {
	return &Static{responses: responses, repeat: true}
}

// NewSequence returns a Static that fails with ErrExhausted once responses
// run out. errs, when non-nil at an index, is returned instead of the
// response at that index.
func NewSequence(responses []string, errs []error) *Static {
	return &Static{responses: responses, errs: errs}
}

func (s *Static) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)

	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", ErrExhausted
	}
	if i >= len(s.responses) {
		if !s.repeat {
			return "", ErrExhausted
		}
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

// Prompts returns a copy of the prompts received so far.
func (s *Static) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Calls returns how many times Generate ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
