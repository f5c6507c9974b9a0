package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/valpere/listforge/internal"
	"github.com/valpere/listforge/internal/language"
	"github.com/valpere/listforge/internal/llm"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/prompt"
	"github.com/valpere/listforge/internal/property"
	"github.com/valpere/listforge/internal/store"
	"github.com/valpere/listforge/internal/validator"
)

const listingHTML = `<html lang="en"><body><h1>Sunny Flat</h1></body></html>`

type memCache struct {
	mu      sync.Mutex
	entries map[string]internal.CachedListing
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]internal.CachedListing{}}
}

func (c *memCache) GetCachedListing(_ context.Context, fingerprint, lang string) (*internal.CachedListing, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	l, ok := c.entries[lang+":"+fingerprint]
	if !ok {
		return nil, false, nil
	}
	return &l, true, nil
}

func (c *memCache) SaveListing(_ context.Context, l internal.CachedListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[l.Language+":"+l.Fingerprint] = l
	return nil
}

type fixedChecker struct {
	report validator.Report
}

func (c fixedChecker) Check(string, language.Code) validator.Report { return c.report }

func sunnyFlat() property.Description {
	return property.Description{
		Title:       "Sunny Flat",
		Location:    property.Location{City: "Lisbon"},
		ListingType: property.Sale,
		Language:    language.English,
	}
}

func newRunner(t *testing.T, gen, eval llm.Generator) *orchestrator.Orchestrator {
	t.Helper()
	r, err := prompt.Load("")
	require.NoError(t, err)
	return orchestrator.New(gen, eval, r, orchestrator.Policy{MaxRetries: 3, MinScore: 8})
}

func newHistory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerate_InvalidInput(t *testing.T) {
	gen := llm.NewStatic(listingHTML)
	svc := New(newRunner(t, gen, llm.NewStatic(`{"total_score": 9}`)))

	d := sunnyFlat()
	d.Location.City = ""
	out, err := svc.Generate(context.Background(), d)
	assert.Nil(t, out)

	var ve *property.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "location.city", ve.Field)
	assert.Equal(t, 0, gen.Calls())
}

func TestGenerate_Accepted(t *testing.T) {
	history := newHistory(t)
	svc := New(newRunner(t, llm.NewStatic(listingHTML), llm.NewStatic(`{"structure_compliance": 9, "total_score": 9}`)),
		WithHistory(history),
		WithIDGenerator(func() string { return "req-1" }),
		WithLanguageChecker(fixedChecker{validator.Report{Expected: language.English, Detected: "en", Checked: true, Match: true}}),
	)

	out, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)

	assert.Equal(t, "req-1", out.RequestID)
	assert.True(t, out.Result.Accepted())
	assert.False(t, out.Cached)
	assert.Equal(t, "en", out.DetectedLanguage)
	require.NotNil(t, out.LanguageCheck)
	assert.False(t, out.LanguageCheck.Mismatch())

	run, err := history.GetRun(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "Sunny Flat", run.Request.Title)
	require.Len(t, run.Attempts, 1)
	assert.True(t, run.Attempts[0].Accepted)
	require.NotNil(t, run.Outcome)
	assert.Equal(t, internal.StatusAccepted, run.Outcome.Status)
	assert.Equal(t, listingHTML, run.Outcome.HTML)
}

func TestGenerate_Rejected(t *testing.T) {
	history := newHistory(t)
	svc := New(newRunner(t, llm.NewStatic(listingHTML), llm.NewStatic(`{"structure_compliance": 4, "total_score": 5}`)),
		WithHistory(history),
		WithIDGenerator(func() string { return "req-1" }),
	)

	out, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)
	assert.False(t, out.Result.Accepted())
	assert.Len(t, out.Result.Log, 3)
	assert.Nil(t, out.LanguageCheck)

	run, err := history.GetRun(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Len(t, run.Attempts, 3)
	assert.Equal(t, internal.StatusRejected, run.Outcome.Status)
	assert.Equal(t, 3, run.Outcome.AttemptCount)
	assert.Len(t, run.Outcome.FailedCriteriaLog, 3)
}

func TestGenerate_LanguageMismatchIsNotARejection(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := New(newRunner(t, llm.NewStatic(listingHTML), llm.NewStatic(`{"total_score": 9}`)),
		WithLogger(zap.New(core)),
		WithLanguageChecker(fixedChecker{validator.Report{Expected: language.English, Detected: "es", Checked: true}}),
	)

	out, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)
	assert.True(t, out.Result.Accepted())
	assert.Equal(t, "es", out.DetectedLanguage)
	assert.True(t, out.LanguageCheck.Mismatch())
	assert.Equal(t, 1, logs.FilterMessage("Accepted listing language mismatch").Len())
}

func TestGenerate_CacheHit(t *testing.T) {
	cache := newMemCache()
	gen := llm.NewStatic(listingHTML)
	eval := llm.NewStatic(`{"total_score": 9}`)
	svc := New(newRunner(t, gen, eval), WithCache(cache))

	first, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, first.Result.HTML, second.Result.HTML)
	assert.Equal(t, 0, second.Result.AttemptCount)
	assert.NotNil(t, second.Result.Log)
	assert.Equal(t, 1, gen.Calls())

	// Another language is a different request.
	d := sunnyFlat()
	d.Language = language.Portuguese
	third, err := svc.Generate(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, gen.Calls())
}

func TestGenerate_RejectedIsNotCached(t *testing.T) {
	cache := newMemCache()
	svc := New(newRunner(t, llm.NewStatic(listingHTML), llm.NewStatic(`{"total_score": 2}`)), WithCache(cache))

	_, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)
	assert.Empty(t, cache.entries)
}

func TestGenerate_CacheErrorFallsThrough(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	svc := New(newRunner(t, llm.NewStatic(listingHTML), llm.NewStatic(`{"total_score": 9}`)), WithCache(cache))

	out, err := svc.Generate(context.Background(), sunnyFlat())
	require.NoError(t, err)
	assert.True(t, out.Result.Accepted())
	assert.False(t, out.Cached)
}

func TestGenerate_Escalations(t *testing.T) {
	tests := []struct {
		name       string
		gen        llm.Generator
		eval       llm.Generator
		wantStatus string
		wantLog    int
		check      func(t *testing.T, err error)
	}{
		{
			name:       "malformed evaluation",
			gen:        llm.NewStatic(listingHTML),
			eval:       llm.NewStatic("not json"),
			wantStatus: internal.StatusMalformedEvaluation,
			check: func(t *testing.T, err error) {
				var me *orchestrator.MalformedEvaluationError
				assert.ErrorAs(t, err, &me)
			},
		},
		{
			name:       "malformed evaluation after a rejection",
			gen:        llm.NewStatic(listingHTML),
			eval:       llm.NewSequence([]string{`{"structure_compliance": 4, "total_score": 3}`, "not json"}, nil),
			wantStatus: internal.StatusMalformedEvaluation,
			wantLog:    1,
			check: func(t *testing.T, err error) {
				var me *orchestrator.MalformedEvaluationError
				require.ErrorAs(t, err, &me)
				assert.Len(t, me.Log, 1)
			},
		},
		{
			name:       "transport failure",
			gen:        llm.NewSequence(nil, []error{&llm.TransportError{Provider: llm.ProviderOpenAI, StatusCode: 503, Err: errors.New("unavailable")}}),
			eval:       llm.NewStatic(`{"total_score": 9}`),
			wantStatus: internal.StatusTransportFailure,
			check: func(t *testing.T, err error) {
				var tf *orchestrator.TransportFailureError
				assert.ErrorAs(t, err, &tf)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := newHistory(t)
			svc := New(newRunner(t, tt.gen, tt.eval), WithHistory(history), WithIDGenerator(func() string { return "req-1" }))

			out, err := svc.Generate(context.Background(), sunnyFlat())
			assert.Nil(t, out)
			require.Error(t, err)

			var re *RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "req-1", re.RequestID)
			tt.check(t, err)

			run, err := history.GetRun(context.Background(), "req-1")
			require.NoError(t, err)
			require.NotNil(t, run.Outcome)
			assert.Equal(t, tt.wantStatus, run.Outcome.Status)
			assert.Len(t, run.Outcome.FailedCriteriaLog, tt.wantLog)
			assert.Equal(t, tt.wantLog, run.Outcome.AttemptCount)
		})
	}
}

func TestGenerate_CancelledStillRecorded(t *testing.T) {
	history := newHistory(t)
	ctx, cancel := context.WithCancel(context.Background())
	gen := llm.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc := New(newRunner(t, gen, llm.NewStatic(`{"total_score": 9}`)), WithHistory(history), WithIDGenerator(func() string { return "req-1" }))

	_, err := svc.Generate(ctx, sunnyFlat())
	assert.ErrorIs(t, err, context.Canceled)

	run, err := history.GetRun(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, run.Outcome)
	assert.Equal(t, internal.StatusCancelled, run.Outcome.Status)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, internal.StatusFailed, classify(errors.New("template exploded")))
	assert.Equal(t, internal.StatusCancelled, classify(context.DeadlineExceeded))
}
