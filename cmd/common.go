/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/valpere/listforge/internal/cache"
	"github.com/valpere/listforge/internal/config"
	"github.com/valpere/listforge/internal/llm"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/postprocess"
	"github.com/valpere/listforge/internal/prompt"
	"github.com/valpere/listforge/internal/service"
	"github.com/valpere/listforge/internal/store"
	"github.com/valpere/listforge/internal/validator"
)

// newBackend builds one model client with the optional client-side retry.
// cfg.Timeout bounds each try; policy.call_timeout bounds the whole call.
func newBackend(cfg llm.Config, retry llm.RetryConfig) (llm.Generator, error) {
	g, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(llm.WithTimeout(g, cfg.Timeout), retry), nil
}

// buildOrchestrator wires the generator, the evaluator and the prompt
// templates under the configured policy.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	renderer, err := prompt.Load(cfg.Generation.TemplatesDir)
	if err != nil {
		return nil, err
	}
	gen, err := newBackend(cfg.Generator, cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	eval, err := newBackend(cfg.Evaluator, cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if cfg.Generation.SanitizeHTML {
		opts = append(opts, orchestrator.WithSanitizer(postprocess.NewSanitizer()))
	}
	return orchestrator.New(gen, eval, renderer, cfg.Policy, opts...), nil
}

// stack is everything a generating command needs. History is nil when the
// store is disabled.
type stack struct {
	svc     *service.ListingService
	history *store.Store
	closers []func() error
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
}

// buildStack opens the store and cache and assembles the listing service.
// The Redis cache, when enabled, replaces the store's listing memory;
// noCache disables result reuse altogether.
func buildStack(ctx context.Context, cfg *config.Config, noCache bool) (*stack, error) {
	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return nil, err
	}

	st := &stack{}
	opts := []service.Option{service.WithLogger(logger)}

	if cfg.Store.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := store.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		st.history = db
		st.closers = append(st.closers, db.Close)
		opts = append(opts, service.WithHistory(db))
	}

	switch {
	case noCache:
	case cfg.Cache.Enabled:
		rdb, err := cache.Dial(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, rdb.Close)
		opts = append(opts, service.WithCache(cache.New(rdb, cfg.Cache.TTL)))
		logger.Info("Using Redis listing cache", zap.String("addr", cfg.Cache.RedisAddr))
	case st.history != nil:
		opts = append(opts, service.WithCache(st.history))
	}

	if cfg.Generation.LanguageCheck {
		opts = append(opts, service.WithLanguageChecker(validator.New()))
	}

	st.svc = service.New(orch, opts...)
	return st, nil
}
