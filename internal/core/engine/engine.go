// Package engine wires attribute resolution, rule matching and action
// dispatch into a per-event unit of work. The engine owns no cross-event
// state beyond what the hosting API exposes: its only long-lived pieces are
// the compiled rule set (swapped atomically on reload) and the per-PR lock
// map that serializes events for the same pull request.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/mergewarden/mergewarden/internal/core/config"
	"github.com/mergewarden/mergewarden/internal/core/host"
	"github.com/mergewarden/mergewarden/internal/core/pipeline"
	"github.com/mergewarden/mergewarden/internal/core/rules"
	"github.com/mergewarden/mergewarden/internal/steps"
)

// Engine processes repository events against the current rule set.
type Engine struct {
	cfg     *config.Config
	ruleset atomic.Pointer[rules.RuleSet]
	locks   *keyedMutex
	pipe    *pipeline.Pipeline
	dryRun  bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	preset string
	dryRun bool
}

// WithPreset selects the pipeline preset the engine runs. Defaults to
// "governance".
func WithPreset(name string) Option {
	return func(o *options) { o.preset = name }
}

// WithDryRun suppresses all side effects; the dispatcher logs what it would
// have done.
func WithDryRun(dry bool) Option {
	return func(o *options) { o.dryRun = dry }
}

// New builds an engine from a loaded configuration, a compiled rule set and
// a hosting-API client.
func New(cfg *config.Config, rs *rules.RuleSet, h host.Host, opts ...Option) (*Engine, error) {
	o := options{preset: "governance"}
	for _, opt := range opts {
		opt(&o)
	}

	names, ok := pipeline.GetPreset(o.preset)
	if !ok {
		return nil, fmt.Errorf("unknown pipeline preset %q", o.preset)
	}

	registry := pipeline.NewRegistry()
	steps.RegisterAll(registry)

	pipe, err := registry.BuildFromNames(names, &pipeline.Dependencies{
		Host:   h,
		Config: cfg,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		locks:  newKeyedMutex(),
		pipe:   pipe,
		dryRun: o.dryRun,
	}
	e.ruleset.Store(rs)
	return e, nil
}

// SwapRuleSet atomically replaces the rule set. In-flight evaluations keep
// the version they started with; new evaluations see the replacement.
func (e *Engine) SwapRuleSet(rs *rules.RuleSet) {
	e.ruleset.Store(rs)
}

// RuleSet returns the rule set new evaluations will run against.
func (e *Engine) RuleSet() *rules.RuleSet {
	return e.ruleset.Load()
}

// HandleEvent processes one event to completion: resolve, match, dispatch.
// Events for the same (repository, PR number) are serialized so a stale
// decision can never race a newer one; events for distinct pull requests
// run in parallel. A newer event arriving mid-dispatch simply queues on the
// lock and evaluates fresh state immediately after.
func (e *Engine) HandleEvent(ctx context.Context, ev *pipeline.Event) (*pipeline.Result, error) {
	unlock := e.locks.Lock(prKey(ev))
	defer unlock()

	pctx := pipeline.NewContext(ctx, ev, e.cfg, e.ruleset.Load())
	pctx.DryRun = e.dryRun

	err := e.pipe.Run(pctx)
	return pctx.Result, err
}

func prKey(ev *pipeline.Event) string {
	return ev.Repository() + "#" + strconv.Itoa(ev.Number)
}
