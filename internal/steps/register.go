package steps

import (
	"github.com/mergewarden/mergewarden/internal/core/pipeline"
)

// RegisterAll registers all built-in steps with the registry.
func RegisterAll(r *pipeline.Registry) {
	r.Register("gatekeeper", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewGatekeeper(deps), nil
	})

	r.Register("fact_resolver", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewFactResolver(deps), nil
	})

	r.Register("rule_matcher", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewRuleMatcher(deps), nil
	})

	r.Register("action_dispatcher", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewActionDispatcher(deps), nil
	})
}
