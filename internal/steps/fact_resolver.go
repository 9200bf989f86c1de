package steps

import (
	"errors"
	"log"

	"github.com/mergewarden/mergewarden/internal/core/facts"
	"github.com/mergewarden/mergewarden/internal/core/pipeline"
)

// FactResolver fetches the current pull-request state from the hosting API
// and normalizes it into the fact set every later stage evaluates against.
type FactResolver struct {
	resolver *facts.Resolver
}

// NewFactResolver creates a new fact resolver step.
func NewFactResolver(deps *pipeline.Dependencies) *FactResolver {
	return &FactResolver{
		resolver: facts.NewResolver(deps.Host),
	}
}

// Name returns the step name.
func (s *FactResolver) Name() string {
	return "fact_resolver"
}

// Run resolves the fact set. Resolution failures caused by incomplete
// snapshots drop the event quietly; hosting-API failures propagate so the
// delivery layer can decide whether to redeliver.
func (s *FactResolver) Run(ctx *pipeline.Context) error {
	f, err := s.resolver.Resolve(ctx.Ctx, ctx.Event.Repository(), ctx.Event.Number)
	if err != nil {
		var resErr *facts.ResolutionError
		if errors.As(err, &resErr) {
			log.Printf("[fact_resolver] dropping event for %s#%d: %v",
				ctx.Event.Repository(), ctx.Event.Number, resErr)
			ctx.Result.Skipped = true
			ctx.Result.SkipReason = resErr.Error()
			return pipeline.ErrSkipPipeline
		}
		return err
	}

	ctx.Facts = f
	return nil
}
