// Package steps contains the modular pipeline steps. Each step implements
// the pipeline.Step interface.
package steps

import (
	"log"
	"strings"

	"github.com/mergewarden/mergewarden/internal/core/pipeline"
)

// Gatekeeper drops events the engine must not act on: malformed events,
// events for repositories outside the allow-list, and events triggered by
// bot authors (which would otherwise loop the bot on its own comments).
type Gatekeeper struct {
	botUsers []string
}

// NewGatekeeper creates a new gatekeeper step.
func NewGatekeeper(deps *pipeline.Dependencies) *Gatekeeper {
	return &Gatekeeper{
		botUsers: deps.Config.BotUsers,
	}
}

// Name returns the step name.
func (s *Gatekeeper) Name() string {
	return "gatekeeper"
}

// Run validates the event and checks repository configuration.
func (s *Gatekeeper) Run(ctx *pipeline.Context) error {
	if err := ctx.Event.Validate(); err != nil {
		// Malformed events are dropped, never retried.
		log.Printf("[gatekeeper] dropping malformed event: %v", err)
		ctx.Result.Skipped = true
		ctx.Result.SkipReason = err.Error()
		return pipeline.ErrSkipPipeline
	}

	if ctx.Event.Author != "" && isBotAuthor(ctx.Event.Author, s.botUsers) {
		log.Printf("[gatekeeper] skipping event from bot author %q", ctx.Event.Author)
		ctx.Result.Skipped = true
		ctx.Result.SkipReason = "event triggered by bot"
		return pipeline.ErrSkipPipeline
	}

	if !ctx.Config.RepositoryEnabled(ctx.Event.Org, ctx.Event.Repo) {
		ctx.Result.Skipped = true
		ctx.Result.SkipReason = "repository not configured"
		return pipeline.ErrSkipPipeline
	}

	return nil
}

// isBotAuthor returns true if the given username matches a known bot
// pattern or is in the user-configured bot_users list.
func isBotAuthor(author string, configBotUsers []string) bool {
	if strings.HasSuffix(author, "[bot]") ||
		strings.EqualFold(author, "merge-warden") {
		return true
	}
	for _, u := range configBotUsers {
		if strings.EqualFold(author, u) {
			return true
		}
	}
	return false
}
