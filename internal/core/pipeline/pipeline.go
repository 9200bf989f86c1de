// Package pipeline provides the staged evaluation engine merge-warden runs
// for every incoming event. It defines the Step interface and the Context
// structure that carries an event through resolution, matching and
// dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mergewarden/mergewarden/internal/core/config"
	"github.com/mergewarden/mergewarden/internal/core/facts"
	"github.com/mergewarden/mergewarden/internal/core/rules"
)

// ErrSkipPipeline indicates that the pipeline should stop gracefully.
// This is not an error condition, just an early exit (dropped event,
// disabled repo, no matching rules).
var ErrSkipPipeline = errors.New("skip remaining pipeline steps")

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Name returns the unique identifier for this step.
	Name() string

	// Run executes the step's logic. It should return ErrSkipPipeline to
	// stop the pipeline gracefully, or any other error to indicate
	// failure.
	Run(ctx *Context) error
}

// EventType identifies the kind of repository event being processed.
type EventType string

const (
	EventPullRequest EventType = "pull_request"
	EventCheckRun    EventType = "check_run"
	EventReview      EventType = "pull_request_review"
)

// Event is one inbound repository event referencing a pull request.
type Event struct {
	ID      string    `json:"id,omitempty"`
	Type    EventType `json:"type"`
	Org     string    `json:"org"`
	Repo    string    `json:"repo"`
	Number  int       `json:"pr_number"`
	Action  string    `json:"action,omitempty"` // opened, completed, submitted, ...
	Author  string    `json:"author,omitempty"` // actor that triggered the event
	Payload []byte    `json:"-"`
}

// Validate checks the event carries the fields every stage depends on.
func (e *Event) Validate() error {
	switch e.Type {
	case EventPullRequest, EventCheckRun, EventReview:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Org == "" || e.Repo == "" {
		return fmt.Errorf("event missing repository")
	}
	if e.Number <= 0 {
		return fmt.Errorf("event missing pull request number")
	}
	return nil
}

// Repository returns the "org/repo" form used by the hosting API.
func (e *Event) Repository() string {
	return e.Org + "/" + e.Repo
}

// Result holds the accumulated outcome of processing one event.
type Result struct {
	EventID         string   `json:"event_id,omitempty"`
	Repository      string   `json:"repository"`
	Number          int      `json:"pr_number"`
	Skipped         bool     `json:"skipped,omitempty"`
	SkipReason      string   `json:"skip_reason,omitempty"`
	MatchedRules    []string `json:"matched_rules,omitempty"`
	Suppressed      []string `json:"suppressed_actions,omitempty"`
	CommentsPosted  int      `json:"comments_posted,omitempty"`
	CommentsDeduped int      `json:"comments_deduped,omitempty"`
	TerminalAction  string   `json:"terminal_action,omitempty"`
	TerminalRule    string   `json:"terminal_rule,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Context carries data through the pipeline steps.
type Context struct {
	// Ctx is the Go context for cancellation and timeouts.
	Ctx context.Context

	// Event is the event being processed.
	Event *Event

	// Config is the loaded configuration.
	Config *config.Config

	// Rules is the rule set version this evaluation runs against. It is
	// captured once so an in-flight evaluation never sees a half-reloaded
	// rule set.
	Rules *rules.RuleSet

	// Facts is the attribute snapshot, set by the fact resolver step.
	Facts *facts.FactSet

	// Matches holds the rules whose conditions held, in declaration order.
	Matches []rules.Match

	// Decision is the conflict-resolved action plan.
	Decision *rules.Decision

	// Result accumulates the processing outcome.
	Result *Result

	// DryRun suppresses all side effects when true.
	DryRun bool

	// Metadata allows steps to pass arbitrary data to subsequent steps.
	Metadata map[string]any
}

// NewContext creates a new pipeline context for an event.
func NewContext(ctx context.Context, ev *Event, cfg *config.Config, rs *rules.RuleSet) *Context {
	return &Context{
		Ctx:    ctx,
		Event:  ev,
		Config: cfg,
		Rules:  rs,
		Result: &Result{
			EventID:    ev.ID,
			Repository: ev.Repository(),
			Number:     ev.Number,
		},
		Metadata: make(map[string]any),
	}
}

// Pipeline executes a sequence of steps.
type Pipeline struct {
	steps []Step
}

// New creates a new pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Run executes all steps in order. Stops on the first error (unless it's
// ErrSkipPipeline, which is graceful).
func (p *Pipeline) Run(ctx *Context) error {
	for _, step := range p.steps {
		if err := step.Run(ctx); err != nil {
			if errors.Is(err, ErrSkipPipeline) {
				// Graceful early exit
				return nil
			}
			return fmt.Errorf("step '%s' failed: %w", step.Name(), err)
		}
	}
	return nil
}

// Steps returns the list of steps (for introspection).
func (p *Pipeline) Steps() []Step {
	return p.steps
}
