package steps

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"text/template"

	"github.com/mergewarden/mergewarden/internal/core/host"
	"github.com/mergewarden/mergewarden/internal/core/pipeline"
	"github.com/mergewarden/mergewarden/internal/core/rules"
)

// commentMarkerFmt is the hidden marker appended to every posted comment.
// It carries the rule name so repeated event deliveries can recognize a
// comment that was already posted by the same rule.
const commentMarkerFmt = "\n\n<!-- merge-warden: rule=%q -->"

// ActionDispatcher executes the resolved decision against the hosting API.
// Comments dispatch before the terminal action so a close/merge notice
// lands on the still-open pull request. Dispatch is idempotent under
// at-least-once event delivery.
type ActionDispatcher struct {
	host host.Host
}

// NewActionDispatcher creates a new action dispatcher step.
func NewActionDispatcher(deps *pipeline.Dependencies) *ActionDispatcher {
	return &ActionDispatcher{
		host: deps.Host,
	}
}

// Name returns the step name.
func (s *ActionDispatcher) Name() string {
	return "action_dispatcher"
}

// Run dispatches the decision's actions.
func (s *ActionDispatcher) Run(ctx *pipeline.Context) error {
	if ctx.Decision == nil || ctx.Decision.Empty() {
		return nil
	}

	repo := ctx.Event.Repository()
	number := ctx.Event.Number

	// Comments first.
	for _, pc := range ctx.Decision.Comments {
		if err := s.dispatchComment(ctx, repo, number, pc); err != nil {
			var permErr *host.PermanentError
			if errors.As(err, &permErr) {
				// A permanently failed comment must not block the rest of
				// the decision. Record it and keep going.
				log.Printf("[action_dispatcher] comment from rule %q failed permanently: %v", pc.RuleName, err)
				ctx.Result.Errors = append(ctx.Result.Errors, err.Error())
				continue
			}
			return err
		}
	}

	if ctx.Decision.Terminal == nil {
		return nil
	}
	return s.dispatchTerminal(ctx, repo, number, *ctx.Decision.Terminal)
}

func (s *ActionDispatcher) dispatchComment(ctx *pipeline.Context, repo string, number int, pc rules.PlannedComment) error {
	body, err := renderTemplate("comment", pc.Template, ctx)
	if err != nil {
		// A template that parsed at load time but fails to execute is a
		// rule defect; skip the comment, never the evaluation.
		log.Printf("[action_dispatcher] skipping comment from rule %q: %v", pc.RuleName, err)
		ctx.Result.Errors = append(ctx.Result.Errors, err.Error())
		return nil
	}
	marker := fmt.Sprintf(commentMarkerFmt, pc.RuleName)
	full := body + marker

	if ctx.DryRun {
		log.Printf("[action_dispatcher] DRY RUN: would post comment on %s#%d for rule %q:\n%s",
			repo, number, pc.RuleName, body)
		return nil
	}

	// Dedupe: repeating a comment is allowed only when its content differs
	// from the last comment the same rule posted on this pull request.
	last, err := s.lastCommentByRule(ctx, repo, number, pc.RuleName)
	if err != nil {
		return err
	}
	if last == full {
		log.Printf("[action_dispatcher] comment from rule %q already posted on %s#%d, skipping",
			pc.RuleName, repo, number)
		ctx.Result.CommentsDeduped++
		return nil
	}

	if err := s.host.PostComment(ctx.Ctx, repo, number, full); err != nil {
		return err
	}
	log.Printf("[action_dispatcher] posted comment on %s#%d for rule %q", repo, number, pc.RuleName)
	ctx.Result.CommentsPosted++
	return nil
}

// lastCommentByRule returns the body of the newest comment carrying the
// given rule's marker, or "" when the rule has not commented yet.
func (s *ActionDispatcher) lastCommentByRule(ctx *pipeline.Context, repo string, number int, rule string) (string, error) {
	comments, err := s.host.ListComments(ctx.Ctx, repo, number)
	if err != nil {
		return "", err
	}
	marker := fmt.Sprintf(commentMarkerFmt, rule)
	for i := len(comments) - 1; i >= 0; i-- {
		if strings.Contains(comments[i].Body, strings.TrimSpace(marker)) {
			return comments[i].Body, nil
		}
	}
	return "", nil
}

func (s *ActionDispatcher) dispatchTerminal(ctx *pipeline.Context, repo string, number int, t rules.PlannedTerminal) error {
	state := ctx.Facts.State

	if ctx.DryRun {
		log.Printf("[action_dispatcher] DRY RUN: would %s %s#%d for rule %q",
			t.Action.Kind, repo, number, t.RuleName)
		ctx.Result.TerminalAction = string(t.Action.Kind)
		ctx.Result.TerminalRule = t.RuleName
		return nil
	}

	switch t.Action.Kind {
	case rules.ActionClose:
		// Closing an already settled pull request is a no-op success.
		if state != "open" {
			log.Printf("[action_dispatcher] %s#%d already %s, close is a no-op", repo, number, state)
			return nil
		}
		if err := s.host.ClosePullRequest(ctx.Ctx, repo, number); err != nil {
			return err
		}

	case rules.ActionMerge, rules.ActionSquash:
		// Re-dispatching a merge against an already merged PR is a no-op;
		// merging a closed, unmerged PR can never succeed.
		if state == "merged" {
			log.Printf("[action_dispatcher] %s#%d already merged, %s is a no-op", repo, number, t.Action.Kind)
			return nil
		}
		if state == "closed" {
			return host.Permanent("merge",
				fmt.Errorf("%s#%d is closed without being merged", repo, number))
		}
		message := ""
		if t.Action.Message != "" {
			rendered, err := renderTemplate("commit_message", t.Action.Message, ctx)
			if err != nil {
				return host.Permanent("merge", err)
			}
			message = rendered
		}
		if err := s.host.MergePullRequest(ctx.Ctx, repo, number, t.Action.Method, message); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown terminal action %q", t.Action.Kind)
	}

	log.Printf("[action_dispatcher] %s %s#%d (rule %q)", t.Action.Kind, repo, number, t.RuleName)
	ctx.Result.TerminalAction = string(t.Action.Kind)
	ctx.Result.TerminalRule = t.RuleName
	return nil
}

// renderTemplate resolves a message template against the fact set's
// template-visible fields.
func renderTemplate(name, text string, ctx *pipeline.Context) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx.Facts.TemplateData()); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return sb.String(), nil
}
