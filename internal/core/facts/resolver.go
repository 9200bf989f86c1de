package facts

import (
	"context"
	"fmt"

	"github.com/mergewarden/mergewarden/internal/core/host"
)

// Attribute names rule conditions may reference.
const (
	AttrAuthor           = "author"
	AttrBase             = "base"
	AttrHead             = "head"
	AttrState            = "state"
	AttrTitle            = "title"
	AttrDraft            = "draft"
	AttrLabel            = "label"
	AttrStatusSuccess    = "status-success"
	AttrStatusFailure    = "status-failure"
	AttrStatusPending    = "status-pending"
	AttrApprovedReviews  = "#approved-reviews-by"
	AttrChangesRequested = "#changes-requested-reviews-by"
)

// KnownAttributes lists every attribute the resolver produces. The validate
// command warns when a rule references a name outside this set.
var KnownAttributes = []string{
	AttrAuthor, AttrBase, AttrHead, AttrState, AttrTitle, AttrDraft,
	AttrLabel, AttrStatusSuccess, AttrStatusFailure, AttrStatusPending,
	AttrApprovedReviews, AttrChangesRequested,
}

// Resolver turns hosting-API snapshots into fact sets.
type Resolver struct {
	host host.Host
}

// NewResolver creates a resolver backed by the given hosting API.
func NewResolver(h host.Host) *Resolver {
	return &Resolver{host: h}
}

// Resolve fetches the current state of a pull request and normalizes it
// into a FactSet. It fails with *ResolutionError when the snapshot lacks
// required fields; such events are dropped by the caller.
func (r *Resolver) Resolve(ctx context.Context, repo string, number int) (*FactSet, error) {
	pr, err := r.host.GetPullRequest(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s#%d: %w", repo, number, err)
	}

	checks, err := r.host.ListStatusChecks(ctx, repo, pr.HeadSHA)
	if err != nil {
		return nil, fmt.Errorf("listing status checks for %s@%s: %w", repo, pr.HeadSHA, err)
	}

	reviews, err := r.host.ListReviews(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for %s#%d: %w", repo, number, err)
	}

	return Build(pr, checks, reviews)
}

// Build assembles a FactSet from already-fetched snapshot data. Split out
// from Resolve so evaluation semantics can be tested without a hosting API.
func Build(pr *host.PullRequest, checks []host.StatusCheck, reviews []host.Review) (*FactSet, error) {
	if pr == nil {
		return nil, &ResolutionError{Field: "pull_request", Reason: "missing snapshot"}
	}
	if pr.BaseBranch == "" {
		return nil, &ResolutionError{Field: "base", Reason: "missing base branch"}
	}
	if pr.Author == "" {
		return nil, &ResolutionError{Field: "author", Reason: "missing author"}
	}
	if pr.State == "" {
		return nil, &ResolutionError{Field: "state", Reason: "missing state"}
	}

	state := pr.State
	if pr.Merged {
		state = "merged"
	}

	success, failure, pending := splitChecks(checks)
	approved, changesRequested := countReviews(reviews)

	f := &FactSet{
		Repo:    pr.Repo,
		Number:  pr.Number,
		Title:   pr.Title,
		Body:    pr.Body,
		Author:  pr.Author,
		HeadSHA: pr.HeadSHA,
		State:   state,
		attrs: map[string]Value{
			AttrAuthor:           StringValue(pr.Author),
			AttrBase:             StringValue(pr.BaseBranch),
			AttrState:            StringValue(state),
			AttrTitle:            StringValue(pr.Title),
			AttrDraft:            BoolValue(pr.Draft),
			AttrLabel:            SetValue(pr.Labels),
			AttrStatusSuccess:    SetValue(success),
			AttrStatusFailure:    SetValue(failure),
			AttrStatusPending:    SetValue(pending),
			AttrApprovedReviews:  IntValue(approved),
			AttrChangesRequested: IntValue(changesRequested),
		},
	}
	if pr.HeadBranch != "" {
		f.attrs[AttrHead] = StringValue(pr.HeadBranch)
	}
	return f, nil
}

// splitChecks buckets checks by state after deduplicating repeated reports
// for the same check name, keeping the most recent report. Check names are
// matched exactly and case-sensitively against what rule authors wrote.
func splitChecks(checks []host.StatusCheck) (success, failure, pending []string) {
	latest := make(map[string]host.StatusCheck, len(checks))
	for _, c := range checks {
		if c.Name == "" {
			continue
		}
		prev, seen := latest[c.Name]
		if !seen || c.ReportedAt.After(prev.ReportedAt) {
			latest[c.Name] = c
		}
	}
	for name, c := range latest {
		switch c.State {
		case host.CheckSuccess:
			success = append(success, name)
		case host.CheckFailure:
			failure = append(failure, name)
		default:
			pending = append(pending, name)
		}
	}
	return success, failure, pending
}

// countReviews computes review counts with last-review-per-reviewer
// semantics: a later "changes requested" from the same reviewer revokes
// their earlier approval. Reviews in "commented" state carry no approval
// signal and are ignored.
func countReviews(reviews []host.Review) (approved, changesRequested int) {
	latest := make(map[string]host.Review)
	for _, rv := range reviews {
		if rv.Reviewer == "" || rv.State == host.ReviewCommented {
			continue
		}
		prev, seen := latest[rv.Reviewer]
		if !seen || rv.SubmittedAt.After(prev.SubmittedAt) {
			latest[rv.Reviewer] = rv
		}
	}
	for _, rv := range latest {
		switch rv.State {
		case host.ReviewApproved:
			approved++
		case host.ReviewChangesRequested:
			changesRequested++
		}
	}
	return approved, changesRequested
}
