// Package host defines the narrow interface the engine uses to talk to the
// source-control hosting API, plus the snapshot types it returns. Concrete
// implementations live under internal/integrations.
package host

import (
	"context"
	"time"
)

// CheckState is the normalized outcome of a status check.
type CheckState string

const (
	CheckSuccess CheckState = "success"
	CheckFailure CheckState = "failure"
	CheckPending CheckState = "pending"
)

// ReviewState is the normalized state of a submitted review.
type ReviewState string

const (
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewDismissed        ReviewState = "dismissed"
	ReviewCommented        ReviewState = "commented"
)

// PullRequest is a point-in-time snapshot of a pull request.
type PullRequest struct {
	Repo       string // "org/repo"
	Number     int
	Title      string
	Body       string
	Author     string
	BaseBranch string
	HeadBranch string
	HeadSHA    string
	State      string // "open" or "closed"
	Merged     bool
	Draft      bool
	Labels     []string
}

// StatusCheck is one status report for a commit. The same check name may be
// reported more than once; ReportedAt orders repeated reports.
type StatusCheck struct {
	Name       string
	State      CheckState
	ReportedAt time.Time
}

// Review is one review submitted on a pull request.
type Review struct {
	Reviewer    string
	State       ReviewState
	SubmittedAt time.Time
}

// Comment is an issue-level comment on a pull request.
type Comment struct {
	ID     int64
	Author string
	Body   string
}

// MergeMethod selects how a merge is performed.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// Host is the hosting-API surface the engine depends on. Implementations
// must classify failures as TransientError or PermanentError so the
// dispatcher can decide whether to retry.
type Host interface {
	// GetPullRequest returns the current snapshot of a pull request.
	GetPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error)

	// ListStatusChecks returns every status report for a commit, possibly
	// with repeated names. Callers dedupe.
	ListStatusChecks(ctx context.Context, repo, sha string) ([]StatusCheck, error)

	// ListReviews returns every review submitted on a pull request, in
	// submission order.
	ListReviews(ctx context.Context, repo string, number int) ([]Review, error)

	// ListComments returns the issue comments on a pull request, oldest
	// first.
	ListComments(ctx context.Context, repo string, number int) ([]Comment, error)

	// PostComment posts an issue comment on a pull request.
	PostComment(ctx context.Context, repo string, number int, body string) error

	// ClosePullRequest closes an open pull request. Closing an already
	// closed or merged pull request is a no-op success.
	ClosePullRequest(ctx context.Context, repo string, number int) error

	// MergePullRequest merges an open pull request. Merging an already
	// merged pull request is a no-op success; merging a closed, unmerged
	// one is a permanent failure.
	MergePullRequest(ctx context.Context, repo string, number int, method MergeMethod, message string) error
}
