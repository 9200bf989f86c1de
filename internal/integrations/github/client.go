package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"

	"github.com/mergewarden/mergewarden/internal/core/host"
)

// Compile-time interface satisfaction check.
var _ host.Host = (*Client)(nil)

// Client implements host.Host against the GitHub REST API. Every call is
// bounded by a timeout and retried with exponential backoff on transient
// failures; the final error is classified as host.TransientError or
// host.PermanentError so the dispatcher knows whether redelivery can help.
type Client struct {
	gh      *github.Client
	timeout time.Duration
	retry   RetryConfig
}

// GetPullRequest returns the current snapshot of a pull request.
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (*host.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, host.Permanent("get_pull_request", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pr, err := withRetry(ctx, c.retry, "get_pull_request", func() (*github.PullRequest, error) {
		pr, _, err := c.gh.PullRequests.Get(ctx, owner, name, number)
		return pr, err
	})
	if err != nil {
		return nil, classify("get_pull_request", err)
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return &host.PullRequest{
		Repo:       repo,
		Number:     number,
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		Author:     pr.GetUser().GetLogin(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		State:      pr.GetState(),
		Merged:     pr.GetMerged(),
		Draft:      pr.GetDraft(),
		Labels:     labels,
	}, nil
}

// ListStatusChecks merges the Checks API and the legacy commit Status API
// into one normalized list. The same check name can appear more than once;
// deduplication is the resolver's job.
func (c *Client) ListStatusChecks(ctx context.Context, repo, sha string) ([]host.StatusCheck, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, host.Permanent("list_status_checks", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var checks []host.StatusCheck

	opts := &github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		runs, resp, err := withRetryResp(ctx, c.retry, "list_check_runs", func() (*github.ListCheckRunsResults, *github.Response, error) {
			return c.gh.Checks.ListCheckRunsForRef(ctx, owner, name, sha, opts)
		})
		if err != nil {
			return nil, classify("list_check_runs", err)
		}
		for _, run := range runs.CheckRuns {
			checks = append(checks, host.StatusCheck{
				Name:       run.GetName(),
				State:      checkRunState(run),
				ReportedAt: checkRunTime(run),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	statusOpts := &github.ListOptions{PerPage: 100}
	for {
		statuses, resp, err := withRetryResp(ctx, c.retry, "list_statuses", func() ([]*github.RepoStatus, *github.Response, error) {
			return c.gh.Repositories.ListStatuses(ctx, owner, name, sha, statusOpts)
		})
		if err != nil {
			return nil, classify("list_statuses", err)
		}
		for _, st := range statuses {
			checks = append(checks, host.StatusCheck{
				Name:       st.GetContext(),
				State:      statusState(st.GetState()),
				ReportedAt: st.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		statusOpts.Page = resp.NextPage
	}

	return checks, nil
}

// ListReviews returns every review submitted on a pull request.
func (c *Client) ListReviews(ctx context.Context, repo string, number int) ([]host.Review, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, host.Permanent("list_reviews", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reviews []host.Review
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := withRetryResp(ctx, c.retry, "list_reviews", func() ([]*github.PullRequestReview, *github.Response, error) {
			return c.gh.PullRequests.ListReviews(ctx, owner, name, number, opts)
		})
		if err != nil {
			return nil, classify("list_reviews", err)
		}
		for _, rv := range page {
			reviews = append(reviews, host.Review{
				Reviewer:    rv.GetUser().GetLogin(),
				State:       reviewState(rv.GetState()),
				SubmittedAt: rv.GetSubmittedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return reviews, nil
}

// ListComments returns the issue comments on a pull request, oldest first.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]host.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, host.Permanent("list_comments", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var comments []host.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		page, resp, err := withRetryResp(ctx, c.retry, "list_comments", func() ([]*github.IssueComment, *github.Response, error) {
			return c.gh.Issues.ListComments(ctx, owner, name, number, opts)
		})
		if err != nil {
			return nil, classify("list_comments", err)
		}
		for _, cm := range page {
			comments = append(comments, host.Comment{
				ID:     cm.GetID(),
				Author: cm.GetUser().GetLogin(),
				Body:   cm.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// PostComment posts an issue comment on a pull request.
func (c *Client) PostComment(ctx context.Context, repo string, number int, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return host.Permanent("post_comment", err)
	}
	if strings.TrimSpace(body) == "" {
		return host.Permanent("post_comment", fmt.Errorf("comment body cannot be empty"))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = withRetry(ctx, c.retry, "post_comment", func() (*github.IssueComment, error) {
		cm, _, err := c.gh.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
			Body: github.String(body),
		})
		return cm, err
	})
	if err != nil {
		return classify("post_comment", err)
	}
	return nil
}

// ClosePullRequest closes an open pull request.
func (c *Client) ClosePullRequest(ctx context.Context, repo string, number int) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return host.Permanent("close_pull_request", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = withRetry(ctx, c.retry, "close_pull_request", func() (*github.PullRequest, error) {
		pr, _, err := c.gh.PullRequests.Edit(ctx, owner, name, number, &github.PullRequest{
			State: github.String("closed"),
		})
		return pr, err
	})
	if err != nil {
		return classify("close_pull_request", err)
	}
	return nil
}

// MergePullRequest merges an open pull request with the given method.
func (c *Client) MergePullRequest(ctx context.Context, repo string, number int, method host.MergeMethod, message string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return host.Permanent("merge_pull_request", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = withRetry(ctx, c.retry, "merge_pull_request", func() (*github.PullRequestMergeResult, error) {
		res, _, err := c.gh.PullRequests.Merge(ctx, owner, name, number, message, &github.PullRequestOptions{
			MergeMethod: string(method),
		})
		return res, err
	})
	if err != nil {
		// 405 here means branch protection or mergeability blocks the
		// merge; retrying cannot fix that.
		return classify("merge_pull_request", err)
	}
	return nil
}

// withRetryResp adapts withRetry to the (value, *Response, error) shape of
// paginated go-github calls.
func withRetryResp[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, *github.Response, error)) (T, *github.Response, error) {
	type pair struct {
		val  T
		resp *github.Response
	}
	p, err := withRetry(ctx, cfg, op, func() (pair, error) {
		val, resp, err := fn()
		return pair{val: val, resp: resp}, err
	})
	return p.val, p.resp, err
}

// classify wraps a final (post-retry) error in the taxonomy the engine
// understands.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isRetryableError(err) {
		return host.Transient(op, err)
	}
	return host.Permanent(op, err)
}

// splitRepo parses "org/repo" into its components.
func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q (expected org/repo)", repo)
	}
	return parts[0], parts[1], nil
}

// checkRunState normalizes a check run's status/conclusion pair.
func checkRunState(run *github.CheckRun) host.CheckState {
	if run.GetStatus() != "completed" {
		return host.CheckPending
	}
	switch run.GetConclusion() {
	case "success":
		return host.CheckSuccess
	case "failure", "timed_out", "cancelled", "action_required":
		return host.CheckFailure
	default:
		// neutral, skipped, stale
		return host.CheckPending
	}
}

func checkRunTime(run *github.CheckRun) time.Time {
	if t := run.GetCompletedAt().Time; !t.IsZero() {
		return t
	}
	return run.GetStartedAt().Time
}

// statusState normalizes a legacy commit status state.
func statusState(state string) host.CheckState {
	switch state {
	case "success":
		return host.CheckSuccess
	case "failure", "error":
		return host.CheckFailure
	default:
		return host.CheckPending
	}
}

// reviewState normalizes a review state string from the API.
func reviewState(state string) host.ReviewState {
	switch state {
	case "APPROVED":
		return host.ReviewApproved
	case "CHANGES_REQUESTED":
		return host.ReviewChangesRequested
	case "DISMISSED":
		return host.ReviewDismissed
	default:
		return host.ReviewCommented
	}
}
