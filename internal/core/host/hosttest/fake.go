// Package hosttest provides an in-memory host.Host implementation for
// tests. It tracks side-effect calls, supports per-operation fault
// injection, and detects overlapping access to the same pull request so
// serialization guarantees can be asserted.
package hosttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mergewarden/mergewarden/internal/core/host"
)

// FakeHost is a thread-safe in-memory hosting API.
type FakeHost struct {
	mu sync.Mutex

	prs      map[string]*host.PullRequest
	checks   map[string][]host.StatusCheck // keyed by "repo@sha"
	reviews  map[string][]host.Review
	comments map[string][]host.Comment

	failures map[string]error

	closeCalls int
	mergeCalls int
	postCalls  int

	active  map[string]int
	overlap bool

	// StepDelay is slept inside every call while not holding the lock,
	// widening race windows for serialization tests.
	StepDelay time.Duration

	nextCommentID int64
}

var _ host.Host = (*FakeHost)(nil)

// New creates an empty fake host.
func New() *FakeHost {
	return &FakeHost{
		prs:      make(map[string]*host.PullRequest),
		checks:   make(map[string][]host.StatusCheck),
		reviews:  make(map[string][]host.Review),
		comments: make(map[string][]host.Comment),
		failures: make(map[string]error),
		active:   make(map[string]int),
	}
}

func prKey(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}

// AddPullRequest registers a pull request snapshot.
func (f *FakeHost) AddPullRequest(pr *host.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *pr
	f.prs[prKey(pr.Repo, pr.Number)] = &cp
}

// SetChecks registers the status checks for a commit.
func (f *FakeHost) SetChecks(repo, sha string, checks []host.StatusCheck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks[repo+"@"+sha] = checks
}

// SetReviews registers the reviews for a pull request.
func (f *FakeHost) SetReviews(repo string, number int, reviews []host.Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[prKey(repo, number)] = reviews
}

// Fail makes the named operation return err on every call.
func (f *FakeHost) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// CloseCalls reports how many close calls reached the API.
func (f *FakeHost) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// MergeCalls reports how many merge calls reached the API.
func (f *FakeHost) MergeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mergeCalls
}

// PostCalls reports how many comment posts reached the API.
func (f *FakeHost) PostCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postCalls
}

// Comments returns the comments posted on a pull request.
func (f *FakeHost) Comments(repo string, number int) []host.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Comment(nil), f.comments[prKey(repo, number)]...)
}

// OverlapDetected reports whether two calls for the same pull request ever
// ran concurrently.
func (f *FakeHost) OverlapDetected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

// PullRequest returns the current snapshot, or nil.
func (f *FakeHost) PullRequest(repo string, number int) *host.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prKey(repo, number)]
	if !ok {
		return nil
	}
	cp := *pr
	return &cp
}

func (f *FakeHost) enter(key string) func() {
	f.mu.Lock()
	f.active[key]++
	if f.active[key] > 1 {
		f.overlap = true
	}
	delay := f.StepDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	return func() {
		f.mu.Lock()
		f.active[key]--
		f.mu.Unlock()
	}
}

func (f *FakeHost) failure(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[op]
}

// GetPullRequest implements host.Host.
func (f *FakeHost) GetPullRequest(ctx context.Context, repo string, number int) (*host.PullRequest, error) {
	defer f.enter(prKey(repo, number))()
	if err := f.failure("get_pull_request"); err != nil {
		return nil, err
	}
	pr := f.PullRequest(repo, number)
	if pr == nil {
		return nil, host.Permanent("get_pull_request", fmt.Errorf("%s#%d not found", repo, number))
	}
	return pr, nil
}

// ListStatusChecks implements host.Host.
func (f *FakeHost) ListStatusChecks(ctx context.Context, repo, sha string) ([]host.StatusCheck, error) {
	if err := f.failure("list_status_checks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.StatusCheck(nil), f.checks[repo+"@"+sha]...), nil
}

// ListReviews implements host.Host.
func (f *FakeHost) ListReviews(ctx context.Context, repo string, number int) ([]host.Review, error) {
	if err := f.failure("list_reviews"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Review(nil), f.reviews[prKey(repo, number)]...), nil
}

// ListComments implements host.Host.
func (f *FakeHost) ListComments(ctx context.Context, repo string, number int) ([]host.Comment, error) {
	if err := f.failure("list_comments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Comment(nil), f.comments[prKey(repo, number)]...), nil
}

// PostComment implements host.Host.
func (f *FakeHost) PostComment(ctx context.Context, repo string, number int, body string) error {
	defer f.enter(prKey(repo, number))()
	if err := f.failure("post_comment"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCommentID++
	f.comments[prKey(repo, number)] = append(f.comments[prKey(repo, number)], host.Comment{
		ID:     f.nextCommentID,
		Author: "merge-warden",
		Body:   body,
	})
	f.postCalls++
	return nil
}

// ClosePullRequest implements host.Host.
func (f *FakeHost) ClosePullRequest(ctx context.Context, repo string, number int) error {
	defer f.enter(prKey(repo, number))()
	if err := f.failure("close_pull_request"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prKey(repo, number)]
	if !ok {
		return host.Permanent("close_pull_request", fmt.Errorf("%s#%d not found", repo, number))
	}
	pr.State = "closed"
	f.closeCalls++
	return nil
}

// MergePullRequest implements host.Host.
func (f *FakeHost) MergePullRequest(ctx context.Context, repo string, number int, method host.MergeMethod, message string) error {
	defer f.enter(prKey(repo, number))()
	if err := f.failure("merge_pull_request"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prKey(repo, number)]
	if !ok {
		return host.Permanent("merge_pull_request", fmt.Errorf("%s#%d not found", repo, number))
	}
	if pr.State != "open" && !pr.Merged {
		return host.Permanent("merge_pull_request", fmt.Errorf("%s#%d is not open", repo, number))
	}
	pr.State = "closed"
	pr.Merged = true
	f.mergeCalls++
	return nil
}
