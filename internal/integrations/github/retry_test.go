package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v60/github"

	"github.com/mergewarden/mergewarden/internal/core/host"
)

// fastRetry keeps backoff delays negligible in tests.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		JitterRatio: 0,
	}
}

func respErr(code int) *github.ErrorResponse {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: code, Request: &http.Request{}},
	}
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection reset" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &github.RateLimitError{}, true},
		{"abuse rate limit", &github.AbuseRateLimitError{}, true},
		{"server error", respErr(500), true},
		{"bad gateway", respErr(502), true},
		{"too many requests", respErr(429), true},
		{"not found", respErr(404), false},
		{"unprocessable", respErr(422), false},
		{"method not allowed", respErr(405), false},
		{"network error", fakeNetError{}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
		{"wrapped retryable", errors.Join(errors.New("outer"), respErr(503)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	result, err := withRetry(context.Background(), fastRetry(), "test_op", func() (string, error) {
		calls++
		if calls < 3 {
			return "", respErr(503)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryPermanentFailsFast(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastRetry(), "test_op", func() (string, error) {
		calls++
		return "", respErr(404)
	})
	if err == nil {
		t.Fatal("withRetry succeeded, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (client errors must not be retried)", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	cfg := fastRetry()
	calls := 0
	_, err := withRetry(context.Background(), cfg, "test_op", func() (string, error) {
		calls++
		return "", respErr(500)
	})
	if err == nil {
		t.Fatal("withRetry succeeded, want error")
	}
	if calls != cfg.MaxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, cfg.MaxRetries+1)
	}
	// The cause must survive wrapping so classification still works.
	var apiErr *github.ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Errorf("final error lost its cause: %v", err)
	}
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.BaseDelay = time.Minute // force the wait branch

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := withRetry(ctx, cfg, "test_op", func() (string, error) {
			calls++
			return "", respErr(500)
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled in chain", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("withRetry did not observe cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClassify(t *testing.T) {
	if classify("op", nil) != nil {
		t.Error("classify(nil) != nil")
	}

	var transient *host.TransientError
	if err := classify("op", respErr(503)); !errors.As(err, &transient) {
		t.Errorf("5xx classified as %T, want TransientError", err)
	}
	// Post-retry wrapping must not hide the transient cause.
	wrapped := classify("op", errors.Join(errors.New("op failed after 4 retries"), respErr(503)))
	if !errors.As(wrapped, &transient) {
		t.Errorf("wrapped 5xx classified as %T, want TransientError", wrapped)
	}

	var permanent *host.PermanentError
	if err := classify("op", respErr(404)); !errors.As(err, &permanent) {
		t.Errorf("404 classified as %T, want PermanentError", err)
	}
	if err := classify("op", errors.New("boom")); !errors.As(err, &permanent) {
		t.Errorf("plain error classified as %T, want PermanentError", err)
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		in        string
		owner     string
		name      string
		wantError bool
	}{
		{"acme/widgets", "acme", "widgets", false},
		{"acme/sub/widgets", "acme", "sub/widgets", false},
		{"acme", "", "", true},
		{"/widgets", "", "", true},
		{"acme/", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		owner, name, err := splitRepo(tt.in)
		if (err != nil) != tt.wantError {
			t.Errorf("splitRepo(%q) error = %v, wantError %v", tt.in, err, tt.wantError)
			continue
		}
		if owner != tt.owner || name != tt.name {
			t.Errorf("splitRepo(%q) = %q, %q; want %q, %q", tt.in, owner, name, tt.owner, tt.name)
		}
	}
}

func TestStateNormalization(t *testing.T) {
	runs := []struct {
		status     string
		conclusion string
		want       host.CheckState
	}{
		{"queued", "", host.CheckPending},
		{"in_progress", "", host.CheckPending},
		{"completed", "success", host.CheckSuccess},
		{"completed", "failure", host.CheckFailure},
		{"completed", "timed_out", host.CheckFailure},
		{"completed", "cancelled", host.CheckFailure},
		{"completed", "action_required", host.CheckFailure},
		{"completed", "neutral", host.CheckPending},
		{"completed", "skipped", host.CheckPending},
	}
	for _, tt := range runs {
		run := &github.CheckRun{
			Status:     github.String(tt.status),
			Conclusion: github.String(tt.conclusion),
		}
		if got := checkRunState(run); got != tt.want {
			t.Errorf("checkRunState(%s/%s) = %v, want %v", tt.status, tt.conclusion, got, tt.want)
		}
	}

	statuses := map[string]host.CheckState{
		"success": host.CheckSuccess,
		"failure": host.CheckFailure,
		"error":   host.CheckFailure,
		"pending": host.CheckPending,
	}
	for in, want := range statuses {
		if got := statusState(in); got != want {
			t.Errorf("statusState(%q) = %v, want %v", in, got, want)
		}
	}

	reviews := map[string]host.ReviewState{
		"APPROVED":          host.ReviewApproved,
		"CHANGES_REQUESTED": host.ReviewChangesRequested,
		"DISMISSED":         host.ReviewDismissed,
		"COMMENTED":         host.ReviewCommented,
		"PENDING":           host.ReviewCommented,
	}
	for in, want := range reviews {
		if got := reviewState(in); got != want {
			t.Errorf("reviewState(%q) = %v, want %v", in, got, want)
		}
	}
}
