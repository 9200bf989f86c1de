package facts

import (
	"errors"
	"testing"
	"time"

	"github.com/mergewarden/mergewarden/internal/core/host"
)

func basePR() *host.PullRequest {
	return &host.PullRequest{
		Repo:       "acme/widgets",
		Number:     42,
		Title:      "Fix the frobnicator",
		Body:       "see issue #12",
		Author:     "alice",
		BaseBranch: "develop",
		HeadBranch: "fix-frobnicator",
		HeadSHA:    "abc123",
		State:      "open",
		Labels:     []string{"bug"},
	}
}

func lookupInt(t *testing.T, f *FactSet, attr string) int {
	t.Helper()
	v, ok := f.Lookup(attr)
	if !ok {
		t.Fatalf("attribute %q missing", attr)
	}
	if v.Kind != KindInt {
		t.Fatalf("attribute %q kind = %d, want int", attr, v.Kind)
	}
	return v.Int
}

func lookupSet(t *testing.T, f *FactSet, attr string) map[string]struct{} {
	t.Helper()
	v, ok := f.Lookup(attr)
	if !ok {
		t.Fatalf("attribute %q missing", attr)
	}
	if v.Kind != KindSet {
		t.Fatalf("attribute %q kind = %d, want set", attr, v.Kind)
	}
	return v.Set
}

func TestBuildMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*host.PullRequest)
		wantField string
	}{
		{"missing base", func(pr *host.PullRequest) { pr.BaseBranch = "" }, "base"},
		{"missing author", func(pr *host.PullRequest) { pr.Author = "" }, "author"},
		{"missing state", func(pr *host.PullRequest) { pr.State = "" }, "state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := basePR()
			tt.mutate(pr)
			_, err := Build(pr, nil, nil)
			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("Build error = %v, want *ResolutionError", err)
			}
			if resErr.Field != tt.wantField {
				t.Errorf("ResolutionError.Field = %q, want %q", resErr.Field, tt.wantField)
			}
		})
	}

	if _, err := Build(nil, nil, nil); err == nil {
		t.Error("Build(nil) succeeded, want error")
	}
}

func TestBuildMergedState(t *testing.T) {
	pr := basePR()
	pr.State = "closed"
	pr.Merged = true

	f, err := Build(pr, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.State != "merged" {
		t.Errorf("State = %q, want merged", f.State)
	}
	v, _ := f.Lookup(AttrState)
	if v.Str != "merged" {
		t.Errorf("state attribute = %q, want merged", v.Str)
	}
}

func TestBuildCheckDedupe(t *testing.T) {
	t0 := time.Now()
	checks := []host.StatusCheck{
		{Name: "ci", State: host.CheckFailure, ReportedAt: t0},
		{Name: "ci", State: host.CheckSuccess, ReportedAt: t0.Add(time.Minute)}, // later run supersedes
		{Name: "lint", State: host.CheckSuccess, ReportedAt: t0},
		{Name: "lint", State: host.CheckFailure, ReportedAt: t0.Add(time.Minute)},
		{Name: "deploy", State: host.CheckPending, ReportedAt: t0},
		{Name: "", State: host.CheckSuccess, ReportedAt: t0}, // nameless report is dropped
	}

	f, err := Build(basePR(), checks, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	success := lookupSet(t, f, AttrStatusSuccess)
	failure := lookupSet(t, f, AttrStatusFailure)
	pending := lookupSet(t, f, AttrStatusPending)

	if _, ok := success["ci"]; !ok {
		t.Errorf("ci not in status-success after newer success report")
	}
	if _, ok := failure["ci"]; ok {
		t.Errorf("ci still in status-failure, stale report kept")
	}
	if _, ok := failure["lint"]; !ok {
		t.Errorf("lint not in status-failure after newer failure report")
	}
	if _, ok := pending["deploy"]; !ok {
		t.Errorf("deploy not in status-pending")
	}
	if len(success)+len(failure)+len(pending) != 3 {
		t.Errorf("check buckets hold %d names total, want 3", len(success)+len(failure)+len(pending))
	}
}

func TestBuildReviewCounts(t *testing.T) {
	t0 := time.Now()

	tests := []struct {
		name        string
		reviews     []host.Review
		wantApprove int
		wantChanges int
	}{
		{
			name:        "single approval",
			reviews:     []host.Review{{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0}},
			wantApprove: 1,
		},
		{
			name: "approval revoked by later changes requested",
			reviews: []host.Review{
				{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0},
				{Reviewer: "bob", State: host.ReviewChangesRequested, SubmittedAt: t0.Add(time.Hour)},
			},
			wantChanges: 1,
		},
		{
			name: "changes resolved by later approval",
			reviews: []host.Review{
				{Reviewer: "bob", State: host.ReviewChangesRequested, SubmittedAt: t0},
				{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0.Add(time.Hour)},
			},
			wantApprove: 1,
		},
		{
			name: "distinct reviewers counted once each",
			reviews: []host.Review{
				{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0},
				{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0.Add(time.Minute)},
				{Reviewer: "carol", State: host.ReviewApproved, SubmittedAt: t0},
			},
			wantApprove: 2,
		},
		{
			name: "comments carry no signal",
			reviews: []host.Review{
				{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0},
				{Reviewer: "bob", State: host.ReviewCommented, SubmittedAt: t0.Add(time.Hour)},
				{Reviewer: "carol", State: host.ReviewCommented, SubmittedAt: t0},
			},
			wantApprove: 1,
		},
		{
			name: "dismissed review counts as neither",
			reviews: []host.Review{
				{Reviewer: "bob", State: host.ReviewApproved, SubmittedAt: t0},
				{Reviewer: "bob", State: host.ReviewDismissed, SubmittedAt: t0.Add(time.Hour)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Build(basePR(), nil, tt.reviews)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := lookupInt(t, f, AttrApprovedReviews); got != tt.wantApprove {
				t.Errorf("#approved-reviews-by = %d, want %d", got, tt.wantApprove)
			}
			if got := lookupInt(t, f, AttrChangesRequested); got != tt.wantChanges {
				t.Errorf("#changes-requested-reviews-by = %d, want %d", got, tt.wantChanges)
			}
		})
	}
}

func TestBuildIdentityAndTemplateData(t *testing.T) {
	f, err := Build(basePR(), nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if f.Repo != "acme/widgets" || f.Number != 42 || f.HeadSHA != "abc123" {
		t.Errorf("identity fields = %q #%d @%s", f.Repo, f.Number, f.HeadSHA)
	}

	td := f.TemplateData()
	if td.Author != "alice" || td.Title != "Fix the frobnicator" || td.Number != 42 {
		t.Errorf("TemplateData = %+v", td)
	}

	labels := lookupSet(t, f, AttrLabel)
	if _, ok := labels["bug"]; !ok {
		t.Errorf("label set missing bug")
	}
	if v, ok := f.Lookup(AttrHead); !ok || v.Str != "fix-frobnicator" {
		t.Errorf("head attribute = %v, %v", v, ok)
	}

	if _, ok := f.Lookup("milestone"); ok {
		t.Error("unknown attribute resolved")
	}
}
