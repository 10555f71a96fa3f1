package analysis

import (
	"fmt"
	"strings"
)

// bucket identifies where a classified issue lands.
type bucket int

const (
	bucketNone bucket = iota
	bucketCode
	bucketUI
)

// Category tags that route an issue into the code or ui display group.
// Matching is substring based and case-insensitive, so "seo-meta" counts
// as seo and "color-contrast" as color.
var (
	codeCategories = []string{"performance", "accessibility", "seo", "code-quality"}
	uiCategories   = []string{"layout", "typography", "color", "spacing", "imagery"}
)

// NormalizedResult is the stable client-facing result schema: the backend
// payload with deterministic per-record ids, re-bucketed issues, and a
// diagnostics block accounting for anything dropped along the way.
type NormalizedResult struct {
	JobID           string             `json:"job_id"`
	URL             string             `json:"url"`
	AnalyzedAt      string             `json:"analyzed_at"`
	Summary         string             `json:"summary"`
	OverallScore    float64            `json:"overall_score"`
	Performance     Performance        `json:"performance"`
	Accessibility   Accessibility      `json:"accessibility"`
	Design          Design             `json:"design"`
	Issues          NormalizedIssues   `json:"issues"`
	PriorityActions []NormalizedAction `json:"priority_actions"`
	Screenshots     Screenshots        `json:"screenshots"`
	Diagnostics     Diagnostics        `json:"diagnostics"`
}

// NormalizedIssues groups display-ready issues by bucket.
type NormalizedIssues struct {
	Code []NormalizedIssue `json:"code"`
	UI   []NormalizedIssue `json:"ui"`
}

// NormalizedIssue is a raw Issue plus its deterministic id, of the form
// "<bucket>-<index>" with the index scoped to the destination bucket.
type NormalizedIssue struct {
	ID string `json:"id"`
	Issue
}

// NormalizedAction is a raw Action plus its "action-<index>" id.
type NormalizedAction struct {
	ID string `json:"id"`
	Action
}

// Diagnostics accounts for records excluded during normalization so data
// loss stays observable.
type Diagnostics struct {
	DroppedIssues     int      `json:"dropped_issues"`
	DroppedCategories []string `json:"dropped_categories,omitempty"`
}

// Normalize converts a backend result into the client-facing schema. It is
// pure and deterministic: no I/O, no failure path for well-formed input,
// and identical input always yields identical output.
//
// Every raw issue, regardless of which group the backend shipped it in, is
// re-bucketed by category. Ids are assigned in emission order per bucket.
// Issues matching neither category set are dropped from both buckets and
// counted in Diagnostics rather than lost silently.
func Normalize(raw Result) NormalizedResult {
	out := NormalizedResult{
		JobID:         raw.JobID,
		URL:           raw.URL,
		AnalyzedAt:    raw.AnalyzedAt,
		Summary:       raw.Summary,
		OverallScore:  raw.OverallScore,
		Performance:   raw.Performance,
		Accessibility: raw.Accessibility,
		Design:        raw.Design,
		Screenshots:   raw.Screenshots,
	}

	code := make([]NormalizedIssue, 0, len(raw.Issues.Code))
	ui := make([]NormalizedIssue, 0, len(raw.Issues.UI))
	for _, issue := range rawIssues(raw.Issues) {
		switch classifyCategory(issue.Category) {
		case bucketCode:
			code = append(code, NormalizedIssue{
				ID:    fmt.Sprintf("code-%d", len(code)),
				Issue: issue,
			})
		case bucketUI:
			ui = append(ui, NormalizedIssue{
				ID:    fmt.Sprintf("ui-%d", len(ui)),
				Issue: issue,
			})
		default:
			out.Diagnostics.DroppedIssues++
			out.Diagnostics.DroppedCategories = append(out.Diagnostics.DroppedCategories, issue.Category)
		}
	}
	out.Issues = NormalizedIssues{Code: code, UI: ui}

	actions := make([]NormalizedAction, 0, len(raw.PriorityActions))
	for i, action := range raw.PriorityActions {
		actions = append(actions, NormalizedAction{
			ID:     fmt.Sprintf("action-%d", i),
			Action: action,
		})
	}
	out.PriorityActions = actions

	return out
}

// rawIssues flattens the backend groups in a fixed order: code first, then
// ui, so bucket-relative ids stay stable between runs.
func rawIssues(groups IssueGroups) []Issue {
	issues := make([]Issue, 0, len(groups.Code)+len(groups.UI))
	issues = append(issues, groups.Code...)
	issues = append(issues, groups.UI...)
	return issues
}

func classifyCategory(category string) bucket {
	if matchesAny(category, codeCategories) {
		return bucketCode
	}
	if matchesAny(category, uiCategories) {
		return bucketUI
	}
	return bucketNone
}

func matchesAny(category string, tags []string) bool {
	lowered := strings.ToLower(category)
	for _, tag := range tags {
		if strings.Contains(lowered, tag) {
			return true
		}
	}
	return false
}
