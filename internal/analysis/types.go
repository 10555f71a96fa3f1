// Package analysis defines the job lifecycle types shared across subsystems.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Status represents the lifecycle state of an analysis job.
type Status string

// Job status values as presented to clients. The backend reports the same
// states in upper snake case; ParseStatus maps between the two.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNotFound:
		return true
	}
	return false
}

// ParseStatus maps a backend status string onto a Status. Matching is
// case-insensitive so "COMPLETED" and "completed" both resolve.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	case "not_found":
		return StatusNotFound, nil
	default:
		return "", fmt.Errorf("unknown job status %q", raw)
	}
}

// Snapshot is one observed state of a job at a point in time. Result is
// populated iff Status is StatusCompleted; ErrorMessage iff StatusFailed.
// Use the constructors below so invalid combinations cannot be built.
type Snapshot struct {
	JobID        string  `json:"job_id"`
	Status       Status  `json:"status"`
	Result       *Result `json:"result,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// PendingSnapshot builds a snapshot for a job still waiting to start.
func PendingSnapshot(jobID string) Snapshot {
	return Snapshot{JobID: jobID, Status: StatusPending}
}

// ProcessingSnapshot builds a snapshot for a job being analyzed.
func ProcessingSnapshot(jobID string) Snapshot {
	return Snapshot{JobID: jobID, Status: StatusProcessing}
}

// CompletedSnapshot builds the terminal snapshot carrying the result payload.
func CompletedSnapshot(jobID string, result Result) Snapshot {
	return Snapshot{JobID: jobID, Status: StatusCompleted, Result: &result}
}

// FailedSnapshot builds the terminal snapshot carrying the backend error text.
func FailedSnapshot(jobID, message string) Snapshot {
	return Snapshot{JobID: jobID, Status: StatusFailed, ErrorMessage: message}
}

// NotFoundSnapshot builds the synthetic terminal snapshot for an unknown job.
func NotFoundSnapshot(jobID string) Snapshot {
	return Snapshot{JobID: jobID, Status: StatusNotFound}
}

// statusPayload mirrors the backend status response wire shape.
type statusPayload struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"`
	Result       *Result `json:"result"`
	ErrorMessage *string `json:"error_message"`
}

// DecodeStatusPayload parses a backend status body into a Snapshot, rejecting
// combinations the state machine forbids: a completed status without a
// result, or a result and an error message populated together.
func DecodeStatusPayload(data []byte) (Snapshot, error) {
	var payload statusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode status payload: %w", err)
	}
	status, err := ParseStatus(payload.Status)
	if err != nil {
		return Snapshot{}, err
	}
	errText := ""
	if payload.ErrorMessage != nil {
		errText = *payload.ErrorMessage
	}
	if payload.Result != nil && errText != "" {
		return Snapshot{}, errors.New("status payload carries both a result and an error message")
	}
	switch status {
	case StatusCompleted:
		if payload.Result == nil {
			return Snapshot{}, errors.New("completed status payload is missing its result")
		}
		return CompletedSnapshot(payload.JobID, *payload.Result), nil
	case StatusFailed:
		return FailedSnapshot(payload.JobID, errText), nil
	case StatusNotFound:
		return NotFoundSnapshot(payload.JobID), nil
	case StatusProcessing:
		return ProcessingSnapshot(payload.JobID), nil
	default:
		return PendingSnapshot(payload.JobID), nil
	}
}

// ValidateTargetURL enforces the submission input constraint: an absolute
// http or https URL with a host. Anything else is ErrInvalidInput.
func ValidateTargetURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrInvalidInput)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url host is required", ErrInvalidInput)
	}
	return nil
}

// Result is the backend-shaped payload of a completed job. Optional numeric
// fields are pointers so an absent score stays distinguishable from zero.
type Result struct {
	JobID           string        `json:"job_id"`
	URL             string        `json:"url"`
	AnalyzedAt      string        `json:"analyzed_at"`
	Summary         string        `json:"summary"`
	OverallScore    float64       `json:"overall_score"`
	Performance     Performance   `json:"performance"`
	Accessibility   Accessibility `json:"accessibility"`
	Design          Design        `json:"design"`
	Issues          IssueGroups   `json:"issues"`
	PriorityActions []Action      `json:"priority_actions"`
	Screenshots     Screenshots   `json:"screenshots"`
}

// Performance carries the performance score and web vital metrics.
type Performance struct {
	Score   *float64 `json:"score"`
	Metrics Metrics  `json:"metrics"`
}

// Metrics holds optional timings in milliseconds; CLS is a unitless ratio.
type Metrics struct {
	FCP      *float64 `json:"fcp"`
	LCP      *float64 `json:"lcp"`
	CLS      *float64 `json:"cls"`
	LoadTime *float64 `json:"load_time"`
}

// Accessibility carries the optional accessibility score.
type Accessibility struct {
	Score *float64 `json:"score"`
}

// Design carries the design score and responsive quality grade.
type Design struct {
	Score             *float64 `json:"score"`
	ResponsiveQuality string   `json:"responsive_quality"`
}

// IssueGroups buckets raw issues as the backend shipped them.
type IssueGroups struct {
	Code []Issue `json:"code"`
	UI   []Issue `json:"ui"`
}

// Issue is a single finding reported by the backend.
type Issue struct {
	Category       string    `json:"category"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
	Location       *Location `json:"location,omitempty"`
}

// Location is a pixel rectangle attached to UI issues.
type Location struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Action is a recommended remediation step.
type Action struct {
	Action string `json:"action"`
	Impact string `json:"impact"`
	Effort string `json:"effort"`
}

// Screenshots holds opaque artifact references per device class.
type Screenshots struct {
	Desktop string `json:"desktop"`
	Tablet  string `json:"tablet"`
	Mobile  string `json:"mobile"`
}
