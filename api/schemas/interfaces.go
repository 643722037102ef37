package schemas

import "time"

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	// StatusHandoff means the browser was deliberately left open for an operator.
	StatusHandoff RunStatus = "handoff"
)

// OutcomeStatus tags a single brand in a batch.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeError   OutcomeStatus = "error"
)

// BrandOutcome records what happened to one brand of a batch.
type BrandOutcome struct {
	BrandName string        `json:"brand_name"`
	Status    OutcomeStatus `json:"status"`
	URL       string        `json:"url,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Skipped builds an outcome for a brand that had nothing to open.
func Skipped(name string) BrandOutcome {
	return BrandOutcome{BrandName: name, Status: OutcomeSkipped, Reason: "no brand url"}
}

// Reached builds an outcome for a brand whose page loaded.
func Reached(name, url string) BrandOutcome {
	return BrandOutcome{BrandName: name, Status: OutcomeOK, URL: url}
}

// Failed builds an outcome for a brand that could not be opened.
func Failed(name string, err error) BrandOutcome {
	return BrandOutcome{BrandName: name, Status: OutcomeError, Reason: err.Error()}
}

// ErrorReport is the JSON form of a fatal error.
type ErrorReport struct {
	Code    ErrorCode `json:"code"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message"`
}

// RunResult is the structured output of a run.
type RunResult struct {
	RunID       string         `json:"run_id"`
	Status      RunStatus      `json:"status"`
	Scope       RunScope       `json:"scope,omitempty"`
	AccountName string         `json:"account_name,omitempty"`
	BrandName   string         `json:"brand_name,omitempty"`
	FinalURL    string         `json:"final_url,omitempty"`
	LoginTrace  []string       `json:"login_trace,omitempty"`
	Brands      []BrandOutcome `json:"brands,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	DurationMs  int64          `json:"duration_ms"`
	Error       *ErrorReport   `json:"error,omitempty"`
}

// Succeeded reports whether the process should exit zero for this result.
func (r *RunResult) Succeeded() bool {
	return r.Status == StatusCompleted || r.Status == StatusHandoff
}
