package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Artifact is the per run debug record. It holds identifiers and URLs only.
type Artifact struct {
	RunID        string                 `json:"run_id"`
	Status       schemas.RunStatus      `json:"status"`
	Scope        schemas.RunScope       `json:"scope,omitempty"`
	AccountID    string                 `json:"account_id,omitempty"`
	AccountName  string                 `json:"account_name,omitempty"`
	BrandName    string                 `json:"brand_name,omitempty"`
	RequestedURL string                 `json:"requested_url,omitempty"`
	ReachedURL   string                 `json:"reached_url,omitempty"`
	StartURL     string                 `json:"start_url,omitempty"`
	Headless     bool                   `json:"headless"`
	LoginTrace   []string               `json:"login_trace,omitempty"`
	Brands       []schemas.BrandOutcome `json:"brands,omitempty"`
	Error        *schemas.ErrorReport   `json:"error,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
}

// NewArtifact builds the artifact for a finished run.
func NewArtifact(cfg schemas.RunConfig, res *schemas.RunResult, finished time.Time) Artifact {
	a := Artifact{
		RunID:       res.RunID,
		Status:      res.Status,
		Scope:       res.Scope,
		AccountID:   cfg.AccountID,
		AccountName: res.AccountName,
		BrandName:   res.BrandName,
		ReachedURL:  res.FinalURL,
		StartURL:    cfg.Automation.StartURL,
		Headless:    cfg.Automation.Headless,
		LoginTrace:  res.LoginTrace,
		Brands:      res.Brands,
		Error:       res.Error,
		StartedAt:   res.StartedAt,
		FinishedAt:  finished.UTC(),
	}
	if cfg.Brand != nil {
		a.RequestedURL = cfg.Brand.BrandURL
	}
	return a
}

// writeArtifact stores the artifact as <dir>/<run id>.json. It is a no-op
// when disabled.
func writeArtifact(cfg config.DebugConfig, rc schemas.RunConfig, res *schemas.RunResult, finished time.Time) error {
	if !cfg.Enabled || cfg.ArtifactDir == "" {
		return nil
	}
	dir, err := homedir.Expand(cfg.ArtifactDir)
	if err != nil {
		return fmt.Errorf("failed to expand artifact dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(NewArtifact(rc, res, finished), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	path := filepath.Join(dir, res.RunID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
