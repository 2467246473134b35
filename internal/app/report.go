package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/genie-ops/genie-backup/internal/backup"
)

// RunReport is the JSON document written after a run so the job scheduler
// can surface the outcome without scraping logs.
type RunReport struct {
	SpaceID       string    `json:"space_id"`
	Stage         string    `json:"stage"`
	Branch        string    `json:"branch,omitempty"`
	Files         []string  `json:"files,omitempty"`
	CommitSHA     string    `json:"commit_sha,omitempty"`
	CommitMessage string    `json:"commit_message,omitempty"`
	Committed     bool      `json:"committed"`
	Pushed        bool      `json:"pushed"`
	Skipped       bool      `json:"skipped"`
	SkippedReason string    `json:"skipped_reason,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (r *Runner) writeRunReport(result backup.Result, runErr error) error {
	path := r.cfg.ReportFile
	if path == "" {
		return nil
	}

	report := RunReport{
		SpaceID:       result.SpaceID,
		Stage:         string(result.Stage),
		Branch:        result.Branch,
		Files:         result.Files,
		CommitSHA:     result.CommitSHA,
		CommitMessage: result.CommitMessage,
		Committed:     result.Committed,
		Pushed:        result.Pushed,
		Skipped:       result.Skipped,
		SkippedReason: result.SkippedReason,
		Success:       runErr == nil,
		CompletedAt:   time.Now().UTC(),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	return nil
}
