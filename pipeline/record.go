/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the JSON summary of a run, written for CI pipelines and for
// the tools that publish a release after it was uploaded.
type Record struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Timestamp is when the run finished.
	Timestamp time.Time `json:"timestamp"`

	// Duration is the total run time in human-readable format.
	Duration string `json:"duration"`

	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`

	// UploadTarget is empty when nothing was uploaded.
	UploadTarget string `json:"upload_target,omitempty"`

	Variants []VariantResult `json:"variants"`

	// Skipped lists requested variants that were not found.
	Skipped []string `json:"skipped,omitempty"`

	Stages []RecordStage `json:"stages"`

	// DnpackVersion is the version of dnpack that wrote the record.
	DnpackVersion string `json:"dnpack_version"`
}

// RecordStage is a StageStatus in record form.
type RecordStage struct {
	Stage   Stage  `json:"stage"`
	Variant string `json:"variant,omitempty"`
	Status  Status `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewRecord summarizes results.
func NewRecord(results Results, state RunState, duration time.Duration, toolVersion string) *Record {
	rec := &Record{
		RunID:         results.RunID(),
		Timestamp:     time.Now().UTC(),
		Duration:      duration.Round(time.Millisecond).String(),
		Branch:        state.Branch,
		Commit:        state.Commit,
		UploadTarget:  state.UploadTarget,
		Variants:      results.Variants(),
		Skipped:       results.Skipped(),
		DnpackVersion: toolVersion,
	}

	for _, s := range results.Stages() {
		rs := RecordStage{Stage: s.Stage, Variant: s.Variant, Status: s.Status, Reason: s.Reason}
		if s.Err != nil {
			rs.Error = s.Err.Error()
		}
		rec.Stages = append(rec.Stages, rs)
	}
	return rec
}

// WriteRecord writes the record as indented JSON, readable only by the
// owner.
func WriteRecord(path string, rec *Record) error {
	if path == "" {
		return fmt.Errorf("record path cannot be empty")
	}
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create record directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

// ReadRecord reads a record written by WriteRecord.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &rec, nil
}
