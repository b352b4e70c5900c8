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
	"fmt"
	"time"
)

// Stage names one step of a run.
type Stage string

// Stages in the order a run executes them.
const (
	StageResolve          Stage = "resolve-variants"
	StageValidate         Stage = "validate"
	StageVerifyConnection Stage = "verify-connection"
	StageCreateDirs       Stage = "create-release-dirs"
	StageCopyFiles        Stage = "copy-release-files"
	StageBuild            Stage = "build"
	StageUpload           Stage = "upload"
	StageDeleteOldPins    Stage = "delete-old-pins"
	StagePersist          Stage = "persist"
)

// Status is how a stage ended.
type Status string

// Stage outcomes. A failed stage ends the run.
const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// StageStatus records one stage transition.
type StageStatus struct {
	Stage Stage `json:"stage"`
	// Variant is set for stages that run once per variant.
	Variant  string        `json:"variant,omitempty"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

func (s StageStatus) String() string {
	name := string(s.Stage)
	if s.Variant != "" {
		name += "[" + s.Variant + "]"
	}
	switch {
	case s.Err != nil:
		return fmt.Sprintf("%s %s: %v", name, s.Status, s.Err)
	case s.Reason != "":
		return fmt.Sprintf("%s %s: %s", name, s.Status, s.Reason)
	default:
		return fmt.Sprintf("%s %s", name, s.Status)
	}
}
