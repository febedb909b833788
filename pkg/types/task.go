// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data model shared by the report engine: report
// tasks and their snapshots, research sections, search decisions, readiness
// baselines and configuration.
package types

import "time"

// TaskStatus is the lifecycle state of a report generation task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError || s == TaskCancelled
}

// DocumentFormat is the format of an assembled report.
type DocumentFormat string

const (
	FormatMarkdown DocumentFormat = "markdown"
	FormatHTML     DocumentFormat = "html"
	FormatPDF      DocumentFormat = "pdf"
)

// Artifacts holds blob store names of a completed run's outputs.
type Artifacts struct {
	// Document is the final report as assembled.
	Document string `json:"document" yaml:"document"`

	// HTML is the HTML rendition of the report (same as Document for HTML reports).
	HTML string `json:"html,omitempty" yaml:"html,omitempty"`

	// State is the JSON state snapshot.
	State string `json:"state" yaml:"state"`

	// PDF is set once an export has succeeded.
	PDF string `json:"pdf,omitempty" yaml:"pdf,omitempty"`
}

// ReportTask is the lifecycle record of one report generation run.
type ReportTask struct {
	ID             string
	Query          string
	Family         string
	CustomTemplate string

	Status       TaskStatus
	Progress     int
	Stage        string
	ErrorMessage string

	// Document and Format are populated on Completed.
	Document string
	Format   DocumentFormat

	// Artifacts is nil until the task completes.
	Artifacts *Artifacts

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot returns a read-only view of the task.
func (t *ReportTask) Snapshot() TaskSnapshot {
	s := TaskSnapshot{
		TaskID:       t.ID,
		Query:        t.Query,
		Family:       t.Family,
		Status:       t.Status,
		Progress:     t.Progress,
		Stage:        t.Stage,
		ErrorMessage: t.ErrorMessage,
		HasResult:    t.Document != "",
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.Artifacts != nil {
		a := *t.Artifacts
		s.Artifacts = &a
		s.ReportFileReady = a.Document != ""
	}
	return s
}

// TaskSnapshot is the polled view of a ReportTask.
type TaskSnapshot struct {
	TaskID          string     `json:"task_id"`
	Query           string     `json:"query"`
	Family          string     `json:"family,omitempty"`
	Status          TaskStatus `json:"status"`
	Progress        int        `json:"progress"`
	Stage           string     `json:"stage,omitempty"`
	ErrorMessage    string     `json:"error_message"`
	HasResult       bool       `json:"has_result"`
	ReportFileReady bool       `json:"report_file_ready"`
	Artifacts       *Artifacts `json:"artifacts,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Synthesized marks a status made up for an id that is no longer tracked.
	Synthesized bool `json:"synthesized,omitempty"`
}

// StateSnapshot is the persisted JSON state of a run. It carries section
// metadata only; summaries and search content stay out.
type StateSnapshot struct {
	TaskID      string         `json:"task_id,omitempty"`
	Query       string         `json:"query"`
	Family      string         `json:"family"`
	Template    string         `json:"template,omitempty"`
	Status      TaskStatus     `json:"status"`
	Format      DocumentFormat `json:"format"`
	Reviewed    bool           `json:"reviewed"`
	Sections    []SectionMeta  `json:"sections"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
