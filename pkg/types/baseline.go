// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// DirSnapshot is the recorded state of one watched directory.
type DirSnapshot struct {
	// Path is the directory that was scanned.
	Path string `json:"path" yaml:"path"`

	// Count is the number of regular, non-hidden files.
	Count int `json:"count" yaml:"count"`

	// LatestModTime is the newest file modification time, zero when empty.
	LatestModTime time.Time `json:"latest_mod_time" yaml:"latest_mod_time"`

	// LatestFile is the path of the newest file, empty when none.
	LatestFile string `json:"latest_file,omitempty" yaml:"latest_file,omitempty"`
}

// FileBaseline maps an engine name to its recorded directory snapshot.
type FileBaseline struct {
	Dirs       map[string]DirSnapshot `json:"dirs" yaml:"dirs"`
	RecordedAt time.Time              `json:"recorded_at" yaml:"recorded_at"`
}

// ReadinessResult is the outcome of a readiness check.
type ReadinessResult struct {
	Ready bool `json:"ready"`

	// Missing lists engines without new files, and the extra file when absent.
	Missing []string `json:"missing_files"`

	// NewFilesFound maps each engine with new output to its newest file.
	NewFilesFound map[string]string `json:"new_files_found"`

	BaselineCounts map[string]int `json:"baseline_counts"`
	CurrentCounts  map[string]int `json:"current_counts"`

	// LatestFiles maps every engine to its newest file, new or not.
	LatestFiles map[string]string `json:"latest_files"`

	ExtraFile       string `json:"extra_file"`
	ExtraFileExists bool   `json:"extra_file_exists"`
}
