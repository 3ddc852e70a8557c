// Package model contains simple struct definitions shared across packages.
package model

import (
	"encoding/json"
	"time"
)

// BundleStatus describes the archive build lifecycle.
type BundleStatus string

const (
	StatusQueued     BundleStatus = "queued"
	StatusProcessing BundleStatus = "processing"
	StatusCompleted  BundleStatus = "completed"
	StatusFailed     BundleStatus = "failed"
)

// Bundle is one archive build request: a set of uploaded documents bound to
// an exam, built asynchronously into a downloadable zip.
type Bundle struct {
	ID         string          `json:"id"`
	ExamID     string          `json:"examId"`
	RollNumber string          `json:"rollNumber"`
	Policy     string          `json:"policy"`
	Status     BundleStatus    `json:"status"`
	ArchiveKey *string         `json:"archiveKey,omitempty"`
	Manifest   json.RawMessage `json:"manifest,omitempty"`
	Error      *string         `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
