// Package models contains domain models for inspectd.
package models

import (
	"fmt"
	"time"
)

// Outcome is the operator's answer to a single checklist item.
type Outcome string

const (
	OutcomePass       Outcome = "PASS"
	OutcomeFlagReview Outcome = "FLAG_REVIEW"
	OutcomeFlagFault  Outcome = "FLAG_FAULT"
)

// Flagged reports whether the outcome opens the documentation sub-flow.
func (o Outcome) Flagged() bool {
	return o == OutcomeFlagReview || o == OutcomeFlagFault
}

// Verdict is the session-wide result derived from all item outcomes.
type Verdict string

const (
	VerdictApproved          Verdict = "APPROVED"
	VerdictNeedsReview       Verdict = "NEEDS_REVIEW"
	VerdictAttentionRequired Verdict = "ATTENTION_REQUIRED"
)

// ItemResult is one finalized checklist answer. Results are append-only and
// keep item order.
type ItemResult struct {
	Item        string    `json:"item"`
	Outcome     Outcome   `json:"outcome"`
	Note        string    `json:"note,omitempty"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// PendingDocumentation buffers a flagged answer while its evidence is being
// collected. It exists only between the flagged choice and the item finalize.
type PendingDocumentation struct {
	Item        string
	Outcome     Outcome
	Note        string
	EvidenceRef string
}

// SessionSummary is the completion descriptor for a finished session.
type SessionSummary struct {
	Operator      string        `json:"operator"`
	OperatorID    string        `json:"operator_id"`
	Asset         string        `json:"asset"`
	Verdict       Verdict       `json:"verdict"`
	PassCount     int           `json:"pass_count"`
	ReviewCount   int           `json:"review_count"`
	FaultCount    int           `json:"fault_count"`
	EvidenceCount int           `json:"evidence_count"`
	Duration      time.Duration `json:"duration"`
	CompletedAt   time.Time     `json:"completed_at"`
	Results       []ItemResult  `json:"results"`
}

// InspectionRecord is one row appended to the inspection log, one per item.
type InspectionRecord struct {
	ID             int64   `db:"id" json:"id"`
	Date           string  `db:"date" json:"date"`
	Time           string  `db:"time" json:"time"`
	Operator       string  `db:"operator" json:"operator"`
	Asset          string  `db:"asset" json:"asset"`
	Item           string  `db:"item" json:"item"`
	Outcome        Outcome `db:"outcome" json:"outcome"`
	Note           string  `db:"note" json:"note"`
	EvidenceRef    string  `db:"evidence_ref" json:"evidence_ref"`
	Verdict        Verdict `db:"verdict" json:"verdict"`
	Duration       string  `db:"duration" json:"duration"`
	CreatedAtEpoch int64   `db:"created_at_epoch" json:"created_at_epoch"`
}

// FormatDuration renders a duration as HH:MM:SS for report rows.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
