package session

import (
	"time"

	"github.com/plantops/inspectd/pkg/models"
)

// Summarize folds a completed session's results into counts and the final
// verdict. It only reads the session; verdict precedence is any fault →
// attention required, else any review → needs review, else approved.
func Summarize(s *Session, completedAt time.Time) *models.SessionSummary {
	summary := &models.SessionSummary{
		Operator:    s.OperatorName,
		OperatorID:  s.OperatorID,
		Asset:       s.Asset,
		Duration:    completedAt.Sub(s.StartedAt),
		CompletedAt: completedAt,
		Results:     make([]models.ItemResult, len(s.Results)),
	}
	copy(summary.Results, s.Results)

	for _, res := range s.Results {
		switch res.Outcome {
		case models.OutcomePass:
			summary.PassCount++
		case models.OutcomeFlagReview:
			summary.ReviewCount++
		case models.OutcomeFlagFault:
			summary.FaultCount++
		}
		if res.EvidenceRef != "" {
			summary.EvidenceCount++
		}
	}

	switch {
	case summary.FaultCount > 0:
		summary.Verdict = models.VerdictAttentionRequired
	case summary.ReviewCount > 0:
		summary.Verdict = models.VerdictNeedsReview
	default:
		summary.Verdict = models.VerdictApproved
	}
	return summary
}

// BuildRecords turns a summary into the ordered inspection-log rows, one per
// item, each annotated with the session-wide verdict and elapsed duration.
func BuildRecords(summary *models.SessionSummary) []*models.InspectionRecord {
	date := summary.CompletedAt.Format("02/01/2006")
	duration := models.FormatDuration(summary.Duration)

	records := make([]*models.InspectionRecord, 0, len(summary.Results))
	for _, res := range summary.Results {
		records = append(records, &models.InspectionRecord{
			Date:        date,
			Time:        res.RecordedAt.Format("15:04:05"),
			Operator:    summary.Operator,
			Asset:       summary.Asset,
			Item:        res.Item,
			Outcome:     res.Outcome,
			Note:        res.Note,
			EvidenceRef: res.EvidenceRef,
			Verdict:     summary.Verdict,
			Duration:    duration,
		})
	}
	return records
}
