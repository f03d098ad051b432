package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
)

// csvHeader matches the column layout of the inspection log.
var csvHeader = []string{
	"DATE", "TIME", "OPERATOR", "ASSET", "ITEM",
	"OUTCOME", "NOTE", "EVIDENCE", "VERDICT", "DURATION",
}

// ExportCSV streams the full inspection log as CSV, oldest first.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.Records(ctx, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	// Records come back newest first; export reads better oldest first.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		row := []string{
			rec.Date, rec.Time, rec.Operator, rec.Asset, rec.Item,
			string(rec.Outcome), rec.Note, rec.EvidenceRef, string(rec.Verdict), rec.Duration,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
