package worker

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/plantops/inspectd/internal/catalog"
	"github.com/plantops/inspectd/internal/commands"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleUpdate is the operator webhook. One inbound update comes in, the
// replies queued while handling it go back in the response body.
func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd commands.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}
	if upd.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required")
		return
	}

	if err := s.handler.Handle(r.Context(), upd); err != nil {
		log.Error().Err(err).Str("operator", upd.OperatorID).Msg("Update handling failed")
		s.outbox.drain(upd.OperatorID)
		writeError(w, http.StatusInternalServerError, "update handling failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": s.outbox.drain(upd.OperatorID),
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	type activeSession struct {
		Operator string `json:"operator"`
		Asset    string `json:"asset"`
		Age      string `json:"age"`
	}

	// Abandoned sessions have no TTL, so surface their age here.
	active := []activeSession{}
	for _, sess := range s.sessions.All() {
		active = append(active, activeSession{
			Operator: sess.OperatorName,
			Asset:    sess.Asset,
			Age:      time.Since(sess.StartedAt).Round(time.Second).String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"ready":           s.ready.Load(),
		"uptime":          time.Since(s.startTime).Round(time.Second).String(),
		"active_sessions": s.sessions.Count(),
		"sessions":        active,
		"assets":          s.catalog.Len(),
		"sse_clients":     s.broadcaster.ClientCount(),
	})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reports.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load report stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	today, err := s.reports.RecordsToday(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to count today's records")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	photos, err := s.evidence.Count()
	if err != nil {
		log.Error().Err(err).Msg("Failed to count evidence photos")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	assets := make(map[string]int)
	for _, asset := range s.catalog.Assets() {
		items, ierr := s.catalog.Items(asset)
		if ierr != nil {
			continue
		}
		assets[asset] = len(items)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records":         stats.TotalRecords,
		"records_today":   today,
		"pass":            stats.PassCount,
		"review":          stats.ReviewCount,
		"fault":           stats.FaultCount,
		"evidence_photos": photos,
		"last_record":     stats.LastRecord,
		"assets":          assets,
		"active_sessions": s.sessions.Count(),
	})
}

func (s *Service) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("inspection_report_%s.csv", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.reports.ExportCSV(r.Context(), w); err != nil {
		// Headers are out, all we can do is log.
		log.Error().Err(err).Msg("CSV export failed mid-stream")
	}
}

// importRequest is the dashboard backup payload: an equipment inventory plus
// an optional per-asset checklist map.
type importRequest struct {
	Equipment []struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Area string `json:"area"`
	} `json:"equipment"`
	Checklists map[string][]string `json:"checklists"`
}

// baselineChecklist is used for imported equipment with no checklist of its
// own, so every asset is inspectable right away.
func baselineChecklist(equipmentType string) []string {
	items := []string{
		"Visual inspection for damage or leaks",
		"Check fasteners and mountings",
		"Verify safety guards are in place",
	}
	if equipmentType != "" {
		items = append(items, fmt.Sprintf("Check %s-specific wear points", strings.ToLower(equipmentType)))
	}
	return items
}

func (s *Service) handleCatalogImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid import payload")
		return
	}
	if len(req.Equipment) == 0 && len(req.Checklists) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to import")
		return
	}

	imported, skipped := 0, 0

	apply := func(asset string, items []string) {
		if asset == "" {
			skipped++
			return
		}
		if err := s.catalog.Replace(asset, items); err != nil {
			log.Warn().Err(err).Str("asset", asset).Msg("Import skipped asset")
			skipped++
			return
		}
		imported++
	}

	seen := make(map[string]bool)
	for _, eq := range req.Equipment {
		seen[eq.Name] = true
		if items, ok := req.Checklists[eq.Name]; ok && len(items) >= catalog.MinItems {
			apply(eq.Name, items)
		} else {
			apply(eq.Name, baselineChecklist(eq.Type))
		}
	}
	// Checklists for assets not in the equipment list still count.
	for asset, items := range req.Checklists {
		if !seen[asset] {
			apply(asset, items)
		}
	}

	log.Info().Int("imported", imported).Int("skipped", skipped).Msg("Catalog import finished")
	writeJSON(w, http.StatusOK, map[string]any{
		"imported":     imported,
		"skipped":      skipped,
		"total_assets": s.catalog.Len(),
	})
}
