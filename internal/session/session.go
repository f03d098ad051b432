// Package session implements the per-operator checklist workflow engine: the
// session registry, the item/documentation state machine, the event router
// and the result aggregation that produces the final verdict.
package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plantops/inspectd/pkg/models"
)

// Mode is the session's current position in the workflow.
type Mode string

const (
	// ModeAnswering: the operator is answering the current checklist item.
	ModeAnswering Mode = "ANSWERING"
	// ModeChoosingDocumentation: a flagged answer is waiting for the operator
	// to pick how to document it.
	ModeChoosingDocumentation Mode = "CHOOSING_DOCUMENTATION"
	// ModeAwaitingPhoto: the session expects an evidence photo.
	ModeAwaitingPhoto Mode = "AWAITING_PHOTO"
	// ModeAwaitingText: the session expects a free-text note.
	ModeAwaitingText Mode = "AWAITING_TEXT"
)

// noNoteTokens are recognized "no note" answers; any of them records an empty
// note for the pending item.
var noNoteTokens = map[string]struct{}{
	"continue":          {},
	"continuar":         {},
	"no notes":          {},
	"no observations":   {},
	"sin observaciones": {},
	"none":              {},
	"ninguna":           {},
	"no":                {},
}

// skipPhotoTokens let the operator abandon photo collection by text, falling
// back to a note-only documentation of the pending item.
var skipPhotoTokens = map[string]struct{}{
	"skip":       {},
	"skip photo": {},
	"continuar":  {},
}

// Session is one operator's in-flight inspection. All fields are guarded by
// mu, which the engine holds for the duration of each event transaction.
type Session struct {
	OperatorID   string
	OperatorName string
	Asset        string
	Items        []string // immutable snapshot taken at session start
	CurrentIndex int
	Results      []models.ItemResult
	Pending      *models.PendingDocumentation
	StartedAt    time.Time
	Mode         Mode

	mu         sync.Mutex
	terminated atomic.Bool // set when the session leaves the registry
}

// CurrentItem returns the item under inspection. Callers check Done first.
func (s *Session) CurrentItem() string {
	return s.Items[s.CurrentIndex]
}

// Done reports whether every item has been answered and finalized.
func (s *Session) Done() bool {
	return s.CurrentIndex >= len(s.Items)
}

// answer applies the operator's outcome for the current item. PASS finalizes
// immediately; a flagged outcome opens the documentation sub-flow.
func (s *Session) answer(outcome models.Outcome) {
	item := s.CurrentItem()
	if !outcome.Flagged() {
		s.Results = append(s.Results, models.ItemResult{
			Item:       item,
			Outcome:    outcome,
			RecordedAt: time.Now(),
		})
		s.CurrentIndex++
		return
	}

	s.Pending = &models.PendingDocumentation{
		Item:    item,
		Outcome: outcome,
	}
	s.Mode = ModeChoosingDocumentation
}

// requestPhoto moves the documentation sub-flow to photo collection.
func (s *Session) requestPhoto() {
	s.Mode = ModeAwaitingPhoto
}

// requestNote moves the documentation sub-flow to note collection.
func (s *Session) requestNote() {
	s.Mode = ModeAwaitingText
}

// attachEvidence records a stored photo reference and asks for the note.
func (s *Session) attachEvidence(ref string) {
	s.Pending.EvidenceRef = ref
	s.Mode = ModeAwaitingText
}

// recordNote stores the operator's note (empty for a recognized "no note"
// token) and finalizes the pending item.
func (s *Session) recordNote(text string) {
	note := strings.TrimSpace(text)
	if _, ok := noNoteTokens[strings.ToLower(note)]; ok {
		note = ""
	}
	s.Pending.Note = note
	s.finalizePending()
}

// finalizePending appends the pending documentation to the results, advances
// the item index and returns the session to answering mode.
func (s *Session) finalizePending() {
	s.Results = append(s.Results, models.ItemResult{
		Item:        s.Pending.Item,
		Outcome:     s.Pending.Outcome,
		Note:        s.Pending.Note,
		EvidenceRef: s.Pending.EvidenceRef,
		RecordedAt:  time.Now(),
	})
	s.CurrentIndex++
	s.Pending = nil
	s.Mode = ModeAnswering
}

// isNoNoteToken reports whether text is a recognized "no note" answer.
func isNoNoteToken(text string) bool {
	_, ok := noNoteTokens[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// isSkipPhotoToken reports whether text explicitly abandons photo collection.
func isSkipPhotoToken(text string) bool {
	_, ok := skipPhotoTokens[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
