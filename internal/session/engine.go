package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plantops/inspectd/internal/catalog"
	"github.com/plantops/inspectd/pkg/models"
)

// Catalog resolves an asset name to its checklist items.
type Catalog interface {
	Items(asset string) ([]string, error)
}

// EvidenceStore persists evidence photos and returns a stable reference.
type EvidenceStore interface {
	Save(ctx context.Context, operatorID, asset string, image []byte) (string, error)
}

// ResultSink receives finished inspection records.
type ResultSink interface {
	Append(ctx context.Context, rec *models.InspectionRecord) error
}

// Reply is what the engine hands back to the transport layer after an event.
// Prompt is the next thing to show the operator; Summary is set only when a
// session just completed.
type Reply struct {
	Prompt  *Prompt
	Summary *models.SessionSummary
}

// Engine drives checklist sessions through their workflow. Every public
// method is one event transaction: it locks the operator's session, applies
// the event including any I/O, and unlocks. Events from the same operator are
// therefore strictly serialized while different operators never block each
// other.
type Engine struct {
	store    *Store
	catalog  Catalog
	evidence EvidenceStore
	sink     ResultSink
	onEvent  func(Event)
}

// NewEngine wires an engine over its collaborators.
func NewEngine(store *Store, cat Catalog, evidence EvidenceStore, sink ResultSink) *Engine {
	return &Engine{
		store:    store,
		catalog:  cat,
		evidence: evidence,
		sink:     sink,
	}
}

// SetOnEvent registers a callback invoked on session lifecycle events.
// Set it before the engine starts processing; the callback runs inside the
// owning operator's transaction and must not call back into the engine.
func (e *Engine) SetOnEvent(fn func(Event)) {
	e.onEvent = fn
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// StartSession begins a new checklist for the operator. The checklist is
// snapshotted from the catalog at this moment; later catalog edits do not
// affect the running session.
func (e *Engine) StartSession(ctx context.Context, operatorID, operatorName, asset string) (*Prompt, error) {
	items, err := e.catalog.Items(asset)
	if err != nil {
		if errors.Is(err, catalog.ErrAssetNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssetMissing, asset)
		}
		return nil, fmt.Errorf("load checklist for %q: %w", asset, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s has no checklist items", ErrAssetMissing, asset)
	}

	sess, err := e.store.Create(operatorID, operatorName, asset, items)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("operator", operatorName).
		Str("asset", asset).
		Int("items", len(items)).
		Msg("Inspection session started")

	e.emit(Event{
		Type:       EventSessionStarted,
		OperatorID: operatorID,
		Operator:   operatorName,
		Asset:      asset,
		Total:      len(items),
	})
	return itemPrompt(sess), nil
}

// acquire looks up and locks the operator's session. The caller must unlock
// sess.mu. Sessions terminated between lookup and lock are treated as gone.
func (e *Engine) acquire(operatorID string) (*Session, error) {
	sess := e.store.Get(operatorID)
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	sess.mu.Lock()
	if sess.terminated.Load() {
		sess.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

// HandleChoice applies a button-style choice to the operator's session.
// Cancel is accepted in any mode; everything else is valid only in the mode
// that offered it.
func (e *Engine) HandleChoice(ctx context.Context, operatorID, choice string) (*Reply, error) {
	sess, err := e.acquire(operatorID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if choice == ChoiceCancel {
		return e.cancelLocked(sess), nil
	}

	switch sess.Mode {
	case ModeAnswering:
		switch choice {
		case ChoicePass:
			sess.answer(models.OutcomePass)
			e.emitRecorded(sess)
			return e.advanceLocked(ctx, sess)
		case ChoiceReview:
			sess.answer(models.OutcomeFlagReview)
			return &Reply{Prompt: docChoicePrompt(sess)}, nil
		case ChoiceFault:
			sess.answer(models.OutcomeFlagFault)
			return &Reply{Prompt: docChoicePrompt(sess)}, nil
		}
	case ModeChoosingDocumentation:
		switch choice {
		case ChoicePhoto:
			sess.requestPhoto()
			return &Reply{Prompt: photoPrompt(sess)}, nil
		case ChoiceNoteOnly:
			sess.requestNote()
			return &Reply{Prompt: notePrompt(sess)}, nil
		case ChoiceSkip:
			sess.finalizePending()
			e.emitRecorded(sess)
			return e.advanceLocked(ctx, sess)
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrInvalidChoice, choice, sess.Mode)
}

// HandlePhoto attaches an evidence photo to the pending item. Outside
// AWAITING_PHOTO the image is discarded without touching session state. A
// storage failure leaves the session in AWAITING_PHOTO so the operator can
// retry or skip.
func (e *Engine) HandlePhoto(ctx context.Context, operatorID string, image []byte) (*Reply, error) {
	sess, err := e.acquire(operatorID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if sess.Mode != ModeAwaitingPhoto {
		return &Reply{Prompt: notice("No photo is expected right now, the image was discarded.")}, nil
	}

	ref, err := e.evidence.Save(ctx, sess.OperatorID, sess.Asset, image)
	if err != nil {
		log.Error().Err(err).
			Str("operator", sess.OperatorName).
			Str("asset", sess.Asset).
			Msg("Failed to store evidence photo")
		return nil, fmt.Errorf("%w: %v", ErrEvidenceStorage, err)
	}

	sess.attachEvidence(ref)
	return &Reply{Prompt: notePrompt(sess)}, nil
}

// HandleText applies free text to the operator's session. In AWAITING_TEXT it
// is the note for the pending item (or a no-note token). In
// CHOOSING_DOCUMENTATION it is accepted as an implicit note-only
// documentation. In AWAITING_PHOTO a skip token falls back to note entry and
// anything else is rejected with a reminder. In ANSWERING free text does not
// belong to the session at all.
func (e *Engine) HandleText(ctx context.Context, operatorID, text string) (*Reply, error) {
	sess, err := e.acquire(operatorID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	switch sess.Mode {
	case ModeAwaitingText:
		sess.recordNote(text)
		e.emitRecorded(sess)
		return e.advanceLocked(ctx, sess)
	case ModeChoosingDocumentation:
		sess.requestNote()
		sess.recordNote(text)
		e.emitRecorded(sess)
		return e.advanceLocked(ctx, sess)
	case ModeAwaitingPhoto:
		if isSkipPhotoToken(text) {
			sess.requestNote()
			return &Reply{Prompt: notePrompt(sess)}, nil
		}
		return &Reply{Prompt: notice("Waiting for a photo. Send an image, or reply 'skip' to continue without one.")}, nil
	}
	return nil, ErrNotForSession
}

// CancelSession discards the operator's session without recording anything.
func (e *Engine) CancelSession(operatorID string) (*Reply, error) {
	sess, err := e.acquire(operatorID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	return e.cancelLocked(sess), nil
}

func (e *Engine) cancelLocked(sess *Session) *Reply {
	e.store.Delete(sess.OperatorID)

	log.Info().
		Str("operator", sess.OperatorName).
		Str("asset", sess.Asset).
		Int("answered", len(sess.Results)).
		Msg("Inspection session cancelled")

	e.emit(Event{
		Type:       EventSessionCancelled,
		OperatorID: sess.OperatorID,
		Operator:   sess.OperatorName,
		Asset:      sess.Asset,
	})
	return &Reply{Prompt: notice(fmt.Sprintf("Inspection of %s cancelled. Nothing was recorded.", sess.Asset))}
}

// advanceLocked moves to the next item, or finalizes if the checklist is
// exhausted.
func (e *Engine) advanceLocked(ctx context.Context, sess *Session) (*Reply, error) {
	if !sess.Done() {
		return &Reply{Prompt: itemPrompt(sess)}, nil
	}
	return e.finalizeLocked(ctx, sess)
}

// finalizeLocked computes the summary, persists every record, and drops the
// session. The session is removed even when persistence fails: the summary is
// still returned so the transport can show it, alongside the sink error.
func (e *Engine) finalizeLocked(ctx context.Context, sess *Session) (*Reply, error) {
	summary := Summarize(sess, time.Now())

	var sinkErr error
	for _, rec := range BuildRecords(summary) {
		if err := e.sink.Append(ctx, rec); err != nil {
			sinkErr = fmt.Errorf("%w: %v", ErrResultSink, err)
			log.Error().Err(err).
				Str("operator", sess.OperatorName).
				Str("asset", sess.Asset).
				Msg("Failed to persist inspection record")
			break
		}
	}

	e.store.Delete(sess.OperatorID)

	log.Info().
		Str("operator", sess.OperatorName).
		Str("asset", sess.Asset).
		Str("verdict", string(summary.Verdict)).
		Int("pass", summary.PassCount).
		Int("review", summary.ReviewCount).
		Int("fault", summary.FaultCount).
		Msg("Inspection session completed")

	e.emit(Event{
		Type:       EventSessionCompleted,
		OperatorID: sess.OperatorID,
		Operator:   sess.OperatorName,
		Asset:      sess.Asset,
		Verdict:    summary.Verdict,
	})
	return &Reply{Summary: summary}, sinkErr
}

// emitRecorded publishes the most recently appended result.
func (e *Engine) emitRecorded(sess *Session) {
	res := sess.Results[len(sess.Results)-1]
	e.emit(Event{
		Type:       EventItemRecorded,
		OperatorID: sess.OperatorID,
		Operator:   sess.OperatorName,
		Asset:      sess.Asset,
		Item:       res.Item,
		Outcome:    res.Outcome,
		Index:      len(sess.Results),
		Total:      len(sess.Items),
	})
}
