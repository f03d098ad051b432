// Package commands is the turn-based messaging surface of the service. It
// routes inbound operator updates (commands, button choices, free text and
// photos) to the checklist engine and the admin facilities, and talks back
// through a transport-agnostic Responder.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/plantops/inspectd/internal/auth"
	"github.com/plantops/inspectd/internal/catalog"
	"github.com/plantops/inspectd/internal/evidence"
	"github.com/plantops/inspectd/internal/report"
	"github.com/plantops/inspectd/internal/session"
	"github.com/plantops/inspectd/pkg/models"
)

// Responder delivers outbound messages to one operator. Implementations wrap
// the concrete messaging transport.
type Responder interface {
	SendText(ctx context.Context, operatorID, text string) error
	SendPrompt(ctx context.Context, operatorID string, prompt *session.Prompt) error
	SendSummary(ctx context.Context, operatorID string, summary *models.SessionSummary) error
}

// Update is one inbound operator event, already decoded from the transport.
// Exactly one of Command, ChoiceData, Image or Text is meaningful.
type Update struct {
	OperatorID   string `json:"operator_id"`
	OperatorName string `json:"operator_name,omitempty"`
	Command      string `json:"command,omitempty"` // without the leading slash
	Args         string `json:"args,omitempty"`    // text after the command
	ChoiceData   string `json:"choice,omitempty"`  // button payload
	Text         string `json:"text,omitempty"`
	Image        []byte `json:"image,omitempty"` // base64 in transit
}

// Choice payload prefixes for keyboards built by this layer. Anything else is
// forwarded to the engine untouched.
const (
	startPrefix  = "start_"
	removePrefix = "remove_"
)

type convKind int

const (
	convNone convKind = iota
	convNewAssetName
	convNewAssetItems
	convAddAdmin
)

// convState tracks a multi-message admin conversation for one operator.
type convState struct {
	kind  convKind
	asset string
}

// Handler routes operator updates. Safe for concurrent use; per-operator
// conversation state is guarded by mu.
type Handler struct {
	engine   *session.Engine
	catalog  *catalog.Catalog
	evidence *evidence.Store
	reports  *report.Store
	admins   *auth.Oracle
	resp     Responder

	mu    sync.Mutex
	convs map[string]*convState
}

// NewHandler wires a command handler over its collaborators.
func NewHandler(engine *session.Engine, cat *catalog.Catalog, ev *evidence.Store, reports *report.Store, admins *auth.Oracle, resp Responder) *Handler {
	return &Handler{
		engine:   engine,
		catalog:  cat,
		evidence: ev,
		reports:  reports,
		admins:   admins,
		resp:     resp,
		convs:    make(map[string]*convState),
	}
}

// Handle processes one inbound update. User-level problems become messages to
// the operator; the returned error covers transport and internal failures
// only.
func (h *Handler) Handle(ctx context.Context, upd Update) error {
	switch {
	case upd.Command != "":
		return h.handleCommand(ctx, upd)
	case upd.ChoiceData != "":
		return h.handleChoice(ctx, upd)
	case upd.Image != nil:
		return h.handlePhoto(ctx, upd)
	default:
		return h.handleText(ctx, upd)
	}
}

func (h *Handler) handleCommand(ctx context.Context, upd Update) error {
	// A fresh command abandons any half-finished admin conversation.
	h.clearConv(upd.OperatorID)

	switch upd.Command {
	case "start", "help":
		return h.resp.SendText(ctx, upd.OperatorID, helpText(upd.OperatorName))
	case "id":
		return h.resp.SendText(ctx, upd.OperatorID, fmt.Sprintf("Your operator id is %s", upd.OperatorID))
	case "checklist":
		return h.cmdChecklist(ctx, upd)
	case "cancel":
		return h.cmdCancel(ctx, upd)
	case "assets":
		return h.cmdAssets(ctx, upd)
	case "newasset":
		return h.cmdNewAsset(ctx, upd)
	case "delasset":
		return h.cmdDelAsset(ctx, upd)
	case "stats":
		return h.cmdStats(ctx, upd)
	case "photos":
		return h.cmdPhotos(ctx, upd)
	case "addadmin":
		return h.cmdAddAdmin(ctx, upd)
	default:
		return h.resp.SendText(ctx, upd.OperatorID, "Unknown command. Send /help for the list of commands.")
	}
}

func (h *Handler) cmdChecklist(ctx context.Context, upd Update) error {
	assets := h.catalog.Assets()
	if len(assets) == 0 {
		return h.resp.SendText(ctx, upd.OperatorID, "No assets are registered yet. An admin can add one with /newasset.")
	}

	options := make([]session.Option, 0, len(assets))
	for _, asset := range assets {
		options = append(options, session.Option{Label: asset, Data: startPrefix + asset})
	}
	return h.resp.SendPrompt(ctx, upd.OperatorID, &session.Prompt{
		Kind:    session.PromptMenu,
		Text:    "Which asset are you inspecting?",
		Options: options,
	})
}

func (h *Handler) cmdCancel(ctx context.Context, upd Update) error {
	reply, err := h.engine.CancelSession(upd.OperatorID)
	if errors.Is(err, session.ErrNoActiveSession) {
		return h.resp.SendText(ctx, upd.OperatorID, "You have no checklist in progress.")
	}
	if err != nil {
		return err
	}
	return h.deliver(ctx, upd.OperatorID, reply)
}

func (h *Handler) cmdAssets(ctx context.Context, upd Update) error {
	assets := h.catalog.Assets()
	if len(assets) == 0 {
		return h.resp.SendText(ctx, upd.OperatorID, "No assets are registered yet.")
	}

	var b strings.Builder
	b.WriteString("Registered assets:\n")
	for _, asset := range assets {
		items, err := h.catalog.Items(asset)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s (%d items)\n", asset, len(items))
	}
	return h.resp.SendText(ctx, upd.OperatorID, strings.TrimRight(b.String(), "\n"))
}

func (h *Handler) cmdNewAsset(ctx context.Context, upd Update) error {
	if !h.requireAdmin(ctx, upd) {
		return nil
	}
	h.setConv(upd.OperatorID, &convState{kind: convNewAssetName})
	return h.resp.SendText(ctx, upd.OperatorID, "Send the name of the new asset.")
}

func (h *Handler) cmdDelAsset(ctx context.Context, upd Update) error {
	if !h.requireAdmin(ctx, upd) {
		return nil
	}
	assets := h.catalog.Assets()
	if len(assets) == 0 {
		return h.resp.SendText(ctx, upd.OperatorID, "No assets to remove.")
	}

	options := make([]session.Option, 0, len(assets))
	for _, asset := range assets {
		options = append(options, session.Option{Label: asset, Data: removePrefix + asset})
	}
	return h.resp.SendPrompt(ctx, upd.OperatorID, &session.Prompt{
		Kind:    session.PromptMenu,
		Text:    "Which asset should be removed?",
		Options: options,
	})
}

func (h *Handler) cmdStats(ctx context.Context, upd Update) error {
	if !h.requireAdmin(ctx, upd) {
		return nil
	}

	stats, err := h.reports.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load report stats: %w", err)
	}
	today, err := h.reports.RecordsToday(ctx)
	if err != nil {
		return fmt.Errorf("count today's records: %w", err)
	}
	photos, err := h.evidence.Count()
	if err != nil {
		return fmt.Errorf("count evidence photos: %w", err)
	}

	text := fmt.Sprintf(
		"Inspection stats\nRecords: %d (today: %d)\nPass: %d / Review: %d / Fault: %d\nEvidence photos: %d\nAssets: %d\nAdmins: %d",
		stats.TotalRecords, today,
		stats.PassCount, stats.ReviewCount, stats.FaultCount,
		photos, h.catalog.Len(), h.admins.Count(),
	)
	return h.resp.SendText(ctx, upd.OperatorID, text)
}

func (h *Handler) cmdPhotos(ctx context.Context, upd Update) error {
	if !h.requireAdmin(ctx, upd) {
		return nil
	}

	photos, err := h.evidence.Recent(10)
	if err != nil {
		return fmt.Errorf("list evidence photos: %w", err)
	}
	if len(photos) == 0 {
		return h.resp.SendText(ctx, upd.OperatorID, "No evidence photos stored yet.")
	}

	var b strings.Builder
	b.WriteString("Latest evidence photos:\n")
	for _, p := range photos {
		fmt.Fprintf(&b, "- %s (%d bytes)\n", p.Name, p.Size)
	}
	return h.resp.SendText(ctx, upd.OperatorID, strings.TrimRight(b.String(), "\n"))
}

func (h *Handler) cmdAddAdmin(ctx context.Context, upd Update) error {
	if !h.requireAdmin(ctx, upd) {
		return nil
	}
	// `/addadmin <id>` grants directly, bare `/addadmin` opens the conversation.
	if id := strings.TrimSpace(upd.Args); id != "" {
		return h.grantAdmin(ctx, upd.OperatorID, id)
	}
	h.setConv(upd.OperatorID, &convState{kind: convAddAdmin})
	return h.resp.SendText(ctx, upd.OperatorID, "Send the operator id to grant admin rights to. They can find it with /id.")
}

func (h *Handler) grantAdmin(ctx context.Context, byOperatorID, id string) error {
	if err := h.admins.Add(id); err != nil {
		if errors.Is(err, auth.ErrAlreadyAdmin) {
			return h.resp.SendText(ctx, byOperatorID, fmt.Sprintf("Operator %s is already an admin.", id))
		}
		return fmt.Errorf("add admin %q: %w", id, err)
	}
	log.Info().Str("admin", id).Str("by", byOperatorID).Msg("Admin added")
	return h.resp.SendText(ctx, byOperatorID, fmt.Sprintf("Operator %s is now an admin.", id))
}

func (h *Handler) handleChoice(ctx context.Context, upd Update) error {
	switch {
	case strings.HasPrefix(upd.ChoiceData, startPrefix):
		return h.startSession(ctx, upd, strings.TrimPrefix(upd.ChoiceData, startPrefix))
	case strings.HasPrefix(upd.ChoiceData, removePrefix):
		return h.removeAsset(ctx, upd, strings.TrimPrefix(upd.ChoiceData, removePrefix))
	}

	reply, err := h.engine.HandleChoice(ctx, upd.OperatorID, upd.ChoiceData)
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return h.resp.SendText(ctx, upd.OperatorID, "That checklist is no longer active. Start a new one with /checklist.")
	case errors.Is(err, session.ErrInvalidChoice):
		// Stale button press, e.g. tapping an old keyboard. Ignore.
		return nil
	case errors.Is(err, session.ErrResultSink):
		log.Error().Err(err).Str("operator", upd.OperatorID).Msg("Inspection completed but records were not persisted")
		if derr := h.deliver(ctx, upd.OperatorID, reply); derr != nil {
			return derr
		}
		return h.resp.SendText(ctx, upd.OperatorID, "Warning: the inspection log could not be written. Notify an admin.")
	case err != nil:
		return err
	}
	return h.deliver(ctx, upd.OperatorID, reply)
}

func (h *Handler) startSession(ctx context.Context, upd Update, asset string) error {
	prompt, err := h.engine.StartSession(ctx, upd.OperatorID, upd.OperatorName, asset)
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return h.resp.SendText(ctx, upd.OperatorID, "You already have a checklist in progress. Finish it or send /cancel first.")
	case errors.Is(err, session.ErrAssetMissing):
		return h.resp.SendText(ctx, upd.OperatorID, fmt.Sprintf("Asset %q has no checklist. Pick another with /checklist.", asset))
	case err != nil:
		return err
	}
	return h.resp.SendPrompt(ctx, upd.OperatorID, prompt)
}

func (h *Handler) removeAsset(ctx context.Context, upd Update, asset string) error {
	if !h.requireAdmin(ctx, upd) {
		return nil
	}
	if err := h.catalog.Remove(asset); err != nil {
		if errors.Is(err, catalog.ErrAssetNotFound) {
			return h.resp.SendText(ctx, upd.OperatorID, fmt.Sprintf("Asset %q is already gone.", asset))
		}
		return fmt.Errorf("remove asset %q: %w", asset, err)
	}
	log.Info().Str("asset", asset).Str("by", upd.OperatorID).Msg("Asset removed")
	return h.resp.SendText(ctx, upd.OperatorID, fmt.Sprintf("Asset %q and its checklist were removed.", asset))
}

func (h *Handler) handlePhoto(ctx context.Context, upd Update) error {
	reply, err := h.engine.HandlePhoto(ctx, upd.OperatorID, upd.Image)
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return h.resp.SendText(ctx, upd.OperatorID, "No checklist in progress, the photo was discarded.")
	case errors.Is(err, session.ErrEvidenceStorage):
		log.Error().Err(err).Str("operator", upd.OperatorID).Msg("Evidence photo not stored")
		return h.resp.SendText(ctx, upd.OperatorID, "The photo could not be stored. Send it again, or reply 'skip' to continue without one.")
	case err != nil:
		return err
	}
	return h.deliver(ctx, upd.OperatorID, reply)
}

func (h *Handler) handleText(ctx context.Context, upd Update) error {
	if conv := h.getConv(upd.OperatorID); conv != nil {
		return h.continueConv(ctx, upd, conv)
	}

	reply, err := h.engine.HandleText(ctx, upd.OperatorID, upd.Text)
	switch {
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrNotForSession):
		// Chatter outside the checklist flow.
		return nil
	case errors.Is(err, session.ErrResultSink):
		log.Error().Err(err).Str("operator", upd.OperatorID).Msg("Inspection completed but records were not persisted")
		if derr := h.deliver(ctx, upd.OperatorID, reply); derr != nil {
			return derr
		}
		return h.resp.SendText(ctx, upd.OperatorID, "Warning: the inspection log could not be written. Notify an admin.")
	case err != nil:
		return err
	}
	return h.deliver(ctx, upd.OperatorID, reply)
}

// continueConv advances a multi-message admin conversation.
func (h *Handler) continueConv(ctx context.Context, upd Update, conv *convState) error {
	text := strings.TrimSpace(upd.Text)

	switch conv.kind {
	case convNewAssetName:
		if text == "" {
			return h.resp.SendText(ctx, upd.OperatorID, "The asset name cannot be empty. Send it again.")
		}
		h.setConv(upd.OperatorID, &convState{kind: convNewAssetItems, asset: text})
		return h.resp.SendText(ctx, upd.OperatorID,
			fmt.Sprintf("Now send the checklist for %q, one item per line (at least %d items).", text, catalog.MinItems))

	case convNewAssetItems:
		items := splitItems(text)
		if err := h.catalog.Add(conv.asset, items); err != nil {
			switch {
			case errors.Is(err, catalog.ErrTooFewItems):
				return h.resp.SendText(ctx, upd.OperatorID,
					fmt.Sprintf("A checklist needs at least %d items. Send the full list again, one per line.", catalog.MinItems))
			case errors.Is(err, catalog.ErrAssetExists):
				h.clearConv(upd.OperatorID)
				return h.resp.SendText(ctx, upd.OperatorID,
					fmt.Sprintf("Asset %q already exists. Remove it first with /delasset.", conv.asset))
			default:
				return fmt.Errorf("add asset %q: %w", conv.asset, err)
			}
		}
		h.clearConv(upd.OperatorID)
		log.Info().Str("asset", conv.asset).Int("items", len(items)).Str("by", upd.OperatorID).Msg("Asset added")
		return h.resp.SendText(ctx, upd.OperatorID,
			fmt.Sprintf("Asset %q registered with %d checklist items.", conv.asset, len(items)))

	case convAddAdmin:
		h.clearConv(upd.OperatorID)
		if text == "" {
			return h.resp.SendText(ctx, upd.OperatorID, "No operator id received, nothing changed.")
		}
		return h.grantAdmin(ctx, upd.OperatorID, text)
	}

	h.clearConv(upd.OperatorID)
	return nil
}

// deliver sends an engine reply: the summary when a session just finished,
// otherwise the next prompt.
func (h *Handler) deliver(ctx context.Context, operatorID string, reply *session.Reply) error {
	if reply == nil {
		return nil
	}
	if reply.Summary != nil {
		return h.resp.SendSummary(ctx, operatorID, reply.Summary)
	}
	if reply.Prompt != nil {
		return h.resp.SendPrompt(ctx, operatorID, reply.Prompt)
	}
	return nil
}

func (h *Handler) requireAdmin(ctx context.Context, upd Update) bool {
	if h.admins.IsAdmin(upd.OperatorID) {
		return true
	}
	// Best effort; an undelivered refusal is not worth failing the update.
	_ = h.resp.SendText(ctx, upd.OperatorID, "This command is for admins only.")
	return false
}

func (h *Handler) getConv(operatorID string) *convState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.convs[operatorID]
}

func (h *Handler) setConv(operatorID string, conv *convState) {
	h.mu.Lock()
	h.convs[operatorID] = conv
	h.mu.Unlock()
}

func (h *Handler) clearConv(operatorID string) {
	h.mu.Lock()
	delete(h.convs, operatorID)
	h.mu.Unlock()
}

// splitItems turns a one-item-per-line message into a cleaned item list.
func splitItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func helpText(operatorName string) string {
	name := operatorName
	if name == "" {
		name = "operator"
	}
	return fmt.Sprintf(`Hello %s. This is the equipment inspection assistant.

/checklist - start an inspection
/cancel - abandon the current inspection
/assets - list registered assets
/id - show your operator id
/help - this message

Admin commands:
/newasset - register an asset and its checklist
/delasset - remove an asset
/stats - inspection statistics
/photos - latest evidence photos
/addadmin - grant admin rights`, name)
}
