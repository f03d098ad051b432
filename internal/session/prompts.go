package session

import "fmt"

// PromptKind distinguishes what the surrounding presentation layer should ask
// the operator for next.
type PromptKind string

const (
	// PromptItem asks for the current item's outcome.
	PromptItem PromptKind = "item"
	// PromptDocChoice asks how to document a flagged item.
	PromptDocChoice PromptKind = "doc_choice"
	// PromptPhoto asks for an evidence photo.
	PromptPhoto PromptKind = "photo"
	// PromptNote asks for a free-text note.
	PromptNote PromptKind = "note"
	// PromptNotice carries an informational message with no expected input.
	PromptNotice PromptKind = "notice"
	// PromptMenu is a free-standing option keyboard outside any session,
	// such as the asset picker.
	PromptMenu PromptKind = "menu"
)

// Choice payloads accepted by HandleChoice. These travel through the
// messaging transport as opaque button data.
const (
	ChoicePass     = "answer_pass"
	ChoiceReview   = "answer_review"
	ChoiceFault    = "answer_fault"
	ChoiceCancel   = "cancel_checklist"
	ChoicePhoto    = "doc_photo"
	ChoiceNoteOnly = "doc_note"
	ChoiceSkip     = "doc_skip"
)

// Option is one selectable button offered with a prompt.
type Option struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Prompt is the "what to ask next" descriptor returned to the presentation
// layer.
type Prompt struct {
	Kind    PromptKind `json:"kind"`
	Asset   string     `json:"asset,omitempty"`
	Item    string     `json:"item,omitempty"`
	Index   int        `json:"index,omitempty"`
	Total   int        `json:"total,omitempty"`
	Text    string     `json:"text"`
	Options []Option   `json:"options,omitempty"`
}

// itemPrompt builds the prompt for the session's current item.
func itemPrompt(s *Session) *Prompt {
	return &Prompt{
		Kind:  PromptItem,
		Asset: s.Asset,
		Item:  s.CurrentItem(),
		Index: s.CurrentIndex + 1,
		Total: len(s.Items),
		Text:  fmt.Sprintf("%s [%d/%d]: %s", s.Asset, s.CurrentIndex+1, len(s.Items), s.CurrentItem()),
		Options: []Option{
			{Label: "Pass", Data: ChoicePass},
			{Label: "Flag for review", Data: ChoiceReview},
			{Label: "Flag fault", Data: ChoiceFault},
			{Label: "Cancel checklist", Data: ChoiceCancel},
		},
	}
}

// docChoicePrompt asks how to document the pending flagged item.
func docChoicePrompt(s *Session) *Prompt {
	return &Prompt{
		Kind:  PromptDocChoice,
		Asset: s.Asset,
		Item:  s.Pending.Item,
		Text:  fmt.Sprintf("%s flagged %s. How do you want to document it?", s.Pending.Item, s.Pending.Outcome),
		Options: []Option{
			{Label: "Send photo", Data: ChoicePhoto},
			{Label: "Note only", Data: ChoiceNoteOnly},
			{Label: "Continue without documenting", Data: ChoiceSkip},
		},
	}
}

// photoPrompt asks for the evidence photo.
func photoPrompt(s *Session) *Prompt {
	return &Prompt{
		Kind:  PromptPhoto,
		Asset: s.Asset,
		Item:  s.Pending.Item,
		Text:  fmt.Sprintf("Send a photo of the problem with %s. You can add a note afterwards.", s.Pending.Item),
	}
}

// notePrompt asks for the free-text note.
func notePrompt(s *Session) *Prompt {
	return &Prompt{
		Kind:  PromptNote,
		Asset: s.Asset,
		Item:  s.Pending.Item,
		Text:  fmt.Sprintf("Describe the problem with %s, or reply 'none' to continue without a note.", s.Pending.Item),
	}
}

// notice builds an informational prompt.
func notice(text string) *Prompt {
	return &Prompt{Kind: PromptNotice, Text: text}
}
