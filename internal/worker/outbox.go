package worker

import (
	"context"
	"sync"

	"github.com/plantops/inspectd/internal/session"
	"github.com/plantops/inspectd/pkg/models"
)

// message is one outbound reply queued for an operator while their update is
// being handled. Exactly one field is set.
type message struct {
	Text    string                 `json:"text,omitempty"`
	Prompt  *session.Prompt        `json:"prompt,omitempty"`
	Summary *models.SessionSummary `json:"summary,omitempty"`
}

// outbox implements commands.Responder for the webhook transport: replies are
// collected per operator and drained into the HTTP response once the update
// has been handled.
type outbox struct {
	mu   sync.Mutex
	byOp map[string][]message
}

func newOutbox() *outbox {
	return &outbox{byOp: make(map[string][]message)}
}

func (o *outbox) SendText(ctx context.Context, operatorID, text string) error {
	o.push(operatorID, message{Text: text})
	return nil
}

func (o *outbox) SendPrompt(ctx context.Context, operatorID string, prompt *session.Prompt) error {
	o.push(operatorID, message{Prompt: prompt})
	return nil
}

func (o *outbox) SendSummary(ctx context.Context, operatorID string, summary *models.SessionSummary) error {
	o.push(operatorID, message{Summary: summary})
	return nil
}

func (o *outbox) push(operatorID string, m message) {
	o.mu.Lock()
	o.byOp[operatorID] = append(o.byOp[operatorID], m)
	o.mu.Unlock()
}

// drain removes and returns every queued message for the operator.
func (o *outbox) drain(operatorID string) []message {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.byOp[operatorID]
	delete(o.byOp, operatorID)
	if msgs == nil {
		msgs = []message{}
	}
	return msgs
}
