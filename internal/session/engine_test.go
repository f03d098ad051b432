package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/plantops/inspectd/internal/catalog"
	"github.com/plantops/inspectd/pkg/models"
)

type fakeCatalog struct {
	assets map[string][]string
}

func (c *fakeCatalog) Items(asset string) ([]string, error) {
	items, ok := c.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrAssetNotFound, asset)
	}
	return items, nil
}

type fakeEvidence struct {
	mu    sync.Mutex
	saved int
	fail  bool
}

func (e *fakeEvidence) Save(ctx context.Context, operatorID, asset string, image []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return "", errors.New("disk full")
	}
	e.saved++
	return fmt.Sprintf("photo_%s_%s_%d.jpg", asset, operatorID, e.saved), nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []*models.InspectionRecord
	fail    bool
}

func (s *fakeSink) Append(ctx context.Context, rec *models.InspectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database locked")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) all() []*models.InspectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.InspectionRecord(nil), s.records...)
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	store    *Store
	evidence *fakeEvidence
	sink     *fakeSink
	engine   *Engine
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewStore()
	s.evidence = &fakeEvidence{}
	s.sink = &fakeSink{}
	s.engine = NewEngine(s.store, &fakeCatalog{assets: map[string][]string{
		"Pump-1":       {"Check oil level", "Check for unusual noise"},
		"Compressor-2": {"Check belt", "Check pressure", "Check drain"},
	}}, s.evidence, s.sink)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) TestStartSession() {
	prompt, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	s.Equal(PromptItem, prompt.Kind)
	s.Equal("Check oil level", prompt.Item)
	s.Equal(1, prompt.Index)
	s.Equal(2, prompt.Total)
	s.Equal(1, s.store.Count())
}

func (s *EngineSuite) TestStartSessionUnknownAsset() {
	prompt, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Grinder-9")
	s.ErrorIs(err, ErrAssetMissing)
	s.Nil(prompt)
	s.Equal(0, s.store.Count())
}

func (s *EngineSuite) TestStartSessionWhileActive() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	prompt, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Compressor-2")
	s.ErrorIs(err, ErrAlreadyActive)
	s.Nil(prompt)

	// The original session keeps running.
	s.Equal("Pump-1", s.store.Get("op-1").Asset)
}

func (s *EngineSuite) TestAllPassFlow() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	reply, err := s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)
	s.Require().NotNil(reply.Prompt)
	s.Equal("Check for unusual noise", reply.Prompt.Item)
	s.Equal(2, reply.Prompt.Index)

	reply, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)
	s.Require().NotNil(reply.Summary)
	s.Nil(reply.Prompt)

	s.Equal(models.VerdictApproved, reply.Summary.Verdict)
	s.Equal(2, reply.Summary.PassCount)
	s.Equal(0, reply.Summary.ReviewCount)
	s.Equal(0, reply.Summary.FaultCount)

	// Session is gone and every item hit the sink.
	s.Equal(0, s.store.Count())
	s.Len(s.sink.all(), 2)
}

func (s *EngineSuite) TestFaultSkipDocumentation() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	reply, err := s.engine.HandleChoice(s.ctx, "op-1", ChoiceFault)
	s.Require().NoError(err)
	s.Equal(PromptDocChoice, reply.Prompt.Kind)

	reply, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceSkip)
	s.Require().NoError(err)
	s.Equal(PromptItem, reply.Prompt.Kind)

	reply, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)
	s.Require().NotNil(reply.Summary)

	s.Equal(models.VerdictAttentionRequired, reply.Summary.Verdict)
	s.Equal(1, reply.Summary.FaultCount)

	records := s.sink.all()
	s.Require().Len(records, 2)
	s.Equal(models.OutcomeFlagFault, records[0].Outcome)
	s.Empty(records[0].Note)
	s.Empty(records[0].EvidenceRef)
	s.Equal(models.VerdictAttentionRequired, records[0].Verdict)
	s.Equal(models.VerdictAttentionRequired, records[1].Verdict)
}

func (s *EngineSuite) TestReviewWithPhotoAndNoNoteToken() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceReview)
	s.Require().NoError(err)

	reply, err := s.engine.HandleChoice(s.ctx, "op-1", ChoicePhoto)
	s.Require().NoError(err)
	s.Equal(PromptPhoto, reply.Prompt.Kind)

	reply, err = s.engine.HandlePhoto(s.ctx, "op-1", []byte{0xff, 0xd8})
	s.Require().NoError(err)
	s.Equal(PromptNote, reply.Prompt.Kind)

	reply, err = s.engine.HandleText(s.ctx, "op-1", "sin observaciones")
	s.Require().NoError(err)
	s.Equal(PromptItem, reply.Prompt.Kind)

	reply, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)
	s.Require().NotNil(reply.Summary)

	s.Equal(models.VerdictNeedsReview, reply.Summary.Verdict)
	s.Equal(1, reply.Summary.EvidenceCount)

	records := s.sink.all()
	s.Require().Len(records, 2)
	s.Empty(records[0].Note)
	s.NotEmpty(records[0].EvidenceRef)
}

func (s *EngineSuite) TestVerdictPrecedence() {
	tests := []struct {
		name     string
		outcomes []string
		verdict  models.Verdict
	}{
		{"all pass", []string{ChoicePass, ChoicePass, ChoicePass}, models.VerdictApproved},
		{"review only", []string{ChoicePass, ChoiceReview, ChoicePass}, models.VerdictNeedsReview},
		{"fault only", []string{ChoicePass, ChoicePass, ChoiceFault}, models.VerdictAttentionRequired},
		{"fault beats review", []string{ChoiceReview, ChoiceFault, ChoicePass}, models.VerdictAttentionRequired},
	}

	for i, tt := range tests {
		s.Run(tt.name, func() {
			operator := fmt.Sprintf("op-%d", i)
			_, err := s.engine.StartSession(s.ctx, operator, "Op", "Compressor-2")
			s.Require().NoError(err)

			var last *Reply
			for _, choice := range tt.outcomes {
				last, err = s.engine.HandleChoice(s.ctx, operator, choice)
				s.Require().NoError(err)
				if choice != ChoicePass {
					last, err = s.engine.HandleChoice(s.ctx, operator, ChoiceSkip)
					s.Require().NoError(err)
				}
			}

			s.Require().NotNil(last.Summary)
			s.Equal(tt.verdict, last.Summary.Verdict)
		})
	}
}

func (s *EngineSuite) TestPumpScenario() {
	_, err := s.engine.StartSession(s.ctx, "op-7", "Carlos", "Pump-1")
	s.Require().NoError(err)

	_, err = s.engine.HandleChoice(s.ctx, "op-7", ChoicePass)
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-7", ChoiceFault)
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-7", ChoiceNoteOnly)
	s.Require().NoError(err)

	reply, err := s.engine.HandleText(s.ctx, "op-7", "leaking seal")
	s.Require().NoError(err)
	s.Require().NotNil(reply.Summary)

	s.Equal(models.VerdictAttentionRequired, reply.Summary.Verdict)
	s.Equal(1, reply.Summary.FaultCount)
	s.Equal(1, reply.Summary.PassCount)

	s.Require().Len(reply.Summary.Results, 2)
	s.Equal("Check oil level", reply.Summary.Results[0].Item)
	s.Equal(models.OutcomePass, reply.Summary.Results[0].Outcome)
	s.Equal("Check for unusual noise", reply.Summary.Results[1].Item)
	s.Equal(models.OutcomeFlagFault, reply.Summary.Results[1].Outcome)
	s.Equal("leaking seal", reply.Summary.Results[1].Note)
}

func (s *EngineSuite) TestCancelAndRestart() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)

	reply, err := s.engine.CancelSession("op-1")
	s.Require().NoError(err)
	s.Equal(PromptNotice, reply.Prompt.Kind)

	// Nothing was recorded and the operator can start fresh.
	s.Empty(s.sink.all())
	s.Equal(0, s.store.Count())

	_, err = s.engine.StartSession(s.ctx, "op-1", "Alice", "Compressor-2")
	s.NoError(err)
}

func (s *EngineSuite) TestCancelChoiceInAnyMode() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceFault)
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePhoto)
	s.Require().NoError(err)

	reply, err := s.engine.HandleChoice(s.ctx, "op-1", ChoiceCancel)
	s.Require().NoError(err)
	s.Equal(PromptNotice, reply.Prompt.Kind)
	s.Equal(0, s.store.Count())
	s.Empty(s.sink.all())
}

func (s *EngineSuite) TestStrayImageDoesNotMutate() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	reply, err := s.engine.HandlePhoto(s.ctx, "op-1", []byte{0xff, 0xd8})
	s.Require().NoError(err)
	s.Equal(PromptNotice, reply.Prompt.Kind)

	sess := s.store.Get("op-1")
	s.Equal(ModeAnswering, sess.Mode)
	s.Equal(0, sess.CurrentIndex)
	s.Equal(0, s.evidence.saved)
}

func (s *EngineSuite) TestPhotoStorageFailureAllowsRetry() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceFault)
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePhoto)
	s.Require().NoError(err)

	s.evidence.fail = true
	reply, err := s.engine.HandlePhoto(s.ctx, "op-1", []byte{0xff, 0xd8})
	s.ErrorIs(err, ErrEvidenceStorage)
	s.Nil(reply)
	s.Equal(ModeAwaitingPhoto, s.store.Get("op-1").Mode)

	// Retry succeeds once storage recovers.
	s.evidence.fail = false
	reply, err = s.engine.HandlePhoto(s.ctx, "op-1", []byte{0xff, 0xd8})
	s.Require().NoError(err)
	s.Equal(PromptNote, reply.Prompt.Kind)
}

func (s *EngineSuite) TestSkipPhotoByText() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceFault)
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePhoto)
	s.Require().NoError(err)

	// Unrelated text is rejected with a reminder, state unchanged.
	reply, err := s.engine.HandleText(s.ctx, "op-1", "hello?")
	s.Require().NoError(err)
	s.Equal(PromptNotice, reply.Prompt.Kind)
	s.Equal(ModeAwaitingPhoto, s.store.Get("op-1").Mode)

	reply, err = s.engine.HandleText(s.ctx, "op-1", "skip")
	s.Require().NoError(err)
	s.Equal(PromptNote, reply.Prompt.Kind)
	s.Equal(ModeAwaitingText, s.store.Get("op-1").Mode)
}

func (s *EngineSuite) TestTextDuringDocChoiceBecomesNote() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceReview)
	s.Require().NoError(err)

	reply, err := s.engine.HandleText(s.ctx, "op-1", "slight vibration under load")
	s.Require().NoError(err)
	s.Equal(PromptItem, reply.Prompt.Kind)

	sess := s.store.Get("op-1")
	s.Require().Len(sess.Results, 1)
	s.Equal("slight vibration under load", sess.Results[0].Note)
}

func (s *EngineSuite) TestTextWhileAnswering() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	reply, err := s.engine.HandleText(s.ctx, "op-1", "what do I do")
	s.ErrorIs(err, ErrNotForSession)
	s.Nil(reply)

	sess := s.store.Get("op-1")
	s.Equal(ModeAnswering, sess.Mode)
	s.Empty(sess.Results)
}

func (s *EngineSuite) TestEventsWithoutSession() {
	_, err := s.engine.HandleChoice(s.ctx, "ghost", ChoicePass)
	s.ErrorIs(err, ErrNoActiveSession)

	_, err = s.engine.HandleText(s.ctx, "ghost", "hi")
	s.ErrorIs(err, ErrNoActiveSession)

	_, err = s.engine.HandlePhoto(s.ctx, "ghost", []byte{1})
	s.ErrorIs(err, ErrNoActiveSession)

	_, err = s.engine.CancelSession("ghost")
	s.ErrorIs(err, ErrNoActiveSession)
}

func (s *EngineSuite) TestInvalidChoiceForState() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)

	// Documentation choices are meaningless while answering.
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePhoto)
	s.ErrorIs(err, ErrInvalidChoice)

	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoiceFault)
	s.Require().NoError(err)

	// Answer choices are meaningless while choosing documentation.
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.ErrorIs(err, ErrInvalidChoice)

	// The session survives invalid choices.
	s.Equal(ModeChoosingDocumentation, s.store.Get("op-1").Mode)
}

func (s *EngineSuite) TestSinkFailureStillReturnsSummary() {
	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)

	s.sink.fail = true
	reply, err := s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.ErrorIs(err, ErrResultSink)
	s.Require().NotNil(reply)
	s.Require().NotNil(reply.Summary)
	s.Equal(models.VerdictApproved, reply.Summary.Verdict)

	// The session is finished either way.
	s.Equal(0, s.store.Count())
}

func (s *EngineSuite) TestLifecycleEvents() {
	var mu sync.Mutex
	var events []Event
	s.engine.SetOnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	_, err := s.engine.StartSession(s.ctx, "op-1", "Alice", "Pump-1")
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)
	_, err = s.engine.HandleChoice(s.ctx, "op-1", ChoicePass)
	s.Require().NoError(err)

	s.Require().Len(events, 4)
	s.Equal(EventSessionStarted, events[0].Type)
	s.Equal(EventItemRecorded, events[1].Type)
	s.Equal("Check oil level", events[1].Item)
	s.Equal(EventItemRecorded, events[2].Type)
	s.Equal(EventSessionCompleted, events[3].Type)
	s.Equal(models.VerdictApproved, events[3].Verdict)
}

func (s *EngineSuite) TestConcurrentOperators() {
	const operators = 20

	var wg sync.WaitGroup
	for i := 0; i < operators; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			operator := fmt.Sprintf("op-%d", n)
			if _, err := s.engine.StartSession(s.ctx, operator, "Op", "Pump-1"); err != nil {
				s.NoError(err)
				return
			}
			if _, err := s.engine.HandleChoice(s.ctx, operator, ChoicePass); err != nil {
				s.NoError(err)
				return
			}
			reply, err := s.engine.HandleChoice(s.ctx, operator, ChoicePass)
			if s.NoError(err) && s.NotNil(reply) {
				s.NotNil(reply.Summary)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(0, s.store.Count())
	s.Len(s.sink.all(), operators*2)
}
