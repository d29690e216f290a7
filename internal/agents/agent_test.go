package agents

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/domain"
)

type fakeProcessor struct {
	validateErr error
	processErr  error
	panicWith   interface{}
	calls       int
	resets      int
}

func (f *fakeProcessor) ValidateInput(in Input) error {
	return f.validateErr
}

func (f *fakeProcessor) Process(in Input) (*domain.Decision, error) {
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.processErr != nil {
		return nil, f.processErr
	}
	return domain.NewDecision("fake", domain.DecisionApprove, domain.RiskVerdictRecommendation{Approved: true}, 0.9, fmt.Sprintf("call %d", f.calls), nil), nil
}

func (f *fakeProcessor) ResetState() {
	f.resets++
}

func newFake(p *fakeProcessor) *Base {
	return NewBase("fake", p, zerolog.Nop())
}

func TestExecute_Success(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newFake(&fakeProcessor{})
	b.SetClock(func() time.Time { return fixed })

	d := b.Execute(Input{})
	require.NotNil(t, d)

	st := b.Status()
	assert.Equal(t, domain.StatusIdle, st.Status)
	assert.Equal(t, 1, st.DecisionCount)
	assert.Equal(t, 0, st.ErrorCount)
	require.NotNil(t, st.LastExecution)
	assert.Equal(t, fixed, *st.LastExecution)
	assert.Equal(t, fixed, d.Timestamp)
	assert.Equal(t, fixed, b.RecentDecisions(1)[0].Timestamp)
}

func TestExecute_FailuresAreSwallowed(t *testing.T) {
	testCases := []struct {
		name string
		proc *fakeProcessor
	}{
		{"validation", &fakeProcessor{validateErr: domain.ErrInputValidation}},
		{"process", &fakeProcessor{processErr: errors.New("boom")}},
		{"panic", &fakeProcessor{panicWith: "index out of range"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newFake(tc.proc)

			assert.Nil(t, b.Execute(Input{}))
			assert.Nil(t, b.Execute(Input{}))

			st := b.Status()
			assert.Equal(t, domain.StatusError, st.Status)
			assert.Equal(t, 2, st.ErrorCount)
			assert.Equal(t, 0, st.DecisionCount)
			assert.Nil(t, st.LastExecution)
		})
	}
}

func TestExecute_ValidationFailureSkipsProcess(t *testing.T) {
	p := &fakeProcessor{validateErr: domain.ErrInputValidation}
	b := newFake(p)

	b.Execute(Input{})
	assert.Equal(t, 0, p.calls)
}

func TestHistory_Bounded(t *testing.T) {
	b := newFake(&fakeProcessor{})
	b.SetHistoryLimit(3)

	for i := 0; i < 5; i++ {
		b.Execute(Input{})
	}

	recent := b.RecentDecisions(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "call 3", recent[0].Reasoning)
	assert.Equal(t, "call 5", recent[2].Reasoning)

	last := b.RecentDecisions(1)
	require.Len(t, last, 1)
	assert.Equal(t, "call 5", last[0].Reasoning)
}

func TestHistory_DefaultLimit(t *testing.T) {
	b := newFake(&fakeProcessor{})
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		b.Execute(Input{})
	}
	assert.Equal(t, DefaultHistoryLimit, b.Status().DecisionCount)
}

func TestMessages(t *testing.T) {
	b := newFake(&fakeProcessor{})

	out := b.SendMessage("other", "PING", map[string]interface{}{"n": 1})
	assert.Equal(t, "fake", out.Sender)
	assert.Equal(t, "other", out.Recipient)

	b.ReceiveMessage(domain.NewMessage("other", "fake", "PONG", nil))
	assert.Equal(t, 1, b.Status().QueueSize)
	assert.Len(t, b.QueuedMessages(), 1)
}

func TestReset_KeepsHistory(t *testing.T) {
	p := &fakeProcessor{}
	b := newFake(p)
	b.Execute(Input{})
	b.ReceiveMessage(domain.NewMessage("x", "fake", "PING", nil))

	p.processErr = errors.New("boom")
	b.Execute(Input{})
	require.Equal(t, domain.StatusError, b.Status().Status)

	b.Reset()

	st := b.Status()
	assert.Equal(t, domain.StatusIdle, st.Status)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Equal(t, 0, st.QueueSize)
	assert.Equal(t, 1, st.DecisionCount)
	assert.Equal(t, 1, p.resets)
}

func TestDisable(t *testing.T) {
	p := &fakeProcessor{}
	b := newFake(p)

	b.Disable()
	assert.Nil(t, b.Execute(Input{}))
	assert.Equal(t, domain.StatusDisabled, b.Status().Status)
	assert.Equal(t, 0, b.Status().ErrorCount)
	assert.Equal(t, 0, p.calls)

	b.Enable()
	assert.NotNil(t, b.Execute(Input{}))
}
