package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jask/navi/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubPipeline answers search_* at once and stages everything else.
type stubPipeline struct {
	mu      sync.Mutex
	pending *tools.PendingToolAction
	calls   []string
}

func (p *stubPipeline) Handle(_ context.Context, name string, args json.RawMessage, id string) tools.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	out := tools.Outcome{ToolCallID: id, ToolName: tools.Name(name)}
	if !tools.Name(name).Mutating() {
		out.Result = `{"message":"ok","success":true}`
		return out
	}
	p.pending = &tools.PendingToolAction{ToolName: tools.Name(name), ToolCallID: id, Args: args, Description: "do " + name}
	out.NeedsConfirmation = true
	out.Pending = p.pending
	return out
}

func (p *stubPipeline) Confirm(context.Context) tools.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return tools.Response{Result: `{"error":true,"message":"No action awaiting confirmation"}`}
	}
	resp := tools.Response{ToolCallID: p.pending.ToolCallID, ToolName: p.pending.ToolName, Result: `{"message":"done","success":true}`, Handled: true}
	p.pending = nil
	return resp
}

func (p *stubPipeline) Cancel() tools.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return tools.Response{Result: `{"cancelled":false,"message":"No action to cancel","success":true}`}
	}
	resp := tools.Response{ToolCallID: p.pending.ToolCallID, ToolName: p.pending.ToolName, Result: `{"cancelled":true,"message":"cancelled"}`, Handled: true}
	p.pending = nil
	return resp
}

func responses(t *testing.T, out string) []ToolResponse {
	t.Helper()
	var got []ToolResponse
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var r ToolResponse
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		got = append(got, r)
	}
	return got
}

func TestSessionAnswersReadOnlyCallsImmediately(t *testing.T) {
	t.Parallel()
	in := strings.Join([]string{
		`how much is left for food?`,
		`{"kind":"tool_call","toolCall":{"toolName":"search_allocations","args":{"query":"living"},"toolCallId":"c1"}}`,
		`{"toolName":"financial_forecast","toolCallId":"c2"}`,
	}, "\n")
	var out bytes.Buffer
	ch := NewLineChannel(strings.NewReader(in), &out)
	defer ch.Close()

	var transcript []string
	s := NewSession(ch, &stubPipeline{}, Hooks{OnTranscript: func(text string) { transcript = append(transcript, text) }}, nil)
	require.NoError(t, s.Run(context.Background()))

	state, err := s.State()
	require.Equal(t, StateDisconnected, state)
	require.NoError(t, err)
	require.Equal(t, []string{"how much is left for food?"}, transcript)

	got := responses(t, out.String())
	require.Len(t, got, 2)
	require.Equal(t, "c1", got[0].ToolCallID)
	require.Equal(t, "search_allocations", got[0].ToolName)
	require.Equal(t, "c2", got[1].ToolCallID)
}

func TestSessionHoldsMutatingCallsUntilConfirmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	in := `{"toolName":"log_expense","args":{"amount":12,"description":"lunch"},"toolCallId":"c9"}` + "\n" + `{"kind":"closed"}`
	var out bytes.Buffer
	ch := NewLineChannel(strings.NewReader(in), &out)
	defer ch.Close()

	var staged []tools.PendingToolAction
	s := NewSession(ch, &stubPipeline{}, Hooks{OnPending: func(a tools.PendingToolAction) { staged = append(staged, a) }}, nil)
	require.NoError(t, s.Run(ctx))
	require.Len(t, staged, 1)
	require.Equal(t, "c9", staged[0].ToolCallID)
	require.Empty(t, out.String(), "nothing is sent before the user decides")

	resp, err := s.Confirm(ctx)
	require.NoError(t, err)
	require.Equal(t, "c9", resp.ToolCallID)
	require.Len(t, responses(t, out.String()), 1)

	_, err = s.Confirm(ctx)
	require.ErrorIs(t, err, ErrNothingPending)
	_, err = s.Cancel(ctx)
	require.ErrorIs(t, err, ErrNothingPending)
}

func TestSessionConfirmSendsResultForEmptyCallID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var out bytes.Buffer
	ch := NewLineChannel(strings.NewReader(`{"toolName":"log_expense","args":{"amount":12,"description":"lunch"},"toolCallId":""}`), &out)
	defer ch.Close()

	s := NewSession(ch, &stubPipeline{}, Hooks{}, nil)
	require.NoError(t, s.Run(ctx))

	resp, err := s.Confirm(ctx)
	require.NoError(t, err)
	require.Empty(t, resp.ToolCallID)
	got := responses(t, out.String())
	require.Len(t, got, 1)
	require.Equal(t, "log_expense", got[0].ToolName)
	require.JSONEq(t, `{"message":"done","success":true}`, got[0].Result)

	_, err = s.Confirm(ctx)
	require.ErrorIs(t, err, ErrNothingPending)
}

func TestSessionCancelSendsCancelledResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var out bytes.Buffer
	ch := NewLineChannel(strings.NewReader(`{"toolName":"add_debt","args":{"name":"Loan","total_amount":10},"toolCallId":"c4"}`), &out)
	defer ch.Close()

	s := NewSession(ch, &stubPipeline{}, Hooks{}, nil)
	require.NoError(t, s.Run(ctx))

	resp, err := s.Cancel(ctx)
	require.NoError(t, err)
	require.Contains(t, resp.Result, `"cancelled":true`)
	got := responses(t, out.String())
	require.Len(t, got, 1)
	require.Equal(t, "add_debt", got[0].ToolName)
}

type brokenChannel struct{ err error }

func (b brokenChannel) Receive(context.Context) (Event, error) { return Event{}, b.err }
func (b brokenChannel) SendToolResponse(context.Context, ToolResponse) error {
	return b.err
}

func TestSessionTransportErrorIsTerminal(t *testing.T) {
	t.Parallel()
	boom := errors.New("socket reset")

	var states []State
	s := NewSession(brokenChannel{err: boom}, &stubPipeline{}, Hooks{OnState: func(st State, _ error) { states = append(states, st) }}, nil)
	require.ErrorIs(t, s.Run(context.Background()), boom)

	state, err := s.State()
	require.Equal(t, StateError, state)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []State{StateConnected, StateError}, states)
}

func TestSessionChannelErrorEvent(t *testing.T) {
	t.Parallel()
	ch := NewLineChannel(strings.NewReader(`{"kind":"error","text":"quota exceeded"}`), &bytes.Buffer{})
	defer ch.Close()

	s := NewSession(ch, &stubPipeline{}, Hooks{}, nil)
	err := s.Run(context.Background())
	require.ErrorContains(t, err, "quota exceeded")
	state, _ := s.State()
	require.Equal(t, StateError, state)
}

func TestLineChannelStopsOnContext(t *testing.T) {
	t.Parallel()
	pr, pw := io.Pipe()
	defer pw.Close()
	ch := NewLineChannel(pr, &bytes.Buffer{})
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSession(ch, &stubPipeline{}, Hooks{}, nil)
	require.NoError(t, s.Run(ctx))
	state, _ := s.State()
	require.Equal(t, StateDisconnected, state)
}
