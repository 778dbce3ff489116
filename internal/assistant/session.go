package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/jask/navi/internal/tools"
)

// State is the session lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnected    State = "connected"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

// ErrNothingPending is returned by Confirm and Cancel when no action awaits the user.
var ErrNothingPending = errors.New("assistant: no action awaiting confirmation")

// Pipeline is the tool executor a session drives.
type Pipeline interface {
	Handle(ctx context.Context, name string, args json.RawMessage, callID string) tools.Outcome
	Confirm(ctx context.Context) tools.Response
	Cancel() tools.Response
}

// Hooks receive session activity. Any of them may be nil.
type Hooks struct {
	OnTranscript func(text string)
	OnPending    func(action tools.PendingToolAction)
	OnResponse   func(resp ToolResponse)
	OnState      func(state State, err error)
}

type Session struct {
	channel  Channel
	pipeline Pipeline
	hooks    Hooks
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	err   error
}

func NewSession(ch Channel, pipeline Pipeline, hooks Hooks, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		channel:  ch,
		pipeline: pipeline,
		hooks:    hooks,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the lifecycle state and, in StateError, its cause.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.state, s.err = state, err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("session state changed", zap.String("state", string(state)), zap.Error(err))
	} else {
		s.logger.Debug("session state changed", zap.String("state", string(state)))
	}
	if s.hooks.OnState != nil {
		s.hooks.OnState(state, err)
	}
}

// Run consumes events until the channel closes, fails or ctx ends.
// A transport failure leaves the session in StateError; reconnecting is
// the caller's decision.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnected, nil)
	for {
		ev, err := s.channel.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			s.setState(StateDisconnected, nil)
			return nil
		default:
			s.setState(StateError, err)
			return err
		}

		switch ev.Kind {
		case KindTranscript:
			if s.hooks.OnTranscript != nil {
				s.hooks.OnTranscript(ev.Text)
			}
		case KindToolCall:
			if ev.ToolCall == nil {
				s.logger.Warn("tool call event without payload")
				continue
			}
			if err := s.dispatch(ctx, *ev.ToolCall); err != nil {
				s.setState(StateError, err)
				return err
			}
		case KindError:
			err := fmt.Errorf("assistant: channel error: %s", ev.Text)
			s.setState(StateError, err)
			return err
		case KindClosed:
			s.setState(StateDisconnected, nil)
			return nil
		default:
			s.logger.Debug("ignoring event", zap.String("kind", string(ev.Kind)))
		}
	}
}

func (s *Session) dispatch(ctx context.Context, call ToolCallEvent) error {
	s.logger.Debug("tool call", zap.String("tool", call.ToolName), zap.String("call_id", call.ToolCallID))
	out := s.pipeline.Handle(ctx, call.ToolName, call.Args, call.ToolCallID)
	if out.NeedsConfirmation {
		if s.hooks.OnPending != nil && out.Pending != nil {
			s.hooks.OnPending(*out.Pending)
		}
		return nil
	}
	return s.send(ctx, ToolResponse{ToolCallID: out.ToolCallID, ToolName: string(out.ToolName), Result: out.Result})
}

// Confirm executes the pending action and sends its result to the model.
func (s *Session) Confirm(ctx context.Context) (ToolResponse, error) {
	return s.resolve(ctx, s.pipeline.Confirm(ctx))
}

// Cancel discards the pending action and tells the model it was cancelled.
func (s *Session) Cancel(ctx context.Context) (ToolResponse, error) {
	return s.resolve(ctx, s.pipeline.Cancel())
}

func (s *Session) resolve(ctx context.Context, r tools.Response) (ToolResponse, error) {
	resp := ToolResponse{ToolCallID: r.ToolCallID, ToolName: string(r.ToolName), Result: r.Result}
	if !r.Handled {
		return resp, ErrNothingPending
	}
	if err := s.send(ctx, resp); err != nil {
		s.setState(StateError, err)
		return resp, err
	}
	return resp, nil
}

func (s *Session) send(ctx context.Context, resp ToolResponse) error {
	if err := s.channel.SendToolResponse(ctx, resp); err != nil {
		return fmt.Errorf("send tool response %s: %w", resp.ToolCallID, err)
	}
	if s.hooks.OnResponse != nil {
		s.hooks.OnResponse(resp)
	}
	return nil
}
