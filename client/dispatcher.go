package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/transport"
)

var errUnknownInstruction = errors.New("unknown instruction")

type DispatcherState uint8

const (
	AwaitingInstruction DispatcherState = iota
	Processing
	Closed
)

func (s DispatcherState) String() string {
	switch s {
	case AwaitingInstruction:
		return "AwaitingInstruction"
	case Processing:
		return "Processing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Action is what the session must do after an instruction was handled.
type Action struct {
	// Reply is sent back on the stream when set.
	Reply *transport.ClientMessage
	// Reconnect asks the session to close the stream and reconnect after Delay.
	Reconnect bool
	Delay     time.Duration
	// Kind and Err describe the handled instruction for bookkeeping.
	Kind transport.Kind
	Err  error
}

// Dispatcher maps instructions to service calls. Per-round failures are
// logged and reported in Action.Err, never propagated.
type Dispatcher struct {
	svc    Service
	logger *slog.Logger

	mu    sync.Mutex
	state DispatcherState
}

func NewDispatcher(svc Service, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		svc:    svc,
		logger: logger,
		state:  AwaitingInstruction,
	}
}

func (d *Dispatcher) State() DispatcherState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Close moves the dispatcher to its terminal state.
func (d *Dispatcher) Close() {
	d.setState(Closed)
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg *transport.ServerMessage) Action {
	kind := msg.Kind()

	d.mu.Lock()
	if d.state != AwaitingInstruction {
		state := d.state
		d.mu.Unlock()
		d.logger.Warn("instruction dropped", slog.String("kind", string(kind)), slog.String("state", state.String()))

		return Action{Kind: kind, Err: fl.ErrState}
	}
	d.state = Processing
	d.mu.Unlock()

	action := d.handle(ctx, msg)
	action.Kind = kind

	if action.Reconnect {
		d.setState(Closed)
	} else {
		d.setState(AwaitingInstruction)
	}

	if action.Err != nil {
		d.logger.Error("instruction failed", slog.String("kind", string(kind)), slog.Any("error", action.Err))
	}

	return action
}

func (d *Dispatcher) handle(ctx context.Context, msg *transport.ServerMessage) Action {
	switch msg.Kind() {
	case transport.KindJoin:
		return Action{Err: d.svc.Join(ctx)}
	case transport.KindFit:
		res, err := d.svc.Fit(ctx, *msg.Fit)
		if err != nil {
			return Action{Err: err}
		}

		return Action{Reply: &transport.ClientMessage{Fit: &res}}
	case transport.KindEvaluate:
		res, err := d.svc.Evaluate(ctx, *msg.Evaluate)
		if err != nil {
			return Action{Err: err}
		}

		return Action{Reply: &transport.ClientMessage{Evaluate: &res}}
	case transport.KindGetParameters:
		res, err := d.svc.Parameters(ctx, *msg.GetParameters)
		if err != nil {
			return Action{Err: err}
		}

		return Action{Reply: &transport.ClientMessage{GetParameters: &res}}
	case transport.KindGetProperties:
		res, err := d.svc.Properties(ctx, *msg.GetProperties)
		if err != nil {
			return Action{Err: err}
		}

		return Action{Reply: &transport.ClientMessage{GetProperties: &res}}
	case transport.KindReconnect:
		return Action{
			Reply:     &transport.ClientMessage{Disconnect: &transport.DisconnectRes{Reason: transport.ReasonReconnect}},
			Reconnect: true,
			Delay:     time.Duration(msg.Reconnect.Seconds) * time.Second,
		}
	default:
		return Action{Err: errors.Join(fl.ErrDecode, errUnknownInstruction)}
	}
}

func (d *Dispatcher) setState(s DispatcherState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Closed {
		return
	}
	d.state = s
}
