package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/google/uuid"
	"google.golang.org/grpc"
)

type EndReason string

const (
	EndServerClosed  EndReason = "server_closed"
	EndReconnect     EndReason = "reconnect"
	EndStopped       EndReason = "stopped"
	EndStreamFailed  EndReason = "stream_failed"
	EndConnectFailed EndReason = "connect_failed"
)

// SessionReport describes one run of the instruction stream, or an
// aggregate of consecutive runs when returned by Runner.Start.
type SessionReport struct {
	ID              string        `json:"id"`
	Server          string        `json:"server"`
	Slice           string        `json:"slice"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	EndReason       EndReason     `json:"end_reason"`
	Sessions        int           `json:"sessions"`
	CompletedRounds int           `json:"completed_rounds"`
	FailedRounds    int           `json:"failed_rounds"`
	LastLoss        float64       `json:"last_loss"`
	ReconnectAfter  time.Duration `json:"-"`
}

func (r *SessionReport) merge(other SessionReport) {
	r.Sessions += other.Sessions
	r.CompletedRounds += other.CompletedRounds
	r.FailedRounds += other.FailedRounds
	if other.CompletedRounds > 0 {
		r.LastLoss = other.LastLoss
	}
	r.EndReason = other.EndReason
	r.EndedAt = other.EndedAt
}

// Session owns one Join stream and feeds its instructions to the dispatcher,
// one at a time and in arrival order.
type Session struct {
	id         string
	server     string
	slice      string
	conn       grpc.ClientConnInterface
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewSession(conn grpc.ClientConnInterface, svc Service, server, slice string, logger *slog.Logger) *Session {
	id := uuid.NewString()

	return &Session{
		id:         id,
		server:     server,
		slice:      slice,
		conn:       conn,
		dispatcher: NewDispatcher(svc, logger.With(slog.String("session_id", id))),
		logger:     logger.With(slog.String("session_id", id)),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Run serves the stream until the server closes it, a reconnect is requested,
// ctx is canceled, or the transport fails. Only the last case and a failure to
// open the stream return an error.
func (s *Session) Run(ctx context.Context) (SessionReport, error) {
	report := SessionReport{
		ID:        s.id,
		Server:    s.server,
		Slice:     s.slice,
		StartedAt: time.Now(),
		Sessions:  1,
	}
	end := func(reason EndReason) SessionReport {
		s.dispatcher.Close()
		report.EndReason = reason
		report.EndedAt = time.Now()
		s.logger.Info("session ended",
			slog.String("reason", string(reason)),
			slog.Int("completed_rounds", report.CompletedRounds),
			slog.Int("failed_rounds", report.FailedRounds),
		)

		return report
	}

	ctx, cancel := context.WithCancel(WithSessionID(ctx, s.id))
	defer cancel()

	stream, err := transport.Join(ctx, s.conn)
	if err != nil {
		return end(EndConnectFailed), err
	}
	s.logger.Info("instruction stream opened", slog.String("server", s.server))

	for {
		msg, err := stream.Recv()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return end(EndStopped), nil
		case errors.Is(err, fl.ErrDecode):
			s.logger.Warn("dropped undecodable instruction", slog.Any("error", err))

			continue
		case errors.Is(err, io.EOF):
			return end(EndServerClosed), nil
		default:
			return end(EndStreamFailed), fmt.Errorf("%w: receive: %w", fl.ErrStream, err)
		}

		action := s.dispatcher.Dispatch(ctx, msg)
		s.account(&report, action)

		if action.Reply != nil {
			if err := stream.Send(action.Reply); err != nil {
				if ctx.Err() != nil {
					return end(EndStopped), nil
				}

				return end(EndStreamFailed), fmt.Errorf("%w: send %s result: %w", fl.ErrStream, action.Kind, err)
			}
		}

		if action.Reconnect {
			if err := stream.CloseSend(); err != nil {
				s.logger.Warn("failed to close stream", slog.Any("error", err))
			}
			report.ReconnectAfter = action.Delay

			return end(EndReconnect), nil
		}

		if ctx.Err() != nil {
			return end(EndStopped), nil
		}
	}
}

func (s *Session) account(report *SessionReport, action Action) {
	if action.Kind != transport.KindFit && action.Kind != transport.KindEvaluate {
		return
	}
	if action.Err != nil {
		report.FailedRounds++

		return
	}

	report.CompletedRounds++
	switch {
	case action.Reply.Fit != nil:
		if loss, ok, _ := action.Reply.Fit.Metrics.Float("loss"); ok {
			report.LastLoss = loss
		}
	case action.Reply.Evaluate != nil:
		report.LastLoss = float64(action.Reply.Evaluate.Loss)
	}
}
