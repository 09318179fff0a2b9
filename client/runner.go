package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/storage"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
)

const jitterPercent = 10

// Dialer opens the connection that sessions stream over.
type Dialer func(cfg transport.DialConfig) (*grpc.ClientConn, error)

// Status is the runner's view for the status API.
type Status struct {
	ClientID  string          `json:"client_id"`
	Running   bool            `json:"running"`
	Engine    string          `json:"engine_state"`
	Server    string          `json:"server,omitempty"`
	Slice     string          `json:"slice,omitempty"`
	StartedAt time.Time       `json:"started_at,omitzero"`
	Rounds    TrackerSnapshot `json:"rounds"`
	Last      *SessionReport  `json:"last_report,omitempty"`
}

// Runner drives sessions against one server until it is stopped, the server
// finishes, or reconnect attempts are exhausted.
type Runner struct {
	cfg     Config
	engine  engine.Engine
	svc     Service
	dial    Dialer
	tracker *Tracker
	rounds  storage.RoundRepository
	logger  *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	server    string
	slice     string
	startedAt time.Time
	last      *SessionReport
}

type RunnerOption func(*Runner)

func WithDialer(d Dialer) RunnerOption {
	return func(r *Runner) {
		r.dial = d
	}
}

func WithTracker(t *Tracker) RunnerOption {
	return func(r *Runner) {
		r.tracker = t
	}
}

func WithRoundRepository(repo storage.RoundRepository) RunnerOption {
	return func(r *Runner) {
		r.rounds = repo
	}
}

func NewRunner(cfg Config, eng engine.Engine, svc Service, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:    cfg,
		engine: eng,
		svc:    svc,
		dial:   func(c transport.DialConfig) (*grpc.ClientConn, error) { return transport.Dial(c) },
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start loads the local slice, connects and serves sessions until the run
// ends. A failed first connection is returned as is; later stream failures
// are retried with capped exponential backoff, counting only consecutive
// failures.
func (r *Runner) Start(ctx context.Context, server transport.DialConfig, slice string) (report SessionReport, err error) {
	ctx, err = r.begin(ctx, server, slice)
	if err != nil {
		return SessionReport{}, err
	}
	defer func() {
		if cerr := r.engine.Close(); cerr != nil {
			r.logger.Warn("failed to close engine", slog.Any("error", cerr))
		}
		r.end(report)
	}()

	report = SessionReport{
		Server:    server.Target(),
		Slice:     slice,
		StartedAt: time.Now(),
	}

	if err := r.engine.LoadData(ctx, slice); err != nil {
		return report, err
	}

	conn, err := r.dial(server)
	if err != nil {
		return report, err
	}
	defer conn.Close()

	for {
		var (
			restart bool
			pause   time.Duration
		)
		err = retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
			sess := NewSession(conn, r.svc, report.Server, slice, r.logger)
			sr, err := sess.Run(ctx)
			report.ID = sr.ID
			report.merge(sr)

			switch {
			case errors.Is(err, fl.ErrConnect) && report.Sessions == 1:
				return err
			case err != nil && sr.CompletedRounds > 0:
				r.logger.Warn("session failed after completing rounds, reconnecting", slog.String("session_id", sr.ID), slog.Any("error", err))
				restart = true
				pause = r.cfg.ReconnectBaseDelay

				return nil
			case err != nil:
				r.logger.Warn("session failed, retrying", slog.String("session_id", sr.ID), slog.Any("error", err))

				return retry.RetryableError(err)
			case sr.EndReason == EndReconnect:
				r.logger.Info("server requested reconnect", slog.Duration("delay", sr.ReconnectAfter))
				if !sleep(ctx, sr.ReconnectAfter) {
					report.EndReason = EndStopped

					return nil
				}
				restart = true

				return nil
			default:
				return nil
			}
		})
		if err != nil || !restart {
			break
		}
		if !sleep(ctx, pause) {
			report.EndReason = EndStopped

			break
		}
	}
	if err != nil && ctx.Err() != nil {
		report.EndReason = EndStopped

		return report, nil
	}

	return report, err
}

func (r *Runner) begin(ctx context.Context, server transport.DialConfig, slice string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return nil, fmt.Errorf("%w: runner already started", fl.ErrState)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.server = server.Target()
	r.slice = slice
	r.startedAt = time.Now()

	return ctx, nil
}

func (r *Runner) end(report SessionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancel()
	r.cancel = nil
	r.last = &report
}

// backoff bounds consecutive failed sessions. A fresh one is used after
// every healthy session so failures far apart do not share a budget.
func (r *Runner) backoff() retry.Backoff {
	base := r.cfg.ReconnectBaseDelay
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if r.cfg.ReconnectMaxDelay > 0 {
		b = retry.WithCappedDuration(r.cfg.ReconnectMaxDelay, b)
	}
	b = retry.WithJitterPercent(jitterPercent, b)

	return retry.WithMaxRetries(r.cfg.ReconnectMaxRetries, b)
}

// Stop ends the current run. The in-flight round, if any, is canceled.
func (r *Runner) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return fmt.Errorf("%w: runner is not started", fl.ErrState)
	}
	r.cancel()

	return nil
}

func (r *Runner) Status(_ context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		ClientID: r.cfg.ClientID,
		Running:  r.cancel != nil,
		Engine:   r.engine.State().String(),
		Last:     r.last,
	}
	if st.Running {
		st.Server = r.server
		st.Slice = r.slice
		st.StartedAt = r.startedAt
	}
	if r.tracker != nil {
		st.Rounds = r.tracker.Snapshot()
	}

	return st, nil
}

func (r *Runner) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	page := fl.RoundPage{
		Offset: offset,
		Limit:  limit,
		Rounds: []fl.Round{},
	}
	if r.rounds == nil {
		return page, nil
	}

	rounds, total, err := r.rounds.List(ctx, offset, limit)
	if err != nil {
		return fl.RoundPage{}, err
	}
	page.Total = total
	if rounds != nil {
		page.Rounds = rounds
	}

	return page, nil
}

func (r *Runner) GetRound(ctx context.Context, id string) (fl.Round, error) {
	if r.rounds == nil {
		return fl.Round{}, storage.ErrRoundNotFound
	}

	return r.rounds.Get(ctx, id)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
