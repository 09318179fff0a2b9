package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/storage"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type runnerFixture struct {
	runner  *client.Runner
	tracker *client.Tracker
	rounds  storage.RoundRepository
}

func newRunner(t *testing.T, dialer client.Dialer) runnerFixture {
	t.Helper()

	repos, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)

	cfg := client.DefaultConfig()
	cfg.ClientID = "client-1"
	cfg.RoundTimeout = 5 * time.Second
	cfg.ReconnectMaxRetries = 2
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 50 * time.Millisecond

	eng := engine.NewLinear(logger)
	tracker := client.NewTracker()
	obs := client.Observers{tracker, client.NewHistory(repos.Rounds, logger)}
	svc := client.NewService(cfg, eng, obs, logger)

	return runnerFixture{
		runner: client.NewRunner(cfg, eng, svc, logger,
			client.WithDialer(dialer),
			client.WithTracker(tracker),
			client.WithRoundRepository(repos.Rounds),
		),
		tracker: tracker,
		rounds:  repos.Rounds,
	}
}

func TestRunnerFollowsReconnect(t *testing.T) {
	t.Parallel()

	srv := newFlowerServer(
		script{
			frames:  [][]byte{frame(t, &transport.ServerMessage{Reconnect: &transport.ReconnectIns{Seconds: 0}})},
			replies: 1,
		},
		script{
			frames: [][]byte{
				frame(t, &transport.ServerMessage{Join: &transport.JoinIns{}}),
				frame(t, &transport.ServerMessage{Fit: &transport.FitIns{
					Parameters: zeroParams(),
					Config:     fl.Config{client.EpochsKey: int64(2)},
				}}),
				frame(t, &transport.ServerMessage{Evaluate: &transport.EvaluateIns{Parameters: zeroParams(), Config: fl.Config{}}}),
			},
			replies: 2,
		},
	)
	f := newRunner(t, bufDialer(serve(t, srv)))

	report, err := f.runner.Start(context.Background(), transport.DialConfig{Host: "bufnet", Port: 1}, testSlice)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Sessions)
	assert.Equal(t, client.EndServerClosed, report.EndReason)
	assert.Equal(t, 2, report.CompletedRounds)
	assert.Equal(t, testSlice, report.Slice)

	page, err := f.runner.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), page.Total)
	require.Len(t, page.Rounds, 2)
	assert.Equal(t, fl.FitRound, page.Rounds[0].Kind)
	assert.Equal(t, fl.EvaluateRound, page.Rounds[1].Kind)
	assert.Equal(t, page.Rounds[0].SessionID, page.Rounds[1].SessionID)

	st, err := f.runner.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, engine.Idle.String(), st.Engine)
	assert.Equal(t, 2, st.Rounds.CompletedRounds)
	require.NotNil(t, st.Last)
	assert.Equal(t, 2, st.Last.Sessions)
}

func TestRunnerRetryBudgetResetsAfterHealthySession(t *testing.T) {
	t.Parallel()

	fit := func() script {
		return script{
			frames: [][]byte{frame(t, &transport.ServerMessage{Fit: &transport.FitIns{
				Parameters: zeroParams(),
				Config:     fl.Config{client.EpochsKey: int64(1)},
			}})},
			replies: 1,
			fail:    true,
		}
	}
	broken := script{fail: true}

	// Six failed sessions in total, never more than two in a row.
	srv := newFlowerServer(fit(), broken, broken, fit(), broken, broken, script{})
	f := newRunner(t, bufDialer(serve(t, srv)))

	report, err := f.runner.Start(context.Background(), transport.DialConfig{Host: "bufnet", Port: 1}, testSlice)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Sessions)
	assert.Equal(t, 2, report.CompletedRounds)
	assert.Equal(t, client.EndServerClosed, report.EndReason)
}

func TestRunnerGivesUpAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	reconnect := script{
		frames:  [][]byte{frame(t, &transport.ServerMessage{Reconnect: &transport.ReconnectIns{Seconds: 0}})},
		replies: 1,
	}
	broken := script{fail: true}
	srv := newFlowerServer(reconnect, broken, broken, broken)
	f := newRunner(t, bufDialer(serve(t, srv)))

	report, err := f.runner.Start(context.Background(), transport.DialConfig{Host: "bufnet", Port: 1}, testSlice)
	require.ErrorIs(t, err, fl.ErrStream)

	assert.Equal(t, 4, report.Sessions)
	assert.Equal(t, client.EndStreamFailed, report.EndReason)
}

func TestRunnerStop(t *testing.T) {
	t.Parallel()

	srv := newFlowerServer(script{
		frames: [][]byte{frame(t, &transport.ServerMessage{Join: &transport.JoinIns{}})},
		hold:   true,
	})
	f := newRunner(t, bufDialer(serve(t, srv)))

	type result struct {
		report client.SessionReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := f.runner.Start(context.Background(), transport.DialConfig{Host: "bufnet", Port: 1}, testSlice)
		done <- result{report, err}
	}()

	<-srv.joined
	st, err := f.runner.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, testSlice, st.Slice)

	require.NoError(t, f.runner.Stop(context.Background()))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, client.EndStopped, res.report.EndReason)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	assert.ErrorIs(t, f.runner.Stop(context.Background()), fl.ErrState)
}

func TestRunnerConnectFailure(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 20)
	require.NoError(t, lis.Close())
	f := newRunner(t, bufDialer(lis))

	_, err := f.runner.Start(context.Background(), transport.DialConfig{Host: "bufnet", Port: 1}, testSlice)
	assert.ErrorIs(t, err, fl.ErrConnect)
}

func TestRunnerDialFailure(t *testing.T) {
	t.Parallel()

	f := newRunner(t, func(transport.DialConfig) (*grpc.ClientConn, error) {
		return nil, fl.ErrConnect
	})

	_, err := f.runner.Start(context.Background(), transport.DialConfig{Host: "bufnet", Port: 1}, testSlice)
	assert.ErrorIs(t, err, fl.ErrConnect)

	st, err := f.runner.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestRunnerListRoundsWithoutHistory(t *testing.T) {
	t.Parallel()

	r := client.NewRunner(client.DefaultConfig(), engine.NewLinear(logger), nil, logger)
	page, err := r.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), page.Total)
	assert.Empty(t, page.Rounds)
}
