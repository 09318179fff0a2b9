package client_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// script is what the fake server does on one Join stream: send every frame,
// then collect replies replies before closing. A hold script keeps the stream
// open until the client goes away; a fail script ends it with an error.
type script struct {
	frames  [][]byte
	replies int
	hold    bool
	fail    bool
}

type flowerServer struct {
	scripts []script
	calls   atomic.Int32
	joined  chan struct{}
	replies chan *transport.ClientMessage
}

func newFlowerServer(scripts ...script) *flowerServer {
	return &flowerServer{
		scripts: scripts,
		joined:  make(chan struct{}, len(scripts)+1),
		replies: make(chan *transport.ClientMessage, 64),
	}
}

func (s *flowerServer) Join(stream transport.ServerStream) error {
	n := int(s.calls.Add(1)) - 1
	s.joined <- struct{}{}
	if n >= len(s.scripts) {
		return nil
	}
	sc := s.scripts[n]

	raw := stream.(interface{ SendMsg(m any) error })
	for _, f := range sc.frames {
		frame := transport.Frame(f)
		if err := raw.SendMsg(&frame); err != nil {
			return err
		}
	}
	for range sc.replies {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}
		s.replies <- msg
	}
	if sc.hold {
		<-stream.Context().Done()
	}
	if sc.fail {
		return status.Error(codes.Unavailable, "server restarting")
	}

	return nil
}

// collect waits for n replies to reach the server, giving up after a
// second so a missing reply fails the caller's length assertion.
func (s *flowerServer) collect(t *testing.T, n int) []*transport.ClientMessage {
	t.Helper()

	var msgs []*transport.ClientMessage
	timeout := time.After(time.Second)
	for len(msgs) < n {
		select {
		case m := <-s.replies:
			msgs = append(msgs, m)
		case <-timeout:
			return msgs
		}
	}

	return msgs
}

func serve(t *testing.T, srv transport.FlowerServer) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(transport.ServerOptions()...)
	transport.RegisterFlowerServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	return lis
}

func bufDialer(lis *bufconn.Listener) client.Dialer {
	return func(transport.DialConfig) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}
}

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()

	conn, err := bufDialer(lis)(transport.DialConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func frame(t *testing.T, msg *transport.ServerMessage) []byte {
	t.Helper()

	b, err := msg.Marshal()
	require.NoError(t, err)

	return b
}

func TestSessionFitRound(t *testing.T) {
	t.Parallel()

	srv := newFlowerServer(script{
		frames: [][]byte{
			frame(t, &transport.ServerMessage{Join: &transport.JoinIns{}}),
			frame(t, &transport.ServerMessage{Fit: &transport.FitIns{
				Parameters: zeroParams(),
				Config:     fl.Config{client.EpochsKey: int64(1)},
			}}),
		},
		replies: 1,
	})
	conn := dial(t, serve(t, srv))

	sess := client.NewSession(conn, newService(t, newEngine(t)), "bufnet", testSlice, logger)
	report, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sess.ID(), report.ID)
	assert.Equal(t, client.EndServerClosed, report.EndReason)
	assert.Equal(t, 1, report.CompletedRounds)
	assert.Equal(t, 0, report.FailedRounds)

	replies := srv.collect(t, 1)
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Fit)
	assert.Equal(t, int64(100), replies[0].Fit.NumExamples)
	assert.Equal(t, transport.StatusOK, replies[0].Fit.Status.Code)

	loss, ok, err := replies[0].Fit.Metrics.Float("loss")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, loss, report.LastLoss)
}

func TestSessionSurvivesUndecodableInstructions(t *testing.T) {
	t.Parallel()

	bad := zeroParams()
	bad.Tensors[1] = []byte{1, 2, 3}

	srv := newFlowerServer(script{
		frames: [][]byte{
			frame(t, &transport.ServerMessage{Join: &transport.JoinIns{}}),
			frame(t, &transport.ServerMessage{Evaluate: &transport.EvaluateIns{Parameters: bad, Config: fl.Config{}}}),
			{0xff, 0xff},
			frame(t, &transport.ServerMessage{GetProperties: &transport.GetPropertiesIns{Config: fl.Config{}}}),
			frame(t, &transport.ServerMessage{Evaluate: &transport.EvaluateIns{Parameters: zeroParams(), Config: fl.Config{}}}),
		},
		replies: 2,
	})
	conn := dial(t, serve(t, srv))

	sess := client.NewSession(conn, newService(t, newEngine(t)), "bufnet", testSlice, logger)
	report, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, client.EndServerClosed, report.EndReason)
	assert.Equal(t, 1, report.CompletedRounds)
	assert.Equal(t, 1, report.FailedRounds)

	replies := srv.collect(t, 2)
	require.Len(t, replies, 2)
	assert.Equal(t, transport.KindGetProperties, replies[0].Kind())
	require.Equal(t, transport.KindEvaluate, replies[1].Kind())
	assert.Equal(t, int64(25), replies[1].Evaluate.NumExamples)
}

func TestSessionReconnect(t *testing.T) {
	t.Parallel()

	srv := newFlowerServer(script{
		frames: [][]byte{
			frame(t, &transport.ServerMessage{Reconnect: &transport.ReconnectIns{Seconds: 7}}),
		},
		replies: 1,
	})
	conn := dial(t, serve(t, srv))

	sess := client.NewSession(conn, newService(t, newEngine(t)), "bufnet", testSlice, logger)
	report, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, client.EndReconnect, report.EndReason)
	assert.Equal(t, 7*time.Second, report.ReconnectAfter)

	replies := srv.collect(t, 1)
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Disconnect)
	assert.Equal(t, transport.ReasonReconnect, replies[0].Disconnect.Reason)
}

func TestSessionStopped(t *testing.T) {
	t.Parallel()

	srv := newFlowerServer(script{
		frames: [][]byte{frame(t, &transport.ServerMessage{Join: &transport.JoinIns{}})},
		hold:   true,
	})
	conn := dial(t, serve(t, srv))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan client.SessionReport, 1)
	sess := client.NewSession(conn, newService(t, newEngine(t)), "bufnet", testSlice, logger)
	go func() {
		report, err := sess.Run(ctx)
		assert.NoError(t, err)
		done <- report
	}()

	<-srv.joined
	cancel()

	select {
	case report := <-done:
		assert.Equal(t, client.EndStopped, report.EndReason)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSessionRejectsWhileTraining(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	require.NoError(t, eng.EnableTraining(nopCallback{}))
	require.NoError(t, eng.Train(context.Background(), 1000000))
	t.Cleanup(eng.DisableTraining)

	srv := newFlowerServer(script{
		frames: [][]byte{
			frame(t, &transport.ServerMessage{Fit: &transport.FitIns{Parameters: zeroParams(), Config: fl.Config{}}}),
			frame(t, &transport.ServerMessage{GetParameters: &transport.GetParametersIns{Config: fl.Config{}}}),
		},
		replies: 1,
	})
	conn := dial(t, serve(t, srv))

	sess := client.NewSession(conn, newService(t, eng), "bufnet", testSlice, logger)
	report, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FailedRounds)
	replies := srv.collect(t, 1)
	require.Len(t, replies, 1)
	assert.Equal(t, transport.KindGetParameters, replies[0].Kind())
}

type nopCallback struct{}

func (nopCallback) EpochCompleted(engine.Progress) {}

func (nopCallback) TrainingAborted(error) {}
