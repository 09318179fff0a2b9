package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/absmach/fledge/pkg/fl"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	ServiceName = "flwr.proto.FlowerService"
	JoinMethod  = "/" + ServiceName + "/Join"

	// MaxMessageSize bounds both directions of the stream.
	MaxMessageSize = 536_870_912
)

var joinStreamDesc = grpc.StreamDesc{
	StreamName:    "Join",
	ServerStreams: true,
	ClientStreams: true,
}

// ClientStream is the participant end of the Join stream.
type ClientStream interface {
	Send(m *ClientMessage) error
	Recv() (*ServerMessage, error)
	CloseSend() error
}

type DialConfig struct {
	Host     string
	Port     int
	Compress bool
}

func (c DialConfig) Target() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dial creates the client connection used for Join streams. The connection is
// established lazily by the first stream.
func Dial(cfg DialConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	callOpts := []grpc.CallOption{
		grpc.MaxCallRecvMsgSize(MaxMessageSize),
		grpc.MaxCallSendMsgSize(MaxMessageSize),
	}
	if cfg.Compress {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(callOpts...),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Target(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fl.ErrConnect, err)
	}

	return conn, nil
}

// Join opens the bidirectional instruction stream on conn.
func Join(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (ClientStream, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)

	stream, err := conn.NewStream(ctx, &joinStreamDesc, JoinMethod, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fl.ErrConnect, err)
	}

	return &clientStream{stream}, nil
}

type clientStream struct {
	grpc.ClientStream
}

func (s *clientStream) Send(m *ClientMessage) error {
	return s.ClientStream.SendMsg(m)
}

// Recv returns the next instruction. A frame that cannot be decoded yields an
// error wrapping fl.ErrDecode and leaves the stream usable.
func (s *clientStream) Recv() (*ServerMessage, error) {
	var frame Frame
	if err := s.ClientStream.RecvMsg(&frame); err != nil {
		return nil, err
	}

	m := &ServerMessage{}
	if err := m.Unmarshal(frame); err != nil {
		return nil, err
	}

	return m, nil
}

// FlowerServer is the coordinator end of the Join stream. It is implemented
// by test servers and simulators.
type FlowerServer interface {
	Join(stream ServerStream) error
}

type ServerStream interface {
	Context() context.Context
	Send(m *ServerMessage) error
	Recv() (*ClientMessage, error)
}

// RegisterFlowerServer registers srv on s. The server must be created with
// ServerOptions so that messages use the transport codec.
func RegisterFlowerServer(s grpc.ServiceRegistrar, srv FlowerServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*FlowerServer)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    joinStreamDesc.StreamName,
				Handler:       joinHandler,
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "flwr/proto/transport.proto",
	}, srv)
}

func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
	}
}

func joinHandler(srv any, stream grpc.ServerStream) error {
	return srv.(FlowerServer).Join(&serverStream{stream})
}

type serverStream struct {
	grpc.ServerStream
}

func (s *serverStream) Send(m *ServerMessage) error {
	return s.ServerStream.SendMsg(m)
}

func (s *serverStream) Recv() (*ClientMessage, error) {
	var frame Frame
	if err := s.ServerStream.RecvMsg(&frame); err != nil {
		return nil, err
	}

	m := &ClientMessage{}
	if err := m.Unmarshal(frame); err != nil {
		return nil, err
	}

	return m, nil
}
