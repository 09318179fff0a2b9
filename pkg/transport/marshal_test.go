package transport_test

import (
	"testing"

	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var testParams = fl.Parameters{
	Tensors: [][]byte{
		fl.EncodeTensor([]float32{1, 2, 3}),
		fl.EncodeTensor([]float32{0.5}),
	},
	TensorType: fl.TensorTypeFloat32,
}

func TestServerMessageRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		msg  transport.ServerMessage
		kind transport.Kind
	}{
		{
			desc: "join",
			msg:  transport.ServerMessage{Join: &transport.JoinIns{}},
			kind: transport.KindJoin,
		},
		{
			desc: "fit with config",
			msg: transport.ServerMessage{Fit: &transport.FitIns{
				Parameters: testParams,
				Config: fl.Config{
					"epochs":        int64(3),
					"learning_rate": 0.01,
					"shuffle":       true,
					"name":          "round-1",
					"blob":          []byte{0x01, 0x02},
					"offset":        int64(-4),
				},
			}},
			kind: transport.KindFit,
		},
		{
			desc: "evaluate without config",
			msg: transport.ServerMessage{Evaluate: &transport.EvaluateIns{
				Parameters: testParams,
				Config:     fl.Config{},
			}},
			kind: transport.KindEvaluate,
		},
		{
			desc: "reconnect",
			msg:  transport.ServerMessage{Reconnect: &transport.ReconnectIns{Seconds: 5}},
			kind: transport.KindReconnect,
		},
		{
			desc: "reconnect without delay",
			msg:  transport.ServerMessage{Reconnect: &transport.ReconnectIns{}},
			kind: transport.KindReconnect,
		},
		{
			desc: "get parameters",
			msg:  transport.ServerMessage{GetParameters: &transport.GetParametersIns{Config: fl.Config{}}},
			kind: transport.KindGetParameters,
		},
		{
			desc: "get properties",
			msg:  transport.ServerMessage{GetProperties: &transport.GetPropertiesIns{Config: fl.Config{"verbose": false}}},
			kind: transport.KindGetProperties,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			data, err := tc.msg.Marshal()
			require.NoError(t, err)

			var decoded transport.ServerMessage
			require.NoError(t, decoded.Unmarshal(data))
			assert.Equal(t, tc.kind, decoded.Kind())
			assert.Equal(t, tc.msg, decoded)
		})
	}
}

func TestClientMessageRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		msg  transport.ClientMessage
		kind transport.Kind
	}{
		{
			desc: "fit result",
			msg: transport.ClientMessage{Fit: &transport.FitRes{
				Parameters:  testParams,
				NumExamples: 100,
				Metrics:     fl.Config{"loss": 0.25},
				Status:      transport.Status{Code: transport.StatusOK, Message: "Success"},
			}},
			kind: transport.KindFit,
		},
		{
			desc: "evaluate result",
			msg: transport.ClientMessage{Evaluate: &transport.EvaluateRes{
				Loss:        1.5,
				NumExamples: 25,
				Metrics:     fl.Config{"mae": 0.75},
				Status:      transport.Status{Code: transport.StatusOK},
			}},
			kind: transport.KindEvaluate,
		},
		{
			desc: "disconnect",
			msg:  transport.ClientMessage{Disconnect: &transport.DisconnectRes{Reason: transport.ReasonReconnect}},
			kind: transport.KindDisconnect,
		},
		{
			desc: "get parameters result",
			msg: transport.ClientMessage{GetParameters: &transport.GetParametersRes{
				Parameters: testParams,
				Status:     transport.Status{Code: transport.StatusOK},
			}},
			kind: transport.KindGetParameters,
		},
		{
			desc: "get properties result",
			msg: transport.ClientMessage{GetProperties: &transport.GetPropertiesRes{
				Properties: fl.Config{"slice": "3", "num_train": int64(100)},
				Status:     transport.Status{Code: transport.StatusGetPropertiesNotImplemented, Message: "not supported"},
			}},
			kind: transport.KindGetProperties,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			data, err := tc.msg.Marshal()
			require.NoError(t, err)

			var decoded transport.ClientMessage
			require.NoError(t, decoded.Unmarshal(data))
			assert.Equal(t, tc.kind, decoded.Kind())
			assert.Equal(t, tc.msg, decoded)
		})
	}
}

func TestServerMessageDecodeErrors(t *testing.T) {
	t.Parallel()

	join := protowire.AppendTag(nil, 6, protowire.BytesType)
	join = protowire.AppendBytes(join, nil)

	reconnect := protowire.AppendTag(nil, 1, protowire.BytesType)
	reconnect = protowire.AppendBytes(reconnect, nil)

	fit, err := (&transport.ServerMessage{Fit: &transport.FitIns{Parameters: testParams}}).Marshal()
	require.NoError(t, err)

	wrongType := protowire.AppendTag(nil, 4, protowire.VarintType)
	wrongType = protowire.AppendVarint(wrongType, 1)

	cases := []struct {
		desc string
		data []byte
	}{
		{desc: "empty message", data: nil},
		{desc: "two instructions", data: append(append([]byte{}, join...), reconnect...)},
		{desc: "truncated fit", data: fit[:len(fit)-3]},
		{desc: "instruction with scalar wire type", data: wrongType},
		{desc: "unknown field only", data: protowire.AppendVarint(protowire.AppendTag(nil, 20, protowire.VarintType), 7)},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			var msg transport.ServerMessage
			assert.ErrorIs(t, msg.Unmarshal(tc.data), fl.ErrDecode)
		})
	}
}

func TestServerMessageSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	data, err := (&transport.ServerMessage{Join: &transport.JoinIns{}}).Marshal()
	require.NoError(t, err)
	data = protowire.AppendTag(data, 30, protowire.BytesType)
	data = protowire.AppendString(data, "extension")

	var msg transport.ServerMessage
	require.NoError(t, msg.Unmarshal(data))
	assert.Equal(t, transport.KindJoin, msg.Kind())
}

func TestMarshalRejectsInvalidMessages(t *testing.T) {
	t.Parallel()

	_, err := (&transport.ServerMessage{}).Marshal()
	assert.ErrorIs(t, err, fl.ErrDecode)

	_, err = (&transport.ClientMessage{
		Fit:      &transport.FitRes{},
		Evaluate: &transport.EvaluateRes{},
	}).Marshal()
	assert.ErrorIs(t, err, fl.ErrDecode)

	_, err = (&transport.ClientMessage{Fit: &transport.FitRes{Metrics: fl.Config{"bad": struct{}{}}}}).Marshal()
	assert.ErrorIs(t, err, fl.ErrConfig)
}
