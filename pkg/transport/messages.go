// Package transport implements the Flower bidirectional instruction stream:
// protobuf-compatible message encoding and the gRPC stream plumbing.
package transport

import (
	"github.com/absmach/fledge/pkg/fl"
)

type StatusCode int32

const (
	StatusOK                          StatusCode = 0
	StatusGetPropertiesNotImplemented StatusCode = 1
	StatusGetParametersNotImplemented StatusCode = 2
	StatusFitNotImplemented           StatusCode = 3
	StatusEvaluateNotImplemented      StatusCode = 4
)

type Status struct {
	Code    StatusCode
	Message string
}

type Reason int32

const (
	ReasonUnknown           Reason = 0
	ReasonReconnect         Reason = 1
	ReasonPowerDisconnected Reason = 2
	ReasonWifiUnavailable   Reason = 3
	ReasonAck               Reason = 4
)

type Kind string

const (
	KindNone          Kind = "none"
	KindReconnect     Kind = "reconnect"
	KindGetProperties Kind = "get_properties"
	KindGetParameters Kind = "get_parameters"
	KindFit           Kind = "fit"
	KindEvaluate      Kind = "evaluate"
	KindJoin          Kind = "join"
	KindDisconnect    Kind = "disconnect"
)

type ReconnectIns struct {
	Seconds int64
}

type GetPropertiesIns struct {
	Config fl.Config
}

type GetParametersIns struct {
	Config fl.Config
}

type FitIns struct {
	Parameters fl.Parameters
	Config     fl.Config
}

type EvaluateIns struct {
	Parameters fl.Parameters
	Config     fl.Config
}

type JoinIns struct{}

// ServerMessage is a round instruction. Exactly one field is set on a valid message.
type ServerMessage struct {
	Reconnect     *ReconnectIns
	GetProperties *GetPropertiesIns
	GetParameters *GetParametersIns
	Fit           *FitIns
	Evaluate      *EvaluateIns
	Join          *JoinIns
}

func (m *ServerMessage) Kind() Kind {
	switch {
	case m.Reconnect != nil:
		return KindReconnect
	case m.GetProperties != nil:
		return KindGetProperties
	case m.GetParameters != nil:
		return KindGetParameters
	case m.Fit != nil:
		return KindFit
	case m.Evaluate != nil:
		return KindEvaluate
	case m.Join != nil:
		return KindJoin
	default:
		return KindNone
	}
}

func (m *ServerMessage) cases() int {
	n := 0
	for _, set := range []bool{m.Reconnect != nil, m.GetProperties != nil, m.GetParameters != nil, m.Fit != nil, m.Evaluate != nil, m.Join != nil} {
		if set {
			n++
		}
	}

	return n
}

type DisconnectRes struct {
	Reason Reason
}

type GetPropertiesRes struct {
	Status     Status
	Properties fl.Config
}

type GetParametersRes struct {
	Status     Status
	Parameters fl.Parameters
}

type FitRes struct {
	Status      Status
	Parameters  fl.Parameters
	NumExamples int64
	Metrics     fl.Config
}

type EvaluateRes struct {
	Status      Status
	Loss        float32
	NumExamples int64
	Metrics     fl.Config
}

// ClientMessage is a round result. Exactly one field is set on a valid message.
type ClientMessage struct {
	Disconnect    *DisconnectRes
	GetProperties *GetPropertiesRes
	GetParameters *GetParametersRes
	Fit           *FitRes
	Evaluate      *EvaluateRes
}

func (m *ClientMessage) Kind() Kind {
	switch {
	case m.Disconnect != nil:
		return KindDisconnect
	case m.GetProperties != nil:
		return KindGetProperties
	case m.GetParameters != nil:
		return KindGetParameters
	case m.Fit != nil:
		return KindFit
	case m.Evaluate != nil:
		return KindEvaluate
	default:
		return KindNone
	}
}

func (m *ClientMessage) cases() int {
	n := 0
	for _, set := range []bool{m.Disconnect != nil, m.GetProperties != nil, m.GetParameters != nil, m.Fit != nil, m.Evaluate != nil} {
		if set {
			n++
		}
	}

	return n
}
