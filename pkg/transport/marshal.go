package transport

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/absmach/fledge/pkg/fl"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers follow flwr/proto/transport.proto. Join is carried on an
// otherwise unused ServerMessage field.
const (
	srvReconnect     protowire.Number = 1
	srvGetProperties protowire.Number = 2
	srvGetParameters protowire.Number = 3
	srvFit           protowire.Number = 4
	srvEvaluate      protowire.Number = 5
	srvJoin          protowire.Number = 6

	cliDisconnect    protowire.Number = 1
	cliGetProperties protowire.Number = 2
	cliGetParameters protowire.Number = 3
	cliFit           protowire.Number = 4
	cliEvaluate      protowire.Number = 5

	scalarDouble protowire.Number = 1
	scalarSint64 protowire.Number = 8
	scalarBool   protowire.Number = 13
	scalarString protowire.Number = 14
	scalarBytes  protowire.Number = 15
)

func (m *ServerMessage) Marshal() ([]byte, error) {
	if n := m.cases(); n != 1 {
		return nil, fmt.Errorf("%w: server message carries %d instructions", fl.ErrDecode, n)
	}

	var (
		b   []byte
		err error
	)
	switch {
	case m.Reconnect != nil:
		b = appendMessage(b, srvReconnect, appendInt64(nil, 1, m.Reconnect.Seconds))
	case m.GetProperties != nil:
		var inner []byte
		if inner, err = appendConfig(nil, 1, m.GetProperties.Config); err != nil {
			return nil, err
		}
		b = appendMessage(b, srvGetProperties, inner)
	case m.GetParameters != nil:
		var inner []byte
		if inner, err = appendConfig(nil, 1, m.GetParameters.Config); err != nil {
			return nil, err
		}
		b = appendMessage(b, srvGetParameters, inner)
	case m.Fit != nil:
		inner := appendMessage(nil, 1, appendParameters(nil, m.Fit.Parameters))
		if inner, err = appendConfig(inner, 2, m.Fit.Config); err != nil {
			return nil, err
		}
		b = appendMessage(b, srvFit, inner)
	case m.Evaluate != nil:
		inner := appendMessage(nil, 1, appendParameters(nil, m.Evaluate.Parameters))
		if inner, err = appendConfig(inner, 2, m.Evaluate.Config); err != nil {
			return nil, err
		}
		b = appendMessage(b, srvEvaluate, inner)
	case m.Join != nil:
		b = appendMessage(b, srvJoin, nil)
	}

	return b, nil
}

func (m *ServerMessage) Unmarshal(b []byte) error {
	*m = ServerMessage{}

	err := forEachField(b, func(f field) error {
		switch f.num {
		case srvReconnect:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			ins := &ReconnectIns{}
			if err := forEachField(f.bytes, func(f field) error {
				if f.num == 1 {
					if err := f.expect(protowire.VarintType); err != nil {
						return err
					}
					ins.Seconds = int64(f.varint)
				}

				return nil
			}); err != nil {
				return err
			}
			m.Reconnect = ins
		case srvGetProperties:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			cfg, err := consumeConfigMessage(f.bytes, 1)
			if err != nil {
				return err
			}
			m.GetProperties = &GetPropertiesIns{Config: cfg}
		case srvGetParameters:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			cfg, err := consumeConfigMessage(f.bytes, 1)
			if err != nil {
				return err
			}
			m.GetParameters = &GetParametersIns{Config: cfg}
		case srvFit:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			params, cfg, err := consumeRoundIns(f.bytes)
			if err != nil {
				return err
			}
			m.Fit = &FitIns{Parameters: params, Config: cfg}
		case srvEvaluate:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			params, cfg, err := consumeRoundIns(f.bytes)
			if err != nil {
				return err
			}
			m.Evaluate = &EvaluateIns{Parameters: params, Config: cfg}
		case srvJoin:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			m.Join = &JoinIns{}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if n := m.cases(); n != 1 {
		return fmt.Errorf("%w: server message carries %d instructions", fl.ErrDecode, n)
	}

	return nil
}

func (m *ClientMessage) Marshal() ([]byte, error) {
	if n := m.cases(); n != 1 {
		return nil, fmt.Errorf("%w: client message carries %d results", fl.ErrDecode, n)
	}

	var (
		b   []byte
		err error
	)
	switch {
	case m.Disconnect != nil:
		b = appendMessage(b, cliDisconnect, appendInt64(nil, 1, int64(m.Disconnect.Reason)))
	case m.GetProperties != nil:
		inner := appendMessage(nil, 1, appendStatus(nil, m.GetProperties.Status))
		if inner, err = appendConfig(inner, 2, m.GetProperties.Properties); err != nil {
			return nil, err
		}
		b = appendMessage(b, cliGetProperties, inner)
	case m.GetParameters != nil:
		inner := appendMessage(nil, 1, appendParameters(nil, m.GetParameters.Parameters))
		inner = appendMessage(inner, 2, appendStatus(nil, m.GetParameters.Status))
		b = appendMessage(b, cliGetParameters, inner)
	case m.Fit != nil:
		inner := appendMessage(nil, 1, appendParameters(nil, m.Fit.Parameters))
		inner = appendInt64(inner, 2, m.Fit.NumExamples)
		if inner, err = appendConfig(inner, 3, m.Fit.Metrics); err != nil {
			return nil, err
		}
		inner = appendMessage(inner, 4, appendStatus(nil, m.Fit.Status))
		b = appendMessage(b, cliFit, inner)
	case m.Evaluate != nil:
		var inner []byte
		if m.Evaluate.Loss != 0 {
			inner = protowire.AppendTag(inner, 1, protowire.Fixed32Type)
			inner = protowire.AppendFixed32(inner, math.Float32bits(m.Evaluate.Loss))
		}
		inner = appendInt64(inner, 2, m.Evaluate.NumExamples)
		if inner, err = appendConfig(inner, 3, m.Evaluate.Metrics); err != nil {
			return nil, err
		}
		inner = appendMessage(inner, 4, appendStatus(nil, m.Evaluate.Status))
		b = appendMessage(b, cliEvaluate, inner)
	}

	return b, nil
}

func (m *ClientMessage) Unmarshal(b []byte) error {
	*m = ClientMessage{}

	err := forEachField(b, func(f field) error {
		if f.num < cliDisconnect || f.num > cliEvaluate {
			return nil
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}

		switch f.num {
		case cliDisconnect:
			res := &DisconnectRes{}
			if err := forEachField(f.bytes, func(f field) error {
				if f.num == 1 {
					if err := f.expect(protowire.VarintType); err != nil {
						return err
					}
					res.Reason = Reason(f.varint)
				}

				return nil
			}); err != nil {
				return err
			}
			m.Disconnect = res
		case cliGetProperties:
			res := &GetPropertiesRes{Properties: fl.Config{}}
			if err := forEachField(f.bytes, func(f field) error {
				var err error
				switch f.num {
				case 1:
					res.Status, err = consumeStatus(f)
				case 2:
					err = consumeConfigEntry(f, res.Properties)
				}

				return err
			}); err != nil {
				return err
			}
			m.GetProperties = res
		case cliGetParameters:
			res := &GetParametersRes{}
			if err := forEachField(f.bytes, func(f field) error {
				var err error
				switch f.num {
				case 1:
					res.Parameters, err = consumeParameters(f)
				case 2:
					res.Status, err = consumeStatus(f)
				}

				return err
			}); err != nil {
				return err
			}
			m.GetParameters = res
		case cliFit:
			res := &FitRes{Metrics: fl.Config{}}
			if err := forEachField(f.bytes, func(f field) error {
				var err error
				switch f.num {
				case 1:
					res.Parameters, err = consumeParameters(f)
				case 2:
					if err = f.expect(protowire.VarintType); err == nil {
						res.NumExamples = int64(f.varint)
					}
				case 3:
					err = consumeConfigEntry(f, res.Metrics)
				case 4:
					res.Status, err = consumeStatus(f)
				}

				return err
			}); err != nil {
				return err
			}
			m.Fit = res
		case cliEvaluate:
			res := &EvaluateRes{Metrics: fl.Config{}}
			if err := forEachField(f.bytes, func(f field) error {
				var err error
				switch f.num {
				case 1:
					if err = f.expect(protowire.Fixed32Type); err == nil {
						res.Loss = math.Float32frombits(f.fixed32)
					}
				case 2:
					if err = f.expect(protowire.VarintType); err == nil {
						res.NumExamples = int64(f.varint)
					}
				case 3:
					err = consumeConfigEntry(f, res.Metrics)
				case 4:
					res.Status, err = consumeStatus(f)
				}

				return err
			}); err != nil {
				return err
			}
			m.Evaluate = res
		}

		return nil
	})
	if err != nil {
		return err
	}

	if n := m.cases(); n != 1 {
		return fmt.Errorf("%w: client message carries %d results", fl.ErrDecode, n)
	}

	return nil
}

type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	fixed64 uint64
	bytes   []byte
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: field %d has wire type %d, expected %d", fl.ErrDecode, f.num, f.typ, typ)
	}

	return nil
}

// forEachField walks the top level fields of an encoded message. Fields with
// wire types that carry no value of interest are skipped.
func forEachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return parseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

func parseError(n int) error {
	return fmt.Errorf("%w: %w", fl.ErrDecode, protowire.ParseError(n))
}

func appendMessage(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, inner)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, uint64(v))
}

func appendParameters(b []byte, p fl.Parameters) []byte {
	for _, t := range p.Tensors {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, t)
	}
	if p.TensorType != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, p.TensorType)
	}

	return b
}

func consumeParameters(f field) (fl.Parameters, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return fl.Parameters{}, err
	}

	var p fl.Parameters
	err := forEachField(f.bytes, func(f field) error {
		switch f.num {
		case 1:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			p.Tensors = append(p.Tensors, bytes.Clone(f.bytes))
		case 2:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			p.TensorType = string(f.bytes)
		}

		return nil
	})

	return p, err
}

func appendStatus(b []byte, s Status) []byte {
	b = appendInt64(b, 1, int64(s.Code))
	if s.Message != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, s.Message)
	}

	return b
}

func consumeStatus(f field) (Status, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return Status{}, err
	}

	var s Status
	err := forEachField(f.bytes, func(f field) error {
		switch f.num {
		case 1:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			s.Code = StatusCode(f.varint)
		case 2:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			s.Message = string(f.bytes)
		}

		return nil
	})

	return s, err
}

// consumeRoundIns parses the shared layout of FitIns and EvaluateIns.
func consumeRoundIns(b []byte) (fl.Parameters, fl.Config, error) {
	var params fl.Parameters
	cfg := fl.Config{}
	err := forEachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			params, err = consumeParameters(f)
		case 2:
			err = consumeConfigEntry(f, cfg)
		}

		return err
	})

	return params, cfg, err
}

func consumeConfigMessage(b []byte, num protowire.Number) (fl.Config, error) {
	cfg := fl.Config{}
	err := forEachField(b, func(f field) error {
		if f.num != num {
			return nil
		}

		return consumeConfigEntry(f, cfg)
	})

	return cfg, err
}

func appendConfig(b []byte, num protowire.Number, cfg fl.Config) ([]byte, error) {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		scalar, err := appendScalar(nil, cfg[k])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}

		entry := protowire.AppendTag(nil, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = appendMessage(entry, 2, scalar)
		b = appendMessage(b, num, entry)
	}

	return b, nil
}

func consumeConfigEntry(f field, cfg fl.Config) error {
	if err := f.expect(protowire.BytesType); err != nil {
		return err
	}

	var (
		key   string
		value any
	)
	err := forEachField(f.bytes, func(f field) error {
		switch f.num {
		case 1:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			key = string(f.bytes)
		case 2:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			v, err := consumeScalar(f.bytes)
			if err != nil {
				return err
			}
			value = v
		}

		return nil
	})
	if err != nil {
		return err
	}
	cfg[key] = value

	return nil
}

func appendScalar(b []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case float64:
		b = protowire.AppendTag(b, scalarDouble, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(val))
	case float32:
		b = protowire.AppendTag(b, scalarDouble, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(float64(val)))
	case int64:
		b = protowire.AppendTag(b, scalarSint64, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(val))
	case int:
		b = protowire.AppendTag(b, scalarSint64, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(val)))
	case bool:
		b = protowire.AppendTag(b, scalarBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(val))
	case string:
		b = protowire.AppendTag(b, scalarString, protowire.BytesType)
		b = protowire.AppendString(b, val)
	case []byte:
		b = protowire.AppendTag(b, scalarBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, val)
	default:
		return nil, fmt.Errorf("%w: unsupported scalar type %T", fl.ErrConfig, v)
	}

	return b, nil
}

func consumeScalar(b []byte) (any, error) {
	var value any
	err := forEachField(b, func(f field) error {
		var err error
		switch f.num {
		case scalarDouble:
			if err = f.expect(protowire.Fixed64Type); err == nil {
				value = math.Float64frombits(f.fixed64)
			}
		case scalarSint64:
			if err = f.expect(protowire.VarintType); err == nil {
				value = protowire.DecodeZigZag(f.varint)
			}
		case scalarBool:
			if err = f.expect(protowire.VarintType); err == nil {
				value = protowire.DecodeBool(f.varint)
			}
		case scalarString:
			if err = f.expect(protowire.BytesType); err == nil {
				value = string(f.bytes)
			}
		case scalarBytes:
			if err = f.expect(protowire.BytesType); err == nil {
				value = bytes.Clone(f.bytes)
			}
		}

		return err
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: scalar without a value", fl.ErrDecode)
	}

	return value, nil
}
