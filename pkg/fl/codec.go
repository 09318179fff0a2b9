package fl

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

const (
	// TensorTypeFloat32 blobs hold a uint32 element count followed by
	// little-endian float32 values.
	TensorTypeFloat32 = "float32-le"
	// TensorTypeFloat32Snappy blobs are TensorTypeFloat32 blobs compressed with snappy.
	TensorTypeFloat32Snappy = "float32-le+snappy"

	// MaxTensorSize bounds a single decoded tensor. It matches the
	// largest message the stream accepts.
	MaxTensorSize = 536_870_912

	tensorHeaderSize = 4
	float32Size      = 4
)

// Codec converts between ParameterSet and its wire representation.
type Codec struct {
	compress      bool
	tensorCount   int
	maxTensorSize int
}

type CodecOption func(*Codec)

// WithCompression makes Encode emit snappy compressed blobs.
func WithCompression(enabled bool) CodecOption {
	return func(c *Codec) {
		c.compress = enabled
	}
}

// WithTensorCount makes Decode reject parameters with a different number of tensors.
func WithTensorCount(n int) CodecOption {
	return func(c *Codec) {
		c.tensorCount = n
	}
}

// WithMaxTensorSize makes Decode reject tensors larger than n bytes once
// decompressed. Values outside (0, MaxTensorSize] are ignored.
func WithMaxTensorSize(n int) CodecOption {
	return func(c *Codec) {
		if n > 0 && n <= MaxTensorSize {
			c.maxTensorSize = n
		}
	}
}

func NewCodec(opts ...CodecOption) Codec {
	c := Codec{maxTensorSize: MaxTensorSize}
	for _, opt := range opts {
		opt(&c)
	}

	return c
}

func (c Codec) Encode(ps ParameterSet) Parameters {
	if !c.compress {
		return Parameters{
			Tensors:    ps.Clone(),
			TensorType: TensorTypeFloat32,
		}
	}

	tensors := make([][]byte, len(ps))
	for i, blob := range ps {
		tensors[i] = snappy.Encode(nil, blob)
	}

	return Parameters{
		Tensors:    tensors,
		TensorType: TensorTypeFloat32Snappy,
	}
}

func (c Codec) Decode(p Parameters) (ParameterSet, error) {
	if c.tensorCount > 0 && len(p.Tensors) != c.tensorCount {
		return nil, fmt.Errorf("%w: expected %d tensors, got %d", ErrDecode, c.tensorCount, len(p.Tensors))
	}

	ps := make(ParameterSet, len(p.Tensors))
	for i, t := range p.Tensors {
		var blob []byte
		switch p.TensorType {
		case TensorTypeFloat32, "":
			if len(t) > c.maxTensorSize {
				return nil, fmt.Errorf("%w: tensor %d: %d bytes exceeds limit of %d", ErrDecode, i, len(t), c.maxTensorSize)
			}
			blob = append([]byte{}, t...)
		case TensorTypeFloat32Snappy:
			n, err := snappy.DecodedLen(t)
			if err != nil {
				return nil, fmt.Errorf("%w: tensor %d: %w", ErrDecode, i, err)
			}
			if n > c.maxTensorSize {
				return nil, fmt.Errorf("%w: tensor %d: decoded size %d exceeds limit of %d", ErrDecode, i, n, c.maxTensorSize)
			}
			decoded, err := snappy.Decode(nil, t)
			if err != nil {
				return nil, fmt.Errorf("%w: tensor %d: %w", ErrDecode, i, err)
			}
			blob = decoded
		default:
			return nil, fmt.Errorf("%w: unsupported tensor type %q", ErrDecode, p.TensorType)
		}

		if err := validateBlob(blob); err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		ps[i] = blob
	}

	return ps, nil
}

// EncodeTensor serializes values into a single tensor blob.
func EncodeTensor(values []float32) []byte {
	blob := make([]byte, tensorHeaderSize+float32Size*len(values))
	binary.LittleEndian.PutUint32(blob, uint32(len(values)))
	for i, v := range values {
		binary.LittleEndian.PutUint32(blob[tensorHeaderSize+float32Size*i:], math.Float32bits(v))
	}

	return blob
}

// DecodeTensor parses a blob produced by EncodeTensor.
func DecodeTensor(blob []byte) ([]float32, error) {
	if err := validateBlob(blob); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(blob)
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[tensorHeaderSize+float32Size*i:]))
	}

	return values, nil
}

// TensorSize returns the blob length of a tensor holding n values.
func TensorSize(n int) int {
	return tensorHeaderSize + float32Size*n
}

func validateBlob(blob []byte) error {
	if len(blob) < tensorHeaderSize {
		return fmt.Errorf("%w: blob of %d bytes has no header", ErrDecode, len(blob))
	}

	n := binary.LittleEndian.Uint32(blob)
	if want := uint64(tensorHeaderSize) + uint64(float32Size)*uint64(n); uint64(len(blob)) != want {
		return fmt.Errorf("%w: blob declares %d values but holds %d bytes", ErrDecode, n, len(blob))
	}

	return nil
}
