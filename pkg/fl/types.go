package fl

import (
	"bytes"
	"time"
)

// ParameterSet is the ordered list of tensor blobs that make up a model's weights.
// Order is the identity of each tensor; no names are exchanged.
type ParameterSet [][]byte

// Equal reports whether both sets hold the same blobs in the same order.
func (p ParameterSet) Equal(other ParameterSet) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if !bytes.Equal(p[i], other[i]) {
			return false
		}
	}

	return true
}

// Sizes returns the byte length of every blob.
func (p ParameterSet) Sizes() []int {
	sizes := make([]int, len(p))
	for i, b := range p {
		sizes[i] = len(b)
	}

	return sizes
}

// Clone returns a deep copy of the set.
func (p ParameterSet) Clone() ParameterSet {
	if p == nil {
		return nil
	}
	out := make(ParameterSet, len(p))
	for i, b := range p {
		out[i] = bytes.Clone(b)
	}

	return out
}

// Parameters is the wire representation of a ParameterSet.
type Parameters struct {
	Tensors    [][]byte
	TensorType string
}

type RoundKind string

const (
	FitRound      RoundKind = "fit"
	EvaluateRound RoundKind = "evaluate"
)

// Round is the record of one completed or failed round.
type Round struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       RoundKind `json:"kind"`
	Epochs     int       `json:"epochs,omitempty"`
	NumSamples int       `json:"num_samples"`
	Loss       float64   `json:"loss"`
	MAE        float64   `json:"mae,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type RoundPage struct {
	Offset uint64  `json:"offset"`
	Limit  uint64  `json:"limit"`
	Total  uint64  `json:"total"`
	Rounds []Round `json:"rounds"`
}
