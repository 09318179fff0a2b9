package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

const (
	NumFeatures = 10

	MinRating = 0.0
	MaxRating = 5.0

	syntheticSamples = 100
	syntheticSeed    = 42
)

type Sample struct {
	Features []float32 `json:"x"`
	Label    float32   `json:"y"`
}

// Dataset holds the local splits. The evaluation split is a prefix of the
// training split, a quarter of its size.
type Dataset struct {
	Train []Sample
	Test  []Sample
}

// DatasetSource supplies the local dataset for a slice.
type DatasetSource interface {
	Load(ctx context.Context, slice string) (Dataset, error)
}

// NewDataset splits samples into a training set of all samples and an
// evaluation set of the first quarter.
func NewDataset(samples []Sample) (Dataset, error) {
	if len(samples) == 0 {
		return Dataset{}, fmt.Errorf("dataset is empty")
	}
	for i, s := range samples {
		if len(s.Features) != NumFeatures {
			return Dataset{}, fmt.Errorf("sample %d has %d features, expected %d", i, len(s.Features), NumFeatures)
		}
	}

	test := max(len(samples)/4, 1)

	return Dataset{
		Train: samples,
		Test:  samples[:test],
	}, nil
}

// Synthetic generates the reproducible user behaviour dataset for slice.
// The same slice always yields the same samples.
func Synthetic(slice string) Dataset {
	h := fnv.New64a()
	_, _ = h.Write([]byte(slice))
	r := rand.New(rand.NewPCG(syntheticSeed, h.Sum64()))

	samples := make([]Sample, syntheticSamples)
	for i := range samples {
		x := make([]float32, NumFeatures)
		x[0] = float32(r.IntN(5)) // device
		x[1] = float32(r.IntN(2)) // os
		x[2] = float32(r.IntN(2)) // gender
		for j := 3; j <= 8; j++ {
			x[j] = r.Float32() // age, app usage, screen time, battery drain, apps installed, data usage
		}
		x[9] = float32(r.IntN(5)) // behaviour class

		rating := 5 * (0.25*x[4] + 0.20*x[5] + 0.15*x[6] + 0.15*x[7] + 0.25*x[8])
		rating += (r.Float32() - 0.5) * 0.5

		samples[i] = Sample{Features: x, Label: clampRating(rating)}
	}

	ds, _ := NewDataset(samples)

	return ds
}

func clampRating(v float32) float32 {
	return min(max(v, MinRating), MaxRating)
}
