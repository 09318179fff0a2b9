package engine

// Optimizer applies one update to the flattened model weights given the
// gradient of the batch loss.
type Optimizer interface {
	Step(weights, grads []float32, lr float64)
}

// SGD is plain stochastic gradient descent.
type SGD struct{}

func (SGD) Step(weights, grads []float32, lr float64) {
	for i := range weights {
		weights[i] -= float32(lr * float64(grads[i]))
	}
}

// Frozen leaves the weights untouched, so training only measures the loss.
type Frozen struct{}

func (Frozen) Step([]float32, []float32, float64) {}
