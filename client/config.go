package client

import "time"

const (
	DefEpochs       = 5
	DefRoundTimeout = 10 * time.Minute

	// Keys read from the fit round configuration.
	EpochsKey       = "epochs"
	LocalEpochsKey  = "local_epochs"
	LearningRateKey = "learning_rate"
	BatchSizeKey    = "batch_size"
)

type Config struct {
	ClientID string

	// DefaultEpochs is used when a fit round carries no epoch count.
	DefaultEpochs int

	// RoundTimeout bounds how long a fit round waits for training to finish.
	// Zero disables the bound.
	RoundTimeout time.Duration

	// CompressTensors makes outbound parameters snappy compressed.
	CompressTensors bool

	ReconnectMaxRetries uint64
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultEpochs:      DefEpochs,
		RoundTimeout:       DefRoundTimeout,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  time.Minute,
	}
}
