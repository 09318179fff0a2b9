package storage

import (
	"context"
	"fmt"

	"github.com/absmach/fledge/pkg/fl"
)

// RoundRepository keeps the history of finished rounds, oldest first.
type RoundRepository interface {
	Create(ctx context.Context, r fl.Round) error
	Get(ctx context.Context, id string) (fl.Round, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.Round, uint64, error)
}

// RoundKey orders rounds by start time, then by ID.
func RoundKey(r fl.Round) string {
	return fmt.Sprintf("%020d:%s", r.StartedAt.UnixNano(), r.ID)
}
