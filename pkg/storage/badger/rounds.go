package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/absmach/fledge/pkg/fl"
)

const (
	roundPrefix   = "round:"
	roundIDPrefix = "round-id:"
)

type roundRepo struct {
	db *Database
}

func NewRoundRepository(db *Database) RoundRepository {
	return &roundRepo{db: db}
}

func roundKey(r fl.Round) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", roundPrefix, r.StartedAt.UnixNano(), r.ID)
}

func (r *roundRepo) Create(ctx context.Context, round fl.Round) error {
	val, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	key := roundKey(round)
	if err := r.db.setAll(
		[2][]byte{key, val},
		[2][]byte{[]byte(roundIDPrefix + round.ID), key},
	); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *roundRepo) Get(ctx context.Context, id string) (fl.Round, error) {
	key, err := r.db.get([]byte(roundIDPrefix + id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fl.Round{}, ErrRoundNotFound
		}

		return fl.Round{}, err
	}
	val, err := r.db.get(key)
	if err != nil {
		return fl.Round{}, ErrRoundNotFound
	}
	var round fl.Round
	if err := json.Unmarshal(val, &round); err != nil {
		return fl.Round{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return round, nil
}

func (r *roundRepo) List(ctx context.Context, offset, limit uint64) ([]fl.Round, uint64, error) {
	prefix := []byte(roundPrefix)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	rounds := make([]fl.Round, len(values))
	for i, val := range values {
		var round fl.Round
		if err := json.Unmarshal(val, &round); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
		rounds[i] = round
	}

	return rounds, total, nil
}
