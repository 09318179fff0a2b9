package storage

import (
	"context"
	"sync"

	"github.com/absmach/fledge/pkg/fl"
)

type memoryRoundRepo struct {
	storage Storage

	mu   sync.RWMutex
	keys map[string]string
}

func newMemoryRoundRepository(s Storage) RoundRepository {
	return &memoryRoundRepo{
		storage: s,
		keys:    make(map[string]string),
	}
}

func (r *memoryRoundRepo) Create(ctx context.Context, round fl.Round) error {
	if round.ID == "" {
		return ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[round.ID]; ok {
		return ErrEntityExists
	}
	key := RoundKey(round)
	if err := r.storage.Create(ctx, key, round); err != nil {
		return err
	}
	r.keys[round.ID] = key

	return nil
}

func (r *memoryRoundRepo) Get(ctx context.Context, id string) (fl.Round, error) {
	r.mu.RLock()
	key, ok := r.keys[id]
	r.mu.RUnlock()
	if !ok {
		return fl.Round{}, ErrRoundNotFound
	}

	data, err := r.storage.Get(ctx, key)
	if err != nil {
		return fl.Round{}, err
	}
	round, ok := data.(fl.Round)
	if !ok {
		return fl.Round{}, ErrInvalidData
	}

	return round, nil
}

func (r *memoryRoundRepo) List(ctx context.Context, offset, limit uint64) ([]fl.Round, uint64, error) {
	data, total, err := r.storage.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	rounds := make([]fl.Round, len(data))
	for i, d := range data {
		round, ok := d.(fl.Round)
		if !ok {
			return nil, 0, ErrInvalidData
		}
		rounds[i] = round
	}

	return rounds, total, nil
}
