package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/storage/badger"
)

type Config struct {
	Type string `env:"FLEDGE_STORAGE_TYPE" envDefault:"memory"`

	BadgerPath string `env:"FLEDGE_BADGER_PATH" envDefault:"./data/badger"`
}

type Repositories struct {
	Rounds RoundRepository
	// Closer closes the underlying persistent storage.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory", "":
		return newMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds: &badgerRoundAdapter{repo: badger.NewRoundRepository(db)},
		Closer: db,
	}, nil
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Rounds: newMemoryRoundRepository(NewInMemoryStorage()),
	}
}

type badgerRoundAdapter struct {
	repo badger.RoundRepository
}

func (a *badgerRoundAdapter) Create(ctx context.Context, r fl.Round) error {
	return a.repo.Create(ctx, r)
}

func (a *badgerRoundAdapter) Get(ctx context.Context, id string) (fl.Round, error) {
	r, err := a.repo.Get(ctx, id)
	if errors.Is(err, badger.ErrRoundNotFound) {
		return fl.Round{}, ErrRoundNotFound
	}
	if err != nil {
		return fl.Round{}, err
	}

	return r, nil
}

func (a *badgerRoundAdapter) List(ctx context.Context, offset, limit uint64) ([]fl.Round, uint64, error) {
	return a.repo.List(ctx, offset, limit)
}
