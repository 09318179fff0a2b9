package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/storage"
)

// Observer is notified of round progress. EpochCompleted runs on the engine's
// training goroutine and should return quickly.
type Observer interface {
	EpochCompleted(ctx context.Context, roundID string, p engine.Progress)
	RoundCompleted(ctx context.Context, r fl.Round)
}

// Observers fans events out to every member.
type Observers []Observer

func (o Observers) EpochCompleted(ctx context.Context, roundID string, p engine.Progress) {
	for _, obs := range o {
		obs.EpochCompleted(ctx, roundID, p)
	}
}

func (o Observers) RoundCompleted(ctx context.Context, r fl.Round) {
	for _, obs := range o {
		obs.RoundCompleted(ctx, r)
	}
}

// Tracker keeps the latest progress for status queries.
type Tracker struct {
	mu           sync.Mutex
	lastProgress engine.Progress
	lastRound    fl.Round
	completed    int
	failed       int
}

var _ Observer = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) EpochCompleted(_ context.Context, _ string, p engine.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastProgress = p
}

func (t *Tracker) RoundCompleted(_ context.Context, r fl.Round) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastRound = r
	if r.Error != "" {
		t.failed++

		return
	}
	t.completed++
}

type TrackerSnapshot struct {
	LastProgress    engine.Progress `json:"last_progress"`
	LastRound       fl.Round        `json:"last_round"`
	CompletedRounds int             `json:"completed_rounds"`
	FailedRounds    int             `json:"failed_rounds"`
}

func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TrackerSnapshot{
		LastProgress:    t.lastProgress,
		LastRound:       t.lastRound,
		CompletedRounds: t.completed,
		FailedRounds:    t.failed,
	}
}

// History persists every finished round.
type History struct {
	repo   storage.RoundRepository
	logger *slog.Logger
}

var _ Observer = (*History)(nil)

func NewHistory(repo storage.RoundRepository, logger *slog.Logger) *History {
	return &History{
		repo:   repo,
		logger: logger,
	}
}

func (h *History) EpochCompleted(context.Context, string, engine.Progress) {}

func (h *History) RoundCompleted(ctx context.Context, r fl.Round) {
	if err := h.repo.Create(ctx, r); err != nil {
		h.logger.Error("failed to store round", slog.String("round_id", r.ID), slog.Any("error", err))
	}
}
