package badger_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/storage/badger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDB    *badger.Database
	invalidID = "invalid-id-that-does-not-exist"
)

func TestMain(m *testing.M) {
	dbPath := filepath.Join(os.TempDir(), "badger_test_"+uuid.NewString())

	var err error
	testDB, err = badger.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.RemoveAll(dbPath)

	os.Exit(code)
}

func testRound(startedAt time.Time) fl.Round {
	return fl.Round{
		ID:         uuid.NewString(),
		SessionID:  uuid.NewString(),
		Kind:       fl.FitRound,
		Epochs:     5,
		NumSamples: 100,
		Loss:       0.25,
		StartedAt:  startedAt.UTC(),
		FinishedAt: startedAt.Add(time.Second).UTC(),
	}
}

func newDatabase(t *testing.T) *badger.Database {
	t.Helper()

	db, err := badger.NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRoundRepository_Get(t *testing.T) {
	repo := badger.NewRoundRepository(testDB)
	ctx := context.Background()

	round := testRound(time.Now())
	require.NoError(t, repo.Create(ctx, round))

	cases := []struct {
		desc    string
		roundID string
		err     error
	}{
		{
			desc:    "get existing round",
			roundID: round.ID,
			err:     nil,
		},
		{
			desc:    "get non-existing round",
			roundID: invalidID,
			err:     badger.ErrRoundNotFound,
		},
		{
			desc:    "get with empty ID",
			roundID: "",
			err:     badger.ErrRoundNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			retrieved, err := repo.Get(ctx, tc.roundID)
			assert.Equal(t, tc.err, err, fmt.Sprintf("%s: expected error %v, got %v", tc.desc, tc.err, err))
			if err == nil {
				assert.Equal(t, round.ID, retrieved.ID)
				assert.Equal(t, round.SessionID, retrieved.SessionID)
				assert.Equal(t, round.Kind, retrieved.Kind)
				assert.Equal(t, round.Loss, retrieved.Loss)
				assert.True(t, round.StartedAt.Equal(retrieved.StartedAt))
			}
		})
	}
}

func TestRoundRepository_List(t *testing.T) {
	repo := badger.NewRoundRepository(newDatabase(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	// Insert newest first; List must still return them oldest first.
	for i := 4; i >= 0; i-- {
		r := testRound(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, repo.Create(ctx, r))
		ids = append([]string{r.ID}, ids...)
	}

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		ids    []string
	}{
		{
			desc:   "list all rounds",
			offset: 0,
			limit:  10,
			ids:    ids,
		},
		{
			desc:   "list with offset",
			offset: 2,
			limit:  2,
			ids:    ids[2:4],
		},
		{
			desc:   "list past the end",
			offset: 10,
			limit:  10,
			ids:    nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			rounds, total, err := repo.List(ctx, tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(ids)), total)

			got := make([]string, 0, len(rounds))
			for _, r := range rounds {
				got = append(got, r.ID)
			}
			assert.Equal(t, len(tc.ids), len(got))
			for i := range tc.ids {
				assert.Equal(t, tc.ids[i], got[i])
			}
		})
	}
}
