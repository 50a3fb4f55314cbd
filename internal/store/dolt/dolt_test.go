package dolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/store/dolt"
	"github.com/whatsnext/whatsnext/internal/testutil"
	"github.com/whatsnext/whatsnext/internal/types"
)

// openTestStore opens an embedded, file-backed Dolt database under a
// tmpfs-backed scratch directory: unlike internal/store/sqlite's
// ":memory:" mode, Dolt's embedded driver always needs a real database
// directory on disk.
func openTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := testutil.TempDirInMemory(t)
	s, err := dolt.Open(context.Background(), dolt.Config{Path: filepath.Join(dir, "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_ProjectTaskJobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var jobID int64
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		proj, err := tx.CreateProject(ctx, "demo", "a project")
		if err != nil {
			return err
		}
		task, err := tx.CreateTask(ctx, proj.ID, "train", "train.sh {lr}", 2, 1)
		if err != nil {
			return err
		}
		job, err := tx.CreateJob(ctx, proj.ID, task.ID, "exp-1", map[string]string{"lr": "0.01"}, 5, nil)
		if err != nil {
			return err
		}
		jobID = job.ID
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		require.NoError(t, err)
		require.Equal(t, "exp-1", job.Name)
		require.Equal(t, "0.01", job.Parameters["lr"])
		return nil
	}))
}

// GetJobForUpdate issues a real SELECT ... FOR UPDATE against Dolt, unlike
// the sqlite adapter's whole-transaction lock — this exercises that the
// query itself is well formed and still returns the row.
func TestStore_GetJobForUpdateLocksAndReturnsRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var jobID int64
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		proj, err := tx.CreateProject(ctx, "demo", "")
		if err != nil {
			return err
		}
		task, err := tx.CreateTask(ctx, proj.ID, "train", "", 0, 0)
		if err != nil {
			return err
		}
		job, err := tx.CreateJob(ctx, proj.ID, task.ID, "exp", nil, 0, nil)
		if err != nil {
			return err
		}
		jobID = job.ID
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		require.NoError(t, err)
		require.Equal(t, jobID, job.ID)
		return nil
	}))
}

func TestStore_WorkerRegisterIsIdempotentUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.RegisterWorker(ctx, "w-1", "worker one", "lab-a", "", types.Capacity{CPU: 2}, now)
		return err
	}))
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		w, err := tx.RegisterWorker(ctx, "w-1", "worker one (renamed)", "lab-a", "", types.Capacity{CPU: 4, Accelerators: 1}, now)
		require.NoError(t, err)
		require.Equal(t, "worker one (renamed)", w.Name)
		require.Equal(t, 4, w.Capacity.CPU)
		return nil
	}))
}

func TestStore_Healthy(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Healthy(context.Background()))
}
