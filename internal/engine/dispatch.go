package engine

import (
	"context"
	"fmt"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
)

// maxDispatchAttempts bounds how many ready-set entries fetchNext will
// try to claim before giving up and reporting the queue idle, per
// spec.md §4.3's "losers retry ... up to a small bounded number of
// attempts before returning to avoid starvation of the caller."
const maxDispatchAttempts = 5

// probeResult is what the singleflight-collapsed read path produces:
// how many PENDING jobs exist, and the ready-set candidates in
// priority-descending, id-ascending order.
type probeResult struct {
	numPending int
	candidates []*types.Job
}

// FetchNext implements C3: fetch_next(project_id, capacity?). Returns a
// sum-type FetchResult per spec.md §9's design note rather than raising
// an "empty queue" exception.
func (e *Engine) FetchNext(ctx context.Context, projectID int64, capacity *types.Capacity) (types.FetchResult, error) {
	key := probeKey(projectID, capacity)

	raw, err, _ := e.probeGroup.Do(key, func() (any, error) {
		var pr probeResult
		err := e.store.WithTx(ctx, func(tx store.Tx) error {
			pending, err := tx.ListJobsByStatus(ctx, projectID, types.StatusPending)
			if err != nil {
				return fmt.Errorf("engine: counting pending jobs: %w", err)
			}
			pr.numPending = len(pending)
			if pr.numPending == 0 {
				return nil
			}

			candidates, err := readySet(ctx, tx, projectID, capacity)
			if err != nil {
				return err
			}
			pr.candidates = candidates
			return nil
		})
		return pr, err
	})
	if err != nil {
		return types.FetchResult{}, err
	}
	pr := raw.(probeResult)

	if pr.numPending == 0 || len(pr.candidates) == 0 {
		return types.FetchResult{NumPending: pr.numPending}, nil
	}

	attempts := len(pr.candidates)
	if attempts > maxDispatchAttempts {
		attempts = maxDispatchAttempts
	}

	for i := 0; i < attempts; i++ {
		candidate := pr.candidates[i]
		var won *types.Job

		err := e.store.WithTx(ctx, func(tx store.Tx) error {
			fresh, err := tx.GetJobForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-verify status under the lock: another dispatcher may
			// have already claimed this job since the probe ran.
			if fresh.Status != types.StatusPending {
				return nil
			}
			updated, err := tx.TransitionJob(ctx, candidate.ID, types.StatusQueued)
			if err != nil {
				return err
			}
			won = updated
			return nil
		})
		if err != nil {
			return types.FetchResult{}, err
		}
		if won != nil {
			return types.FetchResult{Job: won, NumPending: pr.numPending}, nil
		}
	}

	// No candidate was actually claimed: the probe's candidate list may be
	// stale relative to a concurrent winner's commit (it can be shared via
	// singleflight with another caller), so recount PENDING jobs fresh
	// instead of returning the probe's possibly-stale figure — this is
	// what lets a dispatch loser observe num_pending=0 once the winner's
	// transaction has committed (spec.md §8 E3).
	numPending, err := e.countPending(ctx, projectID)
	if err != nil {
		return types.FetchResult{}, err
	}
	return types.FetchResult{NumPending: numPending}, nil
}

func (e *Engine) countPending(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		pending, err := tx.ListJobsByStatus(ctx, projectID, types.StatusPending)
		if err != nil {
			return err
		}
		n = len(pending)
		return nil
	})
	return n, err
}

func probeKey(projectID int64, capacity *types.Capacity) string {
	if capacity == nil {
		return fmt.Sprintf("%d:nocap", projectID)
	}
	c := capacity.Normalize()
	return fmt.Sprintf("%d:%d:%d", projectID, c.CPU, c.Accelerators)
}
