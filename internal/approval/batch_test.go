package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"changegate.io/changegate/internal/approval"
	"changegate.io/changegate/internal/notification"
	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/pkg/worker"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/testutil"
	"changegate.io/changegate/internal/workflow"
)

func newBatchManager(t *testing.T, prefix string) (*approval.Manager, *repository.Queries) {
	t.Helper()
	pool := testutil.OpenMigratedPool(t, prefix)
	q := repository.New(pool)

	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{
		GeneralPoolSize: 4,
		BulkPoolSize:    4,
	})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	triggers := notification.NewTriggers(notification.NewInboxSender(q))
	return approval.NewManager(pool, nil, triggers, pools), q
}

func TestSubmitBatch(t *testing.T) {
	m, _ := newBatchManager(t, "batch_submit")
	ctx := context.Background()

	items := []approval.SubmitParams{
		createParams("SALES_DATA"),
		createParams("MARKETING_DATA"),
		createParams("FINANCE_DATA"),
	}

	result, err := m.SubmitBatch(ctx, requester, items)
	require.NoError(t, err)
	require.NotEmpty(t, result.BatchID)
	require.Len(t, result.Submitted, 3)
	require.Empty(t, result.Failed)

	for _, req := range result.Submitted {
		require.Equal(t, approval.SourceBulkImport, req.Source)
		require.Equal(t, result.BatchID, req.SourceLabel)
		require.Equal(t, workflow.StatusPending, req.Status)
	}
}

func TestSubmitBatchPartialFailure(t *testing.T) {
	m, _ := newBatchManager(t, "batch_partial")
	ctx := context.Background()

	// Occupy one entity so the matching batch item conflicts.
	_, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	bad := createParams("FINANCE_DATA")
	bad.ProposedState = nil

	items := []approval.SubmitParams{
		createParams("SALES_DATA"),     // duplicate pending
		createParams("MARKETING_DATA"), // fine
		bad,                            // validation failure
	}

	result, err := m.SubmitBatch(ctx, requester, items)
	require.NoError(t, err, "item failures must not fail the batch call")
	require.Len(t, result.Submitted, 1)
	require.Equal(t, "MARKETING_DATA", result.Submitted[0].EntityID)
	require.Len(t, result.Failed, 2)

	codes := map[int]string{}
	for _, f := range result.Failed {
		codes[f.Index] = f.Error.Code
	}
	require.Equal(t, apperrors.CodeDuplicateRequest, codes[0])
	require.Equal(t, apperrors.CodeInvalidRequestField, codes[2])
}

func TestSubmitBatchEmpty(t *testing.T) {
	m, _ := newBatchManager(t, "batch_empty")

	result, err := m.SubmitBatch(context.Background(), requester, nil)
	require.NoError(t, err)
	require.Empty(t, result.Submitted)
	require.Empty(t, result.Failed)
}

func TestSubmitBatchCancelledContextReturns(t *testing.T) {
	m, q := newBatchManager(t, "batch_cancel")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []approval.SubmitParams{
		createParams("SALES_DATA"),
		createParams("MARKETING_DATA"),
	}

	type outcome struct {
		result approval.BatchResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() { //nolint:naked-goroutine // test helper
		result, err := m.SubmitBatch(ctx, requester, items)
		ch <- outcome{result, err}
	}()

	select {
	case out := <-ch:
		require.NoError(t, out.err)
		require.Empty(t, out.result.Submitted)
		require.Len(t, out.result.Failed, len(items), "every item must report a result")
	case <-time.After(10 * time.Second):
		t.Fatal("bulk submission did not return after context cancellation")
	}

	pending, err := q.ListPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending, "no request may be persisted for a cancelled batch")
}

func TestSubmitBatchDuplicateWithinBatch(t *testing.T) {
	m, _ := newBatchManager(t, "batch_internal_dup")
	ctx := context.Background()

	items := []approval.SubmitParams{
		createParams("SALES_DATA"),
		createParams("SALES_DATA"),
	}

	result, err := m.SubmitBatch(ctx, requester, items)
	require.NoError(t, err)
	require.Len(t, result.Submitted, 1, "only one of two identical entities may enter the queue")
	require.Len(t, result.Failed, 1)
	require.Equal(t, apperrors.CodeDuplicateRequest, result.Failed[0].Error.Code)
}
