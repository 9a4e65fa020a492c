package approval

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
)

// BatchFailure records one item of a bulk submission that was not accepted.
type BatchFailure struct {
	Index int                 `json:"index"`
	Error *apperrors.AppError `json:"error"`
}

// BatchResult is the outcome of a bulk submission. Items are independent:
// a duplicate-pending conflict on one entity never blocks the rest.
type BatchResult struct {
	BatchID   string               `json:"batch_id"`
	Submitted []repository.Request `json:"submitted"`
	Failed    []BatchFailure       `json:"failed"`
}

// SubmitBatch fans a bulk import out over the bulk worker pool. Every item is
// stamped source BULK_IMPORT with the batch id as its label, so provenance
// survives into the review queue. Results keep the input order.
func (m *Manager) SubmitBatch(ctx context.Context, actor Actor, items []SubmitParams) (BatchResult, error) {
	batchID := newID()
	result := BatchResult{BatchID: batchID}
	if len(items) == 0 {
		return result, nil
	}

	type slot struct {
		req repository.Request
		err error
	}
	slots := make([]slot, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		item.Source = SourceBulkImport
		item.SourceLabel = batchID

		run := func(ctx context.Context) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return
			}
			slots[i].req, slots[i].err = m.Submit(ctx, actor, item)
		}

		wg.Add(1)
		if m.pools == nil {
			run(ctx)
			continue
		}
		if err := m.pools.Bulk.Submit(ctx, run); err != nil {
			// Pool rejected the task (shutdown or cancelled context);
			// fall back to inline so the slot is always filled.
			run(ctx)
		}
	}
	wg.Wait()

	for i := range slots {
		if slots[i].err != nil {
			appErr, ok := apperrors.IsAppError(slots[i].err)
			if !ok {
				appErr = apperrors.Wrap(slots[i].err, "INTERNAL_ERROR",
					"batch item failed", http.StatusInternalServerError)
			}
			result.Failed = append(result.Failed, BatchFailure{Index: i, Error: appErr})
			continue
		}
		result.Submitted = append(result.Submitted, slots[i].req)
	}

	logger.Info("bulk submission completed",
		zap.String("batch_id", batchID),
		zap.Int("accepted", len(result.Submitted)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}
