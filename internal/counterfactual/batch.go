package counterfactual

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"trade-outcome-lab/internal/domain"
)

// BatchError records one failed trade of a batch.
type BatchError struct {
	TradeID string
	Err     error
}

func (e BatchError) Error() string {
	return e.TradeID + ": " + e.Err.Error()
}

func (e BatchError) Unwrap() error { return e.Err }

// RunBatch runs scenario for every trade id with bounded concurrency.
// A failing trade is reported in the error list and does not stop the batch.
// Results keep the order of tradeIDs.
func (e *Engine) RunBatch(ctx context.Context, tradeIDs []string, scenario domain.Scenario) ([]*domain.CounterfactualResult, []BatchError) {
	ids := lo.Uniq(tradeIDs)
	results := make([]*domain.CounterfactualResult, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = e.RunCounterfactual(gctx, id, scenario)
			return nil
		})
	}
	_ = g.Wait()

	var failures []BatchError
	for i, err := range errs {
		if err != nil {
			failures = append(failures, BatchError{TradeID: ids[i], Err: err})
		}
	}
	return lo.Compact(results), failures
}
