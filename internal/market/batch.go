package market

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

// BatchSimilar looks up similar products for every entry of products using a
// bounded worker pool. Results keep the input order.
func (a *Aggregator) BatchSimilar(ctx context.Context, products []string) model.BatchSimilarResult {
	out := model.BatchSimilarResult{
		Results: make([]model.SimilarResult, len(products)),
		Stats:   model.BatchStats{Total: len(products)},
	}
	if len(products) == 0 {
		return out
	}

	tracker := a.coord.Tracker()
	var done atomic.Int64
	tracker.Progress(KindBatchSimilar, 0, len(products))

	var g errgroup.Group
	g.SetLimit(a.cfg.SimilarWorkers)
	for i, p := range products {
		g.Go(func() error {
			out.Results[i] = a.SimilarProducts(ctx, p)
			tracker.Progress(KindBatchSimilar, int(done.Add(1)), len(products))
			return nil
		})
	}
	_ = g.Wait()
	tracker.Success(KindBatchSimilar, "")

	for _, r := range out.Results {
		if r.Source == SimilarCache {
			out.Stats.CacheHits++
		} else {
			out.Stats.CacheMisses++
		}
		if r.Degraded {
			out.Stats.Degraded++
		}
	}
	return out
}

// BatchAnalyze runs Analyze for every product. Prices missing from prices
// default to the configured DefaultPrice.
func (a *Aggregator) BatchAnalyze(ctx context.Context, products []string, prices map[string]float64) model.BatchAnalysisResult {
	out := model.BatchAnalysisResult{
		Reports: make([]*model.MarketReport, len(products)),
		Stats:   model.BatchStats{Total: len(products)},
	}
	if len(products) == 0 {
		return out
	}

	tracker := a.coord.Tracker()
	var done atomic.Int64
	tracker.Progress(KindBatchAnalysis, 0, len(products))

	var g errgroup.Group
	g.SetLimit(a.cfg.AnalysisWorkers)
	for i, p := range products {
		price, ok := prices[p]
		if !ok || price <= 0 {
			price = a.cfg.DefaultPrice
		}
		g.Go(func() error {
			out.Reports[i] = a.Analyze(ctx, p, price)
			tracker.Progress(KindBatchAnalysis, int(done.Add(1)), len(products))
			return nil
		})
	}
	_ = g.Wait()
	tracker.Success(KindBatchAnalysis, "")

	for _, r := range out.Reports {
		if r.Cached {
			out.Stats.CacheHits++
		} else {
			out.Stats.CacheMisses++
		}
		if r.Degraded {
			out.Stats.Degraded++
		}
	}
	return out
}
