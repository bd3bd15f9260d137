package market

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/cache"
	"github.com/Checker-Finance/market-intel/internal/coordinator"
	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/internal/provider/similar"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Similar result sources.
const (
	SimilarRemote = "remote"
	SimilarLocal  = "local"
	SimilarCache  = "cache"
)

// SimilarProducts returns up to three product names similar to product.
// The remote generator is tried first; on failure the local rules are used
// and the result is flagged degraded. Degraded results are not cached.
func (a *Aggregator) SimilarProducts(ctx context.Context, product string) model.SimilarResult {
	key := coordinator.NormalizeName(product)
	params := cache.Params{"product": key}

	if a.cache != nil {
		var cached model.SimilarResult
		ok, err := a.cache.Get(ctx, cache.TypeSimilar, params, &cached)
		if err != nil {
			a.logger.Warn("market.cache_get_failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			a.coord.Tracker().MarkCached(KindSimilar, key)
			cached.Source = SimilarCache
			return cached
		}
	}

	res, err := coordinator.Run(ctx, a.coord, KindSimilar, key, func(ctx context.Context) (model.SimilarResult, error) {
		if a.similar == nil {
			return a.localSimilar(product), fmt.Errorf("%w: no similar source configured", ErrDegraded)
		}
		items, err := a.similar.Generate(ctx, product)
		if err != nil {
			a.logger.Warn("market.provider_failed",
				zap.String("source", SourceSimilar),
				zap.String("key", key),
				zap.Error(err))
			metrics.IncFallback(SourceSimilar)
			return a.localSimilar(product), fmt.Errorf("%w: %w", ErrDegraded, err)
		}
		r := model.SimilarResult{Product: product, Similar: items, Source: SimilarRemote}
		if a.cache != nil {
			if err := a.cache.Put(ctx, cache.TypeSimilar, params, r, a.cfg.SimilarTTL); err != nil {
				a.logger.Warn("market.cache_put_failed", zap.String("key", key), zap.Error(err))
			}
		}
		return r, nil
	})
	if res.Product == "" {
		if err != nil && !errors.Is(err, ErrDegraded) {
			a.logger.Warn("market.similar_fallback", zap.String("key", key), zap.Error(err))
		}
		return a.localSimilar(product)
	}
	return res
}

func (a *Aggregator) localSimilar(product string) model.SimilarResult {
	return model.SimilarResult{
		Product:  product,
		Similar:  similar.LocalSimilar(product),
		Source:   SimilarLocal,
		Degraded: true,
	}
}
