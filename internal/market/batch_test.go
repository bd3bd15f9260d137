package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

type fakeSimilar struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSimilar) Generate(_ context.Context, product string) ([]string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []string{product + " A", product + " B"}, nil
}

func TestSimilarProducts_RemoteThenCache(t *testing.T) {
	sim := &fakeSimilar{}
	a, log := newTestAggregator(t, 2, Sources{Similar: sim, Cache: newTestCache(t)})

	r := a.SimilarProducts(context.Background(), "Mouse")
	assert.Equal(t, SimilarRemote, r.Source)
	assert.False(t, r.Degraded)
	assert.Equal(t, []string{"Mouse A", "Mouse B"}, r.Similar)

	r = a.SimilarProducts(context.Background(), "mouse")
	assert.Equal(t, SimilarCache, r.Source)
	assert.Equal(t, []string{"Mouse A", "Mouse B"}, r.Similar)
	assert.EqualValues(t, 1, sim.calls.Load())
	assert.Equal(t, 2, log.count(KindSimilar, model.StatusSuccess))
}

func TestSimilarProducts_RemoteFailureUsesLocalRules(t *testing.T) {
	sim := &fakeSimilar{err: errors.New("connection refused")}
	a, log := newTestAggregator(t, 2, Sources{Similar: sim, Cache: newTestCache(t)})

	r := a.SimilarProducts(context.Background(), "Mouse gamer")
	assert.Equal(t, SimilarLocal, r.Source)
	assert.True(t, r.Degraded)
	assert.Equal(t, []string{"Mouse Logitech G502", "Mouse Razer DeathAdder", "Mouse sem fio Microsoft"}, r.Similar)
	assert.Equal(t, 1, log.count(KindSimilar, model.StatusError))

	a.SimilarProducts(context.Background(), "Mouse gamer")
	assert.EqualValues(t, 2, sim.calls.Load())
}

func TestSimilarProducts_NoSource(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{})
	r := a.SimilarProducts(context.Background(), "Vaso")
	assert.Equal(t, []string{"Vaso Premium", "Vaso Plus", "Vaso Básico"}, r.Similar)
	assert.True(t, r.Degraded)
}

func TestBatchSimilar_OrderAndStats(t *testing.T) {
	sim := &fakeSimilar{}
	a, log := newTestAggregator(t, 2, Sources{Similar: sim, Cache: newTestCache(t)})
	a.SimilarProducts(context.Background(), "b")

	res := a.BatchSimilar(context.Background(), []string{"a", "b", "c", "d"})
	require.Len(t, res.Results, 4)
	for i, p := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, p, res.Results[i].Product)
	}
	assert.Equal(t, model.BatchStats{Total: 4, CacheHits: 1, CacheMisses: 3}, res.Stats)
	assert.EqualValues(t, 4, sim.calls.Load())

	log.mu.Lock()
	defer log.mu.Unlock()
	var last *model.Progress
	for _, ev := range log.events {
		if ev.Kind == KindBatchSimilar && ev.Progress != nil {
			last = ev.Progress
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, model.Progress{Current: 4, Total: 4}, *last)
}

func TestBatchSimilar_Empty(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{})
	res := a.BatchSimilar(context.Background(), nil)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, res.Stats.Total)
}

func TestBatchAnalyze_DefaultPriceAndDegradedCount(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{Competitors: sampleCompetitors(), Holidays: sampleHolidays(), Cache: newTestCache(t)})

	res := a.BatchAnalyze(context.Background(), []string{"Fone X", "Mouse"}, map[string]float64{"Fone X": 80})
	require.Len(t, res.Reports, 2)
	assert.Equal(t, 80.0, res.Reports[0].Price)
	assert.Equal(t, 100.0, res.Reports[1].Price)
	assert.Equal(t, 0, res.Stats.Degraded)
	assert.Equal(t, 2, res.Stats.CacheMisses)

	res = a.BatchAnalyze(context.Background(), []string{"Fone X"}, map[string]float64{"Fone X": 80})
	assert.Equal(t, 1, res.Stats.CacheHits)
}
