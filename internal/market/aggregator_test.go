package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/cache"
	"github.com/Checker-Finance/market-intel/internal/coordinator"
	"github.com/Checker-Finance/market-intel/internal/httpclient"
	"github.com/Checker-Finance/market-intel/internal/provider/mercadolivre"
	"github.com/Checker-Finance/market-intel/pkg/eventbus"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

var testNow = time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.New(rdb, zap.NewNop())
}

type statusLog struct {
	mu     sync.Mutex
	events []model.StatusEvent
}

func (s *statusLog) add(ev model.StatusEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *statusLog) count(kind string, st model.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind && ev.Status == st {
			n++
		}
	}
	return n
}

type fakeCompetitors struct {
	mu          sync.Mutex
	results     []mercadolivre.SearchResult
	items       map[string]*mercadolivre.ItemDetail
	searchErr   error
	itemErr     error
	gate        chan struct{}
	searchCalls atomic.Int32
}

func (f *fakeCompetitors) Search(ctx context.Context, _ string, _ int) ([]mercadolivre.SearchResult, error) {
	f.searchCalls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeCompetitors) Item(_ context.Context, id string) (*mercadolivre.ItemDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	if d, ok := f.items[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

type fakePublisher struct {
	mu   sync.Mutex
	envs []*model.Envelope
}

func (p *fakePublisher) PublishEnvelope(_ context.Context, env *model.Envelope) error {
	p.mu.Lock()
	p.envs = append(p.envs, env)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envs)
}

func intp(n int) *int { return &n }

func sampleCompetitors() *fakeCompetitors {
	return &fakeCompetitors{
		results: []mercadolivre.SearchResult{
			{ID: "MLB1", Title: "Fone X Pro", Price: 90, SoldQuantity: 100, DateCreated: testNow.AddDate(0, 0, -60)},
			{ID: "MLB2", Title: "fone-x pro", Price: 95, SoldQuantity: 50},
			{ID: "MLB3", Title: "Fone Y", Price: 110, SoldQuantity: 250, DateCreated: testNow.AddDate(0, 0, -300)},
		},
		items: map[string]*mercadolivre.ItemDetail{
			"MLB1": {ID: "MLB1", SoldQuantity: intp(120)},
			"MLB3": {ID: "MLB3", SoldQuantity: intp(300)},
		},
	}
}

func sampleHolidays() *stubHolidays {
	return &stubHolidays{hs: []model.Holiday{
		{Date: time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC), Name: "Dia das Crianças"},
		{Date: time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC), Name: "Finados"},
	}}
}

func newTestAggregator(t *testing.T, maxConcurrent int, src Sources) (*Aggregator, *statusLog) {
	t.Helper()
	bus := eventbus.New[model.StatusEvent]()
	log := &statusLog{}
	bus.Subscribe(log.add)
	coord := coordinator.New(zap.NewNop(), coordinator.Config{MaxConcurrent: maxConcurrent, CallTimeout: 5 * time.Second}, coordinator.NewTracker(bus))
	a := NewAggregator(zap.NewNop(), DefaultConfig(), coord, src)
	a.now = func() time.Time { return testNow }
	return a, log
}

func TestAnalyze_BuildsReport(t *testing.T) {
	comps := sampleCompetitors()
	pub := &fakePublisher{}
	a, log := newTestAggregator(t, 2, Sources{
		Competitors: comps,
		Holidays:    sampleHolidays(),
		Cache:       newTestCache(t),
		Publisher:   pub,
	})

	r := a.Analyze(context.Background(), "Fone X", 100)
	require.NotNil(t, r)
	assert.False(t, r.Degraded)
	assert.False(t, r.Cached)
	assert.NotEmpty(t, r.RequestID)
	assert.Equal(t, "fone x|100.00", r.Key)

	require.Len(t, r.Competitors, 2)
	assert.Equal(t, "MLB1", r.Competitors[0].ID)
	assert.Equal(t, "MLB3", r.Competitors[1].ID)
	assert.Equal(t, 120, r.Competitors[0].SoldQuantity)
	assert.Equal(t, 60, r.Competitors[0].MonthlySales)
	assert.Equal(t, 30, r.Competitors[1].MonthlySales)
	assert.Equal(t, 25, r.Competitors[0].MarketShare)
	assert.Equal(t, 63, r.Competitors[1].MarketShare)
	assert.Equal(t, 100.0, r.AveragePrice)

	assert.Equal(t, 28, r.Search.Score)
	assert.Len(t, r.Search.Trend, 12)
	assert.Equal(t, model.SeasonalityLow, r.Search.Seasonality)

	assert.Equal(t, MsgPriceAligned, r.Insights.Price)
	assert.Equal(t, "Mercado ativo com 210 vendas médias. Líder tem 300 vendas.", r.Insights.Popularity)
	assert.Equal(t, MsgLowInterest, r.Insights.Search)
	assert.Equal(t, []int{120, 300}, r.Popularity.Sales)

	var names []string
	for _, e := range r.Events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Dia das Crianças", "Black Friday", "Cyber Monday"}, names)

	for _, s := range r.Sources {
		assert.True(t, s.OK, s.Name)
		assert.False(t, s.Synthetic, s.Name)
	}
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, SubjectAnalysisCompleted, pub.envs[0].Topic)
	assert.Equal(t, 1, log.count(KindMarket, model.StatusSuccess))

	again := a.Analyze(context.Background(), "fone x", 100)
	assert.True(t, again.Cached)
	assert.Equal(t, r.RequestID, again.RequestID)
	assert.EqualValues(t, 1, comps.searchCalls.Load())
	assert.Equal(t, 1, pub.count())
}

func TestAnalyze_CacheKeyMatchesDedupKeyOnHalfCent(t *testing.T) {
	comps := sampleCompetitors()
	a, _ := newTestAggregator(t, 2, Sources{
		Competitors: comps,
		Holidays:    sampleHolidays(),
		Cache:       newTestCache(t),
	})

	// 0.125 sits exactly between cents; both keys must round it the same way.
	key := coordinator.NormalizeKey("fone", 0.125)
	assert.Equal(t, "fone|"+analysisParams("fone", 0.125)["price"].(string), key)

	first := a.Analyze(context.Background(), "fone", 0.125)
	require.False(t, first.Degraded)
	again := a.Analyze(context.Background(), "fone", 0.12)
	assert.True(t, again.Cached)
	assert.Equal(t, first.RequestID, again.RequestID)
	assert.EqualValues(t, 1, comps.searchCalls.Load())
}

func TestEvict_RecomputesNextAnalysis(t *testing.T) {
	comps := sampleCompetitors()
	a, _ := newTestAggregator(t, 2, Sources{
		Competitors: comps,
		Holidays:    sampleHolidays(),
		Cache:       newTestCache(t),
	})
	ctx := context.Background()

	first := a.Analyze(ctx, "Fone X", 100)
	require.NoError(t, a.Evict(ctx, "fone x", 100))

	again := a.Analyze(ctx, "Fone X", 100)
	assert.False(t, again.Cached)
	assert.NotEqual(t, first.RequestID, again.RequestID)
	assert.EqualValues(t, 2, comps.searchCalls.Load())
}

func TestEvict_WithoutCache(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{Competitors: sampleCompetitors(), Holidays: sampleHolidays()})
	assert.ErrorIs(t, a.Evict(context.Background(), "fone", 10), ErrNoCache)
}

func TestAnalyze_ConcurrentSameKeyMakesOneCall(t *testing.T) {
	comps := sampleCompetitors()
	comps.gate = make(chan struct{})
	a, _ := newTestAggregator(t, 2, Sources{Competitors: comps, Holidays: sampleHolidays()})

	key := coordinator.NormalizeKey("Fone X", 100)
	var wg sync.WaitGroup
	results := make([]*model.MarketReport, 2)
	for i, name := range []string{"Fone X", "fone x!"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.Analyze(context.Background(), name, 100)
		}()
	}

	require.Eventually(t, func() bool {
		return a.Coordinator().Callers(KindMarket, key) == 2
	}, 2*time.Second, time.Millisecond)
	close(comps.gate)
	wg.Wait()

	assert.EqualValues(t, 1, comps.searchCalls.Load())
	assert.Same(t, results[0], results[1])
}

func TestAnalyze_ConcurrencyBounded(t *testing.T) {
	var inflight, peak atomic.Int32
	release := make(chan struct{})
	comps := &blockingCompetitors{inflight: &inflight, peak: &peak, release: release}
	a, _ := newTestAggregator(t, 2, Sources{Competitors: comps, Holidays: sampleHolidays()})

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Analyze(context.Background(), name, 10)
		}()
	}
	require.Eventually(t, func() bool { return a.Coordinator().Pending() == 3 }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.LessOrEqual(t, a.Coordinator().Peak(), 2)
}

type blockingCompetitors struct {
	inflight *atomic.Int32
	peak     *atomic.Int32
	release  chan struct{}
}

func (b *blockingCompetitors) Search(_ context.Context, _ string, _ int) ([]mercadolivre.SearchResult, error) {
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	return nil, nil
}

func (b *blockingCompetitors) Item(_ context.Context, _ string) (*mercadolivre.ItemDetail, error) {
	return nil, errors.New("unused")
}

func TestAnalyze_RetriesThenFallsBack(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := httpclient.New(zap.NewNop(), nil, srv.Client(), 2, time.Millisecond, mercadolivre.Name, mercadolivre.ErrorHandler(zap.NewNop()))
	client := mercadolivre.NewClient(zap.NewNop(), exec, srv.URL, nil)
	a, log := newTestAggregator(t, 2, Sources{
		Competitors: client,
		Holidays:    sampleHolidays(),
		Cache:       newTestCache(t),
	})

	r := a.Analyze(context.Background(), "Caneca", 30)
	require.NotNil(t, r)
	assert.EqualValues(t, 3, hits.Load())
	assert.True(t, r.Degraded)
	require.Len(t, r.Competitors, 2)
	for _, c := range r.Competitors {
		assert.True(t, c.Synthetic)
	}
	assert.Equal(t, 50, r.Search.Score)
	assert.Len(t, r.Search.Trend, 12)
	assert.Equal(t, 1, log.count(KindMarket, model.StatusError))
	assert.Equal(t, 0, log.count(KindMarket, model.StatusSuccess))

	var competitors model.SourceStatus
	for _, s := range r.Sources {
		if s.Name == SourceCompetitors {
			competitors = s
		}
	}
	assert.False(t, competitors.OK)
	assert.True(t, competitors.Synthetic)
	assert.Contains(t, competitors.Error, "failed after 3 attempts")

	// degraded reports are not cached
	a.Analyze(context.Background(), "Caneca", 30)
	assert.EqualValues(t, 6, hits.Load())
}

func TestAnalyze_HolidayFailureUsesStaticCalendar(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{
		Competitors: sampleCompetitors(),
		Holidays:    &stubHolidays{err: errors.New("brasilapi down")},
	})

	r := a.Analyze(context.Background(), "Fone X", 100)
	assert.True(t, r.Degraded)
	require.Len(t, r.Competitors, 2)
	assert.False(t, r.Competitors[0].Synthetic)

	var names []string
	for _, e := range r.Events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Dia das Crianças", "Black Friday"}, names)
}

func TestAnalyze_ItemFailureKeepsListing(t *testing.T) {
	comps := sampleCompetitors()
	comps.itemErr = errors.New("timeout")
	a, _ := newTestAggregator(t, 2, Sources{Competitors: comps, Holidays: sampleHolidays()})

	r := a.Analyze(context.Background(), "Fone X", 100)
	assert.False(t, r.Degraded)
	require.Len(t, r.Competitors, 2)
	assert.Equal(t, 100, r.Competitors[0].SoldQuantity)

	var items model.SourceStatus
	for _, s := range r.Sources {
		if s.Name == SourceItems {
			items = s
		}
	}
	assert.False(t, items.OK)
	assert.Equal(t, "2 of 2 item lookups failed", items.Error)
}

func TestAnalyze_NeverFailsWhenClosed(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{Competitors: sampleCompetitors(), Holidays: sampleHolidays()})
	a.Coordinator().Close()

	r := a.Analyze(context.Background(), "Fone X", 100)
	require.NotNil(t, r)
	assert.True(t, r.Degraded)
	assert.Equal(t, MsgFallbackSearch, r.Insights.Search)
}

func TestAnalyze_NoSourcesConfigured(t *testing.T) {
	a, _ := newTestAggregator(t, 2, Sources{})

	r := a.Analyze(context.Background(), "Mouse", 50)
	require.NotNil(t, r)
	assert.True(t, r.Degraded)
	assert.Len(t, r.Competitors, 2)
	assert.NotNil(t, r.Events)
}

func TestAnalyze_DeterministicForSameInputs(t *testing.T) {
	a1, _ := newTestAggregator(t, 2, Sources{Competitors: sampleCompetitors(), Holidays: sampleHolidays()})
	a2, _ := newTestAggregator(t, 2, Sources{Competitors: sampleCompetitors(), Holidays: sampleHolidays()})

	r1 := a1.Analyze(context.Background(), "Fone X", 100)
	r2 := a2.Analyze(context.Background(), "Fone X", 100)
	assert.Equal(t, r1.Competitors, r2.Competitors)
	assert.Equal(t, r1.Search, r2.Search)
	assert.Equal(t, r1.Events, r2.Events)
	assert.Equal(t, r1.Insights, r2.Insights)
	assert.NotEqual(t, r1.RequestID, r2.RequestID)

	f1, _ := newTestAggregator(t, 2, Sources{Holidays: sampleHolidays()})
	f2, _ := newTestAggregator(t, 2, Sources{Holidays: sampleHolidays()})
	assert.Equal(t,
		f1.Analyze(context.Background(), "Caneca", 30).Competitors,
		f2.Analyze(context.Background(), "Caneca", 30).Competitors)
}

func TestSelectCompetitors(t *testing.T) {
	cs := SelectCompetitors(sampleCompetitors().results, 2)
	require.Len(t, cs, 2)
	assert.Equal(t, "Fone X Pro", cs[0].Title)
	assert.Equal(t, "Fone Y", cs[1].Title)
	assert.Equal(t, 16, cs[0].SearchVolume)

	assert.Len(t, SelectCompetitors(sampleCompetitors().results, 1), 1)
	assert.Empty(t, SelectCompetitors(nil, 2))
}
