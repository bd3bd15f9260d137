package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Checker-Finance/market-intel/internal/cache"
	"github.com/Checker-Finance/market-intel/internal/coordinator"
	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/internal/provider/mercadolivre"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// ErrDegraded marks a result built partly or wholly from synthetic data.
var ErrDegraded = errors.New("market data degraded")

// ErrNoCache is returned by cache operations when no result cache is configured.
var ErrNoCache = errors.New("result cache disabled")

// Source names reported in MarketReport.Sources.
const (
	SourceCompetitors = "competitors"
	SourceItems       = "items"
	SourceSearch      = "search"
	SourceEvents      = "events"
	SourceSimilar     = "similar"
)

// CompetitorSource searches marketplace listings.
type CompetitorSource interface {
	Search(ctx context.Context, term string, limit int) ([]mercadolivre.SearchResult, error)
	Item(ctx context.Context, id string) (*mercadolivre.ItemDetail, error)
}

// SimilarSource generates similar product names.
type SimilarSource interface {
	Generate(ctx context.Context, product string) ([]string, error)
}

// ResultCache stores computed results by type and parameters.
type ResultCache interface {
	Get(ctx context.Context, cacheType string, params cache.Params, dest any) (bool, error)
	Put(ctx context.Context, cacheType string, params cache.Params, value any, ttl time.Duration) error
	Delete(ctx context.Context, cacheType string, params cache.Params) error
}

// EventPublisher publishes envelopes to the message bus.
type EventPublisher interface {
	PublishEnvelope(ctx context.Context, env *model.Envelope) error
}

// Sources bundles the aggregator's collaborators. Cache, Publisher and
// Similar may be nil.
type Sources struct {
	Competitors CompetitorSource
	Holidays    HolidaySource
	Similar     SimilarSource
	Cache       ResultCache
	Publisher   EventPublisher
}

// Aggregator fans out to market data providers and merges their results
// into a MarketReport.
type Aggregator struct {
	logger      *zap.Logger
	cfg         Config
	coord       *coordinator.Coordinator
	competitors CompetitorSource
	calendar    *Calendar
	similar     SimilarSource
	cache       ResultCache
	publisher   EventPublisher
	fallback    *FallbackSynthesizer
	now         func() time.Time
}

func NewAggregator(logger *zap.Logger, cfg Config, coord *coordinator.Coordinator, src Sources) *Aggregator {
	cfg = cfg.withDefaults()
	return &Aggregator{
		logger:      logger,
		cfg:         cfg,
		coord:       coord,
		competitors: src.Competitors,
		calendar:    NewCalendar(logger, src.Holidays, src.Cache, cfg.HolidayTTL),
		similar:     src.Similar,
		cache:       src.Cache,
		publisher:   src.Publisher,
		fallback:    NewFallbackSynthesizer(cfg),
		now:         time.Now,
	}
}

// Calendar returns the cached holiday calendar.
func (a *Aggregator) Calendar() *Calendar { return a.calendar }

// Coordinator returns the request coordinator.
func (a *Aggregator) Coordinator() *coordinator.Coordinator { return a.coord }

// analysisParams rounds price exactly as NormalizeKey does, so requests that
// share a dedup key also share a cache entry.
func analysisParams(name string, price float64) cache.Params {
	return cache.Params{
		"product": coordinator.NormalizeName(name),
		"price":   strconv.FormatFloat(price, 'f', 2, 64),
	}
}

// Evict drops the cached report for name at price so the next Analyze
// recomputes it.
func (a *Aggregator) Evict(ctx context.Context, name string, price float64) error {
	if a.cache == nil {
		return ErrNoCache
	}
	if err := a.cache.Delete(ctx, cache.TypeAnalysis, analysisParams(name, price)); err != nil {
		return fmt.Errorf("evict %s: %w", coordinator.NormalizeKey(name, price), err)
	}
	a.logger.Info("market.analysis_evicted", zap.String("key", coordinator.NormalizeKey(name, price)))
	return nil
}

// Analyze produces a market report for name at price. It never returns nil
// and never fails: provider failures are replaced with synthetic data and
// flagged in Degraded and Sources. Callers must not mutate the result,
// which may be shared with concurrent callers.
func (a *Aggregator) Analyze(ctx context.Context, name string, price float64) *model.MarketReport {
	key := coordinator.NormalizeKey(name, price)
	params := analysisParams(name, price)

	if a.cache != nil {
		var cached model.MarketReport
		ok, err := a.cache.Get(ctx, cache.TypeAnalysis, params, &cached)
		if err != nil {
			a.logger.Warn("market.cache_get_failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			a.coord.Tracker().MarkCached(KindMarket, key)
			cached.Cached = true
			return &cached
		}
	}

	report, err := coordinator.Run(ctx, a.coord, KindMarket, key, func(ctx context.Context) (*model.MarketReport, error) {
		r, failed := a.analyze(ctx, name, price, key)
		a.publishCompleted(ctx, r)
		if len(failed) > 0 {
			return r, fmt.Errorf("%w: %s", ErrDegraded, strings.Join(failed, ", "))
		}
		if a.cache != nil {
			if err := a.cache.Put(ctx, cache.TypeAnalysis, params, r, a.cfg.AnalysisTTL); err != nil {
				a.logger.Warn("market.cache_put_failed", zap.String("key", key), zap.Error(err))
			}
		}
		return r, nil
	})
	if report == nil {
		a.logger.Warn("market.analysis_fallback",
			zap.String("key", key),
			zap.Error(err))
		metrics.IncFallback("report")
		return a.fallback.Report(name, price)
	}
	return report
}

// analyze runs the provider pipeline and returns the report with the names
// of the sources that had to be synthesized.
func (a *Aggregator) analyze(ctx context.Context, name string, price float64, key string) (*model.MarketReport, []string) {
	now := a.now()
	report := &model.MarketReport{
		RequestID:   uuid.NewString(),
		Product:     name,
		Price:       price,
		Key:         key,
		GeneratedAt: now.UTC(),
	}
	var failed []string

	competitors, searchErr := a.fetchCompetitors(ctx, coordinator.NormalizeName(name))
	if searchErr != nil {
		a.logger.Warn("market.provider_failed",
			zap.String("source", SourceCompetitors),
			zap.String("key", key),
			zap.Error(searchErr))
		metrics.IncFallback(SourceCompetitors)
		failed = append(failed, SourceCompetitors)
		competitors = a.fallback.Competitors(name, price, now)
	}
	report.Sources = append(report.Sources, sourceStatus(SourceCompetitors, searchErr))

	enriched := competitors
	var search model.SearchInterest
	var events []model.MarketEvent
	var eventsErr error
	itemFailures := -1

	g, gctx := errgroup.WithContext(ctx)
	if searchErr == nil && len(competitors) > 0 {
		g.Go(func() error {
			enriched, itemFailures = a.enrich(gctx, competitors, now)
			return nil
		})
	}
	g.Go(func() error {
		if searchErr != nil {
			search = model.SearchInterest{
				Score:          a.cfg.FallbackScore,
				Trend:          a.fallback.Trend(key, a.cfg.FallbackScore, now),
				RelatedQueries: RelatedQueries(name, a.cfg.MaxRelatedQueries),
				Seasonality:    Seasonality(name),
			}
			return nil
		}
		search = SearchInterestFor(a.cfg, name, key, competitors, now)
		return nil
	})
	g.Go(func() error {
		events, eventsErr = a.fetchEvents(gctx, now)
		return nil
	})
	_ = g.Wait()

	if itemFailures >= 0 {
		status := model.SourceStatus{Name: SourceItems, OK: itemFailures == 0}
		if itemFailures > 0 {
			status.Error = fmt.Sprintf("%d of %d item lookups failed", itemFailures, len(competitors))
		}
		report.Sources = append(report.Sources, status)
	}
	report.Sources = append(report.Sources, model.SourceStatus{Name: SourceSearch, OK: searchErr == nil, Synthetic: searchErr != nil})
	if eventsErr != nil {
		a.logger.Warn("market.provider_failed",
			zap.String("source", SourceEvents),
			zap.String("key", key),
			zap.Error(eventsErr))
		metrics.IncFallback(SourceEvents)
		failed = append(failed, SourceEvents)
		events = a.fallback.Events(now)
	}
	report.Sources = append(report.Sources, sourceStatus(SourceEvents, eventsErr))

	if enriched == nil {
		enriched = []model.Competitor{}
	}
	if events == nil {
		events = []model.MarketEvent{}
	}
	report.Competitors = enriched
	report.AveragePrice = math.Round(AveragePrice(enriched)*100) / 100
	report.Search = search
	report.Events = events
	report.PriceComparison = BuildPriceComparison(price, enriched, a.cfg.TitleMaxLen)
	report.Popularity = BuildPopularity(enriched, a.cfg.TitleMaxLen)
	report.Insights = BuildInsights(a.cfg, price, enriched, search)
	report.Degraded = len(failed) > 0
	return report, failed
}

func sourceStatus(name string, err error) model.SourceStatus {
	if err != nil {
		return model.SourceStatus{Name: name, OK: false, Synthetic: true, Error: err.Error()}
	}
	return model.SourceStatus{Name: name, OK: true}
}

func (a *Aggregator) fetchCompetitors(ctx context.Context, term string) ([]model.Competitor, error) {
	if a.competitors == nil {
		return nil, errors.New("no competitor source configured")
	}
	results, err := a.competitors.Search(ctx, term, a.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	return SelectCompetitors(results, a.cfg.MaxCompetitors), nil
}

// SelectCompetitors keeps the first limit results with distinct normalized
// titles. Market share is computed against every result.
func SelectCompetitors(results []mercadolivre.SearchResult, limit int) []model.Competitor {
	totalSold := 0
	for _, r := range results {
		totalSold += max(0, r.SoldQuantity)
	}
	seen := make(map[string]struct{}, len(results))
	out := make([]model.Competitor, 0, limit)
	for _, r := range results {
		if len(out) >= limit {
			break
		}
		title := coordinator.NormalizeName(r.Title)
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, model.Competitor{
			ID:           r.ID,
			Title:        r.Title,
			Price:        r.Price,
			SoldQuantity: r.SoldQuantity,
			Permalink:    r.Permalink,
			Thumbnail:    r.Thumbnail,
			CreatedAt:    r.DateCreated,
			SearchVolume: EstimateSearchVolume(r.Title, r.SoldQuantity),
			MarketShare:  EstimateMarketShare(r.SoldQuantity, totalSold),
		})
	}
	return out
}

// enrich refreshes sold quantity and creation date from item details.
// A failed lookup keeps the listing as found by the search.
func (a *Aggregator) enrich(ctx context.Context, items []model.Competitor, now time.Time) ([]model.Competitor, int) {
	out := slices.Clone(items)
	failures := make([]bool, len(out))

	var g errgroup.Group
	for i := range out {
		g.Go(func() error {
			d, err := a.competitors.Item(ctx, out[i].ID)
			if err != nil {
				a.logger.Debug("market.item_lookup_failed",
					zap.String("id", out[i].ID),
					zap.Error(err))
				failures[i] = true
				return nil
			}
			if d.SoldQuantity != nil {
				out[i].SoldQuantity = *d.SoldQuantity
			}
			if !d.DateCreated.IsZero() {
				out[i].CreatedAt = d.DateCreated
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for i := range out {
		out[i].MonthlySales = MonthlySales(out[i].SoldQuantity, out[i].CreatedAt, now)
		if failures[i] {
			n++
		}
	}
	return out, n
}

func (a *Aggregator) fetchEvents(ctx context.Context, now time.Time) ([]model.MarketEvent, error) {
	if a.calendar.source == nil {
		return nil, errNoHolidaySource
	}
	holidays, err := a.calendar.Holidays(ctx, now.Year())
	if err != nil {
		return nil, err
	}
	// the event window may reach into the neighbouring year
	for _, y := range []int{
		now.AddDate(0, 0, -a.cfg.EventDaysBefore).Year(),
		now.AddDate(0, 0, a.cfg.EventDaysAfter).Year(),
	} {
		if y == now.Year() {
			continue
		}
		extra, err := a.calendar.Holidays(ctx, y)
		if err != nil {
			a.logger.Debug("market.adjacent_year_holidays_failed", zap.Int("year", y), zap.Error(err))
			continue
		}
		holidays = append(holidays, extra...)
	}
	return SelectEvents(a.cfg, holidays, now), nil
}

func (a *Aggregator) publishCompleted(ctx context.Context, r *model.MarketReport) {
	if a.publisher == nil {
		return
	}
	env, err := model.NewEnvelope(a.cfg.EventsSubject, "market.analysis.completed", model.AnalysisCompleted{
		RequestID:    r.RequestID,
		Product:      r.Product,
		Key:          r.Key,
		Price:        r.Price,
		AveragePrice: r.AveragePrice,
		Score:        r.Search.Score,
		Competitors:  len(r.Competitors),
		Degraded:     r.Degraded,
	})
	if err != nil {
		a.logger.Warn("market.event_encode_failed", zap.Error(err))
		return
	}
	env.CorrelationID = r.RequestID
	if err := a.publisher.PublishEnvelope(ctx, env); err != nil {
		a.logger.Warn("market.event_publish_failed",
			zap.String("request_id", r.RequestID),
			zap.Error(err))
	}
}
