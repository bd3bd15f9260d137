package market

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/cache"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

var errNoHolidaySource = errors.New("no holiday source configured")

var (
	retailKeywords = []string{
		"carnaval", "páscoa", "mães", "namorados", "pais", "crianças",
		"natal", "ano novo", "black friday", "consumidor",
	}
	highImpactTerms   = []string{"natal", "black friday", "mães", "páscoa"}
	mediumImpactTerms = []string{"pais", "namorados", "crianças"}
)

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// ClassifyEventType maps an event name to holiday, seasonal or economic.
func ClassifyEventType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "natal"), strings.Contains(lower, "páscoa"):
		return model.EventHoliday
	case strings.Contains(lower, "mães"), strings.Contains(lower, "pais"):
		return model.EventSeasonal
	default:
		return model.EventEconomic
	}
}

// IsRetailRelevant reports whether an event moves retail demand.
func IsRetailRelevant(name string) bool {
	return containsAny(strings.ToLower(name), retailKeywords)
}

// EventImpact grades an event's expected effect on sales.
func EventImpact(name string) string {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, highImpactTerms):
		return model.ImpactHigh
	case containsAny(lower, mediumImpactTerms):
		return model.ImpactMedium
	default:
		return model.ImpactLow
	}
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

func newEvent(name string, date, now time.Time) model.MarketEvent {
	return model.MarketEvent{
		Name:      name,
		Date:      date,
		Type:      ClassifyEventType(name),
		Impact:    EventImpact(name),
		DaysUntil: int(math.Floor(daysBetween(now, date))),
	}
}

// blackFriday uses a fixed Nov 29 for the given year.
func blackFriday(year int, loc *time.Location) time.Time {
	return time.Date(year, time.November, 29, 0, 0, 0, 0, loc)
}

// SeasonalEvents returns Black Friday and Cyber Monday when still ahead of now.
func SeasonalEvents(now time.Time) []model.MarketEvent {
	bf := blackFriday(now.Year(), now.Location())
	cm := bf.AddDate(0, 0, 3)
	var out []model.MarketEvent
	for _, e := range []struct {
		name string
		date time.Time
	}{{"Black Friday", bf}, {"Cyber Monday", cm}} {
		if e.date.After(now) {
			ev := newEvent(e.name, e.date, now)
			ev.Type = model.EventSeasonal
			ev.Impact = model.ImpactHigh
			out = append(out, ev)
		}
	}
	return out
}

// SelectEvents keeps retail-relevant holidays inside the event window, adds
// the seasonal shopping dates, sorts by date and caps the list.
func SelectEvents(cfg Config, holidays []model.Holiday, now time.Time) []model.MarketEvent {
	events := make([]model.MarketEvent, 0, len(holidays)+2)
	for _, h := range holidays {
		d := daysBetween(now, h.Date)
		if d < -float64(cfg.EventDaysBefore) || d > float64(cfg.EventDaysAfter) {
			continue
		}
		if !IsRetailRelevant(h.Name) {
			continue
		}
		events = append(events, newEvent(h.Name, h.Date, now))
	}
	events = append(events, SeasonalEvents(now)...)
	return sortAndCap(events, cfg.MaxEvents)
}

func sortAndCap(events []model.MarketEvent, limit int) []model.MarketEvent {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

// HolidaySource returns national holidays for a year.
type HolidaySource interface {
	Holidays(ctx context.Context, year int) ([]model.Holiday, error)
}

// Calendar serves holidays from the cache, falling back to the provider.
type Calendar struct {
	logger *zap.Logger
	source HolidaySource
	cache  ResultCache
	ttl    time.Duration
}

func NewCalendar(logger *zap.Logger, source HolidaySource, c ResultCache, ttl time.Duration) *Calendar {
	return &Calendar{logger: logger, source: source, cache: c, ttl: ttl}
}

func holidayParams(year int) cache.Params { return cache.Params{"year": year} }

// Holidays returns the holidays of year, cached when possible.
func (c *Calendar) Holidays(ctx context.Context, year int) ([]model.Holiday, error) {
	if c.cache != nil {
		var hs []model.Holiday
		ok, err := c.cache.Get(ctx, cache.TypeHolidays, holidayParams(year), &hs)
		if err != nil {
			c.logger.Warn("market.holiday_cache_failed", zap.Error(err))
		} else if ok {
			return hs, nil
		}
	}
	return c.Refresh(ctx, year)
}

// Refresh fetches holidays from the provider and stores them in the cache.
func (c *Calendar) Refresh(ctx context.Context, year int) ([]model.Holiday, error) {
	if c.source == nil {
		return nil, errNoHolidaySource
	}
	hs, err := c.source.Holidays(ctx, year)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, cache.TypeHolidays, holidayParams(year), hs, c.ttl); err != nil {
			c.logger.Warn("market.holiday_cache_store_failed", zap.Error(err))
		}
	}
	return hs, nil
}
