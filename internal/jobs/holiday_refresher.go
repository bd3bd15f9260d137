package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// CalendarRefreshedSubject is where refresh completions are announced.
const CalendarRefreshedSubject = "evt.market.calendar.refreshed.v1"

// Calendar reloads holidays for a year from the provider into the cache.
type Calendar interface {
	Refresh(ctx context.Context, year int) ([]model.Holiday, error)
}

// EventPublisher publishes envelopes to the message bus.
type EventPublisher interface {
	PublishEnvelope(ctx context.Context, env *model.Envelope) error
}

// HolidayRefresher periodically reloads the holiday calendar for the
// current and next year so analyses rarely wait on the provider, and emits
// a NATS event for each refreshed year.
type HolidayRefresher struct {
	logger    *zap.Logger
	calendar  Calendar
	publisher EventPublisher // optional
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewHolidayRefresher constructs a background job that runs periodically.
func NewHolidayRefresher(logger *zap.Logger, calendar Calendar, pub EventPublisher, interval time.Duration) *HolidayRefresher {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &HolidayRefresher{
		logger:    logger,
		calendar:  calendar,
		publisher: pub,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start warms the calendar once, then refreshes it every interval until
// Stop is called or ctx is done.
func (r *HolidayRefresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("holiday_refresher.started", zap.Duration("interval", r.interval))
	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("holiday_refresher.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("holiday_refresher.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the refresher. It is safe to call more than once.
func (r *HolidayRefresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// RunOnce refreshes the current and next year and reports how many years
// succeeded.
func (r *HolidayRefresher) RunOnce(ctx context.Context) int {
	start := time.Now()
	year := r.now().Year()
	ok := 0

	for _, y := range []int{year, year + 1} {
		hs, err := r.calendar.Refresh(ctx, y)
		if err != nil {
			metrics.IncError("holiday_refresher", "refresh_failed")
			r.logger.Warn("holiday_refresher.refresh_failed", zap.Int("year", y), zap.Error(err))
			continue
		}
		ok++
		r.publish(ctx, model.CalendarRefreshed{Year: y, Holidays: len(hs), At: r.now().UTC()})
	}

	if ok > 0 {
		metrics.SetLastRefresh("holidays", r.now())
	}
	r.logger.Info("holiday_refresher.done",
		zap.Int("years", ok),
		zap.Duration("duration", time.Since(start)))
	return ok
}

func (r *HolidayRefresher) publish(ctx context.Context, ev model.CalendarRefreshed) {
	if r.publisher == nil {
		return
	}
	env, err := model.NewEnvelope(CalendarRefreshedSubject, "market.calendar.refreshed", ev)
	if err != nil {
		r.logger.Warn("holiday_refresher.encode_failed", zap.Error(err))
		return
	}
	if err := r.publisher.PublishEnvelope(ctx, env); err != nil {
		r.logger.Warn("holiday_refresher.nats_publish_failed", zap.Error(err))
	}
}
