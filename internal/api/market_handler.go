package api

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/cache"
	"github.com/Checker-Finance/market-intel/internal/market"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// MarketService is the market-analysis surface used by the handler.
type MarketService interface {
	Analyze(ctx context.Context, name string, price float64) *model.MarketReport
	SimilarProducts(ctx context.Context, product string) model.SimilarResult
	BatchSimilar(ctx context.Context, products []string) model.BatchSimilarResult
	BatchAnalyze(ctx context.Context, products []string, prices map[string]float64) model.BatchAnalysisResult
	Evict(ctx context.Context, name string, price float64) error
}

// StatusReporter exposes the latest request status.
type StatusReporter interface {
	Snapshot() model.StatusEvent
}

// LoadReporter exposes coordinator occupancy.
type LoadReporter interface {
	Active() int
	Pending() int
	Limit() int
	Peak() int
	Callers(kind, key string) int
}

// CacheAdmin inspects and clears the result cache.
type CacheAdmin interface {
	Stats(ctx context.Context) (cache.Stats, error)
	Clear(ctx context.Context) (int, error)
}

// MarketHandler serves the market-intelligence endpoints.
type MarketHandler struct {
	logger *zap.Logger
	market MarketService
	status StatusReporter
	load   LoadReporter
	cache  CacheAdmin
}

// NewMarketHandler creates a MarketHandler. status, load and cache may be nil.
func NewMarketHandler(logger *zap.Logger, market MarketService, status StatusReporter, load LoadReporter, c CacheAdmin) *MarketHandler {
	return &MarketHandler{logger: logger, market: market, status: status, load: load, cache: c}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// Analyze handles POST /api/v1/market/analysis. It always answers 200; a
// degraded report is flagged in its body.
func (h *MarketHandler) Analyze(c *fiber.Ctx) error {
	var req AnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	report := h.market.Analyze(c.UserContext(), strings.TrimSpace(req.Product), req.Price)
	if report.Degraded {
		h.logger.Info("api.analysis_degraded", zap.String("key", report.Key))
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

// BatchAnalyze handles POST /api/v1/market/analysis/batch.
func (h *MarketHandler) BatchAnalyze(c *fiber.Ctx) error {
	var req BatchAnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(h.market.BatchAnalyze(c.UserContext(), req.Products, req.Prices))
}

// Similar handles POST /api/v1/market/similar.
func (h *MarketHandler) Similar(c *fiber.Ctx) error {
	var req SimilarRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(h.market.SimilarProducts(c.UserContext(), strings.TrimSpace(req.Product)))
}

// BatchSimilar handles POST /api/v1/market/similar/batch.
func (h *MarketHandler) BatchSimilar(c *fiber.Ctx) error {
	var req BatchSimilarRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(h.market.BatchSimilar(c.UserContext(), req.Products))
}

// Status handles GET /api/v1/market/status.
func (h *MarketHandler) Status(c *fiber.Ctx) error {
	snap := model.StatusEvent{Status: model.StatusIdle}
	if h.status != nil {
		snap = h.status.Snapshot()
	}
	resp := fiber.Map{"status": snap}
	if h.load != nil {
		resp["active"] = h.load.Active()
		resp["pending"] = h.load.Pending()
		resp["limit"] = h.load.Limit()
		resp["peak"] = h.load.Peak()
		if snap.Status == model.StatusLoading && snap.Key != "" {
			resp["waiting"] = h.load.Callers(snap.Kind, snap.Key)
		}
	}
	return c.JSON(resp)
}

// EvictAnalysis handles DELETE /api/v1/market/analysis?product=&price=.
func (h *MarketHandler) EvictAnalysis(c *fiber.Ctx) error {
	req := AnalysisRequest{Product: c.Query("product")}
	if raw := c.Query("price"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return badRequest(c, errors.New("price must be a number"))
		}
		req.Price = p
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	err := h.market.Evict(c.UserContext(), strings.TrimSpace(req.Product), req.Price)
	switch {
	case errors.Is(err, market.ErrNoCache):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache disabled"})
	case err != nil:
		h.logger.Error("api.cache_evict_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CacheStats handles GET /api/v1/market/cache/stats.
func (h *MarketHandler) CacheStats(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache disabled"})
	}
	st, err := h.cache.Stats(c.UserContext())
	if err != nil {
		h.logger.Error("api.cache_stats_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(st)
}

// ClearCache handles DELETE /api/v1/market/cache.
func (h *MarketHandler) ClearCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache disabled"})
	}
	n, err := h.cache.Clear(c.UserContext())
	if err != nil {
		h.logger.Error("api.cache_clear_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	h.logger.Info("api.cache_cleared", zap.Int("removed", n))
	return c.JSON(fiber.Map{"removed": n})
}
