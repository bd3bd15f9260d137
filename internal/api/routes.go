package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is any dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RegisterRoutes mounts metrics, health and the v1 API. nc may be nil when
// event publishing is disabled; it is then reported but not fatal.
func RegisterRoutes(app *fiber.App, nc *nats.Conn, checks map[string]HealthChecker,
	marketHandler *MarketHandler,
	inventoryHandler *InventoryHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		results := map[string]string{"nats": "ok"}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil {
			results["nats"] = "disabled"
		} else if !nc.IsConnected() {
			results["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			results["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for name, hc := range checks {
			results[name] = "ok"
			if err := hc.HealthCheck(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	v1 := app.Group("/api/v1")

	if marketHandler != nil {
		m := v1.Group("/market")
		m.Post("/analysis", marketHandler.Analyze)
		m.Post("/analysis/batch", marketHandler.BatchAnalyze)
		m.Post("/similar", marketHandler.Similar)
		m.Post("/similar/batch", marketHandler.BatchSimilar)
		m.Get("/status", marketHandler.Status)
		m.Get("/cache/stats", marketHandler.CacheStats)
		m.Delete("/cache", marketHandler.ClearCache)
		m.Delete("/analysis", marketHandler.EvictAnalysis)
	}

	if inventoryHandler != nil {
		v1.Get("/products", inventoryHandler.ListProducts)
		v1.Post("/products", inventoryHandler.CreateProduct)
		v1.Get("/products/:id", inventoryHandler.GetProduct)
		v1.Put("/products/:id", inventoryHandler.UpdateProduct)
		v1.Delete("/products/:id", inventoryHandler.DeleteProduct)

		v1.Get("/sales", inventoryHandler.ListSales)
		v1.Post("/sales", inventoryHandler.CreateSale)
		v1.Get("/sales/:id", inventoryHandler.GetSale)
		v1.Put("/sales/:id", inventoryHandler.UpdateSale)
		v1.Delete("/sales/:id", inventoryHandler.DeleteSale)

		v1.Get("/purchases", inventoryHandler.ListPurchases)
		v1.Post("/purchases", inventoryHandler.CreatePurchase)
		v1.Get("/purchases/:id", inventoryHandler.GetPurchase)
		v1.Put("/purchases/:id", inventoryHandler.UpdatePurchase)
		v1.Delete("/purchases/:id", inventoryHandler.DeletePurchase)

		v1.Get("/movements", inventoryHandler.Movements)
		v1.Get("/dashboard/summary", inventoryHandler.Summary)
	}
}
