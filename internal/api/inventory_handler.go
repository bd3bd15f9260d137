package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/inventory"
)

// OwnerHeader carries the authenticated user id set by the gateway.
const OwnerHeader = "X-User-ID"

// InventoryHandler serves product, sale and purchase endpoints.
type InventoryHandler struct {
	logger  *zap.Logger
	service *inventory.Service
}

func NewInventoryHandler(logger *zap.Logger, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{logger: logger, service: service}
}

func owner(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(OwnerHeader))
}

func pathID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: id %q", inventory.ErrInvalid, c.Params("id"))
	}
	return id, nil
}

func (h *InventoryHandler) fail(c *fiber.Ctx, op string, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrUnauthenticated):
		code = fiber.StatusUnauthorized
	case errors.Is(err, inventory.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, inventory.ErrInsufficientStock):
		code = fiber.StatusConflict
	case errors.Is(err, inventory.ErrInvalid):
		code = fiber.StatusBadRequest
	case errors.Is(err, inventory.ErrUnavailable):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		h.logger.Error("api.inventory_failed", zap.String("op", op), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// --- Products ---

func (h *InventoryHandler) CreateProduct(c *fiber.Ctx) error {
	var in inventory.ProductInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, err)
	}
	p, err := h.service.CreateProduct(c.UserContext(), owner(c), in)
	if err != nil {
		return h.fail(c, "create_product", err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *InventoryHandler) ListProducts(c *fiber.Ctx) error {
	ps, err := h.service.ListProducts(c.UserContext(), owner(c))
	if err != nil {
		return h.fail(c, "list_products", err)
	}
	return c.JSON(ps)
}

func (h *InventoryHandler) GetProduct(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "get_product", err)
	}
	p, err := h.service.GetProduct(c.UserContext(), owner(c), id)
	if err != nil {
		return h.fail(c, "get_product", err)
	}
	return c.JSON(p)
}

func (h *InventoryHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "update_product", err)
	}
	var in inventory.ProductInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, err)
	}
	p, err := h.service.UpdateProduct(c.UserContext(), owner(c), id, in)
	if err != nil {
		return h.fail(c, "update_product", err)
	}
	return c.JSON(p)
}

func (h *InventoryHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "delete_product", err)
	}
	if err := h.service.DeleteProduct(c.UserContext(), owner(c), id); err != nil {
		return h.fail(c, "delete_product", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Sales ---

func (h *InventoryHandler) CreateSale(c *fiber.Ctx) error {
	var in inventory.SaleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, err)
	}
	s, err := h.service.CreateSale(c.UserContext(), owner(c), in)
	if err != nil {
		return h.fail(c, "create_sale", err)
	}
	return c.Status(fiber.StatusCreated).JSON(s)
}

func (h *InventoryHandler) ListSales(c *fiber.Ctx) error {
	ss, err := h.service.ListSales(c.UserContext(), owner(c))
	if err != nil {
		return h.fail(c, "list_sales", err)
	}
	return c.JSON(ss)
}

func (h *InventoryHandler) GetSale(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "get_sale", err)
	}
	s, err := h.service.GetSale(c.UserContext(), owner(c), id)
	if err != nil {
		return h.fail(c, "get_sale", err)
	}
	return c.JSON(s)
}

func (h *InventoryHandler) UpdateSale(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "update_sale", err)
	}
	var in inventory.SaleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, err)
	}
	s, err := h.service.UpdateSale(c.UserContext(), owner(c), id, in)
	if err != nil {
		return h.fail(c, "update_sale", err)
	}
	return c.JSON(s)
}

func (h *InventoryHandler) DeleteSale(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "delete_sale", err)
	}
	if err := h.service.DeleteSale(c.UserContext(), owner(c), id); err != nil {
		return h.fail(c, "delete_sale", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Purchases ---

func (h *InventoryHandler) CreatePurchase(c *fiber.Ctx) error {
	var in inventory.PurchaseInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, err)
	}
	p, err := h.service.CreatePurchase(c.UserContext(), owner(c), in)
	if err != nil {
		return h.fail(c, "create_purchase", err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *InventoryHandler) ListPurchases(c *fiber.Ctx) error {
	ps, err := h.service.ListPurchases(c.UserContext(), owner(c))
	if err != nil {
		return h.fail(c, "list_purchases", err)
	}
	return c.JSON(ps)
}

func (h *InventoryHandler) GetPurchase(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "get_purchase", err)
	}
	p, err := h.service.GetPurchase(c.UserContext(), owner(c), id)
	if err != nil {
		return h.fail(c, "get_purchase", err)
	}
	return c.JSON(p)
}

func (h *InventoryHandler) UpdatePurchase(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "update_purchase", err)
	}
	var in inventory.PurchaseInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, err)
	}
	p, err := h.service.UpdatePurchase(c.UserContext(), owner(c), id, in)
	if err != nil {
		return h.fail(c, "update_purchase", err)
	}
	return c.JSON(p)
}

func (h *InventoryHandler) DeletePurchase(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, "delete_purchase", err)
	}
	if err := h.service.DeletePurchase(c.UserContext(), owner(c), id); err != nil {
		return h.fail(c, "delete_purchase", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Reports ---

func (h *InventoryHandler) Movements(c *fiber.Ctx) error {
	mv, err := h.service.Movements(c.UserContext(), owner(c))
	if err != nil {
		return h.fail(c, "movements", err)
	}
	return c.JSON(mv)
}

func (h *InventoryHandler) Summary(c *fiber.Ctx) error {
	sum, err := h.service.Summary(c.UserContext(), owner(c))
	if err != nil {
		return h.fail(c, "summary", err)
	}
	return c.JSON(sum)
}
