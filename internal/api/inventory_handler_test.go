package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/inventory"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

func newInventoryApp() *fiber.App {
	app := fiber.New()
	svc := inventory.NewService(zap.NewNop(), inventory.NewMemStore(), nil)
	RegisterRoutes(app, nil, nil, nil, NewInventoryHandler(zap.NewNop(), svc))
	return app
}

func createProduct(t *testing.T, app *fiber.App, user string, stock int) model.Product {
	t.Helper()
	body := fmt.Sprintf(`{"code":"SKU-1","name":"Fone","sale_price":"50.00","cost_price":"20","stock":%d,"min_stock":1}`, stock)
	resp, raw := doJSON(t, app, http.MethodPost, "/api/v1/products", body, OwnerHeader, user)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var p model.Product
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func TestInventory_RequiresOwner(t *testing.T) {
	app := newInventoryApp()

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/products", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInventory_ProductLifecycle(t *testing.T) {
	app := newInventoryApp()
	p := createProduct(t, app, "u1", 5)
	assert.Equal(t, "u1", p.OwnerID)
	assert.True(t, p.Active)

	resp, raw := doJSON(t, app, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"name":"Fone"`)

	// Other users cannot see it.
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", OwnerHeader, "u2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = doJSON(t, app, http.MethodPut, "/api/v1/products/"+p.ID.String(),
		`{"code":"SKU-1","name":"Fone BT","sale_price":"55","cost_price":"20","stock":5,"min_stock":1}`, OwnerHeader, "u1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"name":"Fone BT"`)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/products/"+p.ID.String(), "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInventory_InvalidInput(t *testing.T) {
	app := newInventoryApp()

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/products/not-a-uuid", "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/products", `{"code":"X"}`, OwnerHeader, "u1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/sales", `{"items":[]}`, OwnerHeader, "u1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInventory_SaleAdjustsStock(t *testing.T) {
	app := newInventoryApp()
	p := createProduct(t, app, "u1", 3)

	sale := fmt.Sprintf(`{"items":[{"product_id":"%s","quantity":2,"unit_price":"50"}],"platform":1,"payment_method":3}`, p.ID)
	resp, raw := doJSON(t, app, http.MethodPost, "/api/v1/sales", sale, OwnerHeader, "u1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var s model.Sale
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, "100", s.Total.String())
	assert.Equal(t, "Fone", s.Items[0].Name)

	_, raw = doJSON(t, app, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", OwnerHeader, "u1")
	assert.Contains(t, string(raw), `"stock":1`)

	// Selling more than is left conflicts.
	resp, raw = doJSON(t, app, http.MethodPost, "/api/v1/sales", sale, OwnerHeader, "u1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(raw), "Fone")

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/sales/"+s.ID.String(), "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, raw = doJSON(t, app, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", OwnerHeader, "u1")
	assert.Contains(t, string(raw), `"stock":3`)
}

func TestInventory_PurchaseMovementsAndSummary(t *testing.T) {
	app := newInventoryApp()
	p := createProduct(t, app, "u1", 0)

	purchase := fmt.Sprintf(`{"items":[{"product_id":"%s","quantity":4,"unit_price":"20"}],"supplier":"ACME"}`, p.ID)
	resp, raw := doJSON(t, app, http.MethodPost, "/api/v1/purchases", purchase, OwnerHeader, "u1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	sale := fmt.Sprintf(`{"items":[{"product_id":"%s","quantity":1,"unit_price":"50"}]}`, p.ID)
	resp, raw = doJSON(t, app, http.MethodPost, "/api/v1/sales", sale, OwnerHeader, "u1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = doJSON(t, app, http.MethodGet, "/api/v1/movements", "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var mv []model.Movement
	require.NoError(t, json.Unmarshal(raw, &mv))
	require.Len(t, mv, 2)

	resp, raw = doJSON(t, app, http.MethodGet, "/api/v1/dashboard/summary", "", OwnerHeader, "u1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var sum model.Summary
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, 1, sum.Products)
	assert.Equal(t, "60", sum.StockValue.String())
}
