package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/pkg/eventbus"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// ProductInput carries the editable fields of a product.
type ProductInput struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	Supplier    string          `json:"supplier"`
	Notes       string          `json:"notes"`
	Active      *bool           `json:"active,omitempty"`
}

// SaleInput creates or updates a sale. On update a nil Items keeps the
// current items and stock untouched.
type SaleInput struct {
	Items         []model.LineItem    `json:"items"`
	Platform      model.Platform      `json:"platform"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	CustomerName  string              `json:"customer_name"`
	CustomerPhone string              `json:"customer_contact"`
	Notes         string              `json:"notes"`
	Status        *model.TxStatus     `json:"status,omitempty"`
}

// PurchaseInput creates or updates a purchase. On update a nil Items keeps
// the current items and stock untouched.
type PurchaseInput struct {
	Items         []model.LineItem `json:"items"`
	Supplier      string           `json:"supplier"`
	InvoiceNumber string           `json:"invoice_number"`
	Notes         string           `json:"notes"`
	Status        *model.TxStatus  `json:"status,omitempty"`
}

// Service implements the inventory operations on top of a Repository.
type Service struct {
	logger *zap.Logger
	repo   Repository
	events *eventbus.Bus[model.InventoryEvent]
	now    func() time.Time
}

// NewService builds a Service. events may be nil.
func NewService(logger *zap.Logger, repo Repository, events *eventbus.Bus[model.InventoryEvent]) *Service {
	return &Service{logger: logger, repo: repo, events: events, now: time.Now}
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrUnauthenticated
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return invalid("code is required")
	}
	if in.SalePrice.IsNegative() || in.CostPrice.IsNegative() {
		return invalid("prices must not be negative")
	}
	if in.Stock < 0 || in.MinStock < 0 {
		return invalid("stock must not be negative")
	}
	return nil
}

func validateItems(items []model.LineItem) error {
	if len(items) == 0 {
		return invalid("at least one item is required")
	}
	for i, it := range items {
		if it.ProductID == uuid.Nil {
			return invalid("item %d: product_id is required", i)
		}
		if it.Quantity <= 0 {
			return invalid("item %d: quantity must be positive", i)
		}
		if it.UnitPrice.IsNegative() {
			return invalid("item %d: unit_price must not be negative", i)
		}
	}
	return nil
}

func (s *Service) emit(ev model.InventoryEvent) {
	if s.events == nil {
		return
	}
	ev.Timestamp = s.now().UTC()
	s.events.Publish(ev)
}

// --- Products ---

func (s *Service) CreateProduct(ctx context.Context, owner string, in ProductInput) (*model.Product, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &model.Product{
		ID:        uuid.New(),
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
	applyProduct(p, in)
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("inventory.product_created", zap.String("owner", owner), zap.String("id", p.ID.String()))
	s.emit(model.InventoryEvent{Type: model.EventProductCreated, OwnerID: owner, EntityID: p.ID, Stock: &p.Stock})
	return p, nil
}

func applyProduct(p *model.Product, in ProductInput) {
	p.Code = strings.TrimSpace(in.Code)
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Category = in.Category
	p.SalePrice = in.SalePrice
	p.CostPrice = in.CostPrice
	p.Stock = in.Stock
	p.MinStock = in.MinStock
	p.Supplier = in.Supplier
	p.Notes = in.Notes
	if in.Active != nil {
		p.Active = *in.Active
	}
}

func (s *Service) GetProduct(ctx context.Context, owner string, id uuid.UUID) (*model.Product, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, owner, id)
}

func (s *Service) ListProducts(ctx context.Context, owner string) ([]model.Product, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, owner)
}

func (s *Service) UpdateProduct(ctx context.Context, owner string, id uuid.UUID, in ProductInput) (*model.Product, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	var out *model.Product
	err := s.repo.InTx(ctx, func(tx Repository) error {
		p, err := tx.GetProduct(ctx, owner, id)
		if err != nil {
			return err
		}
		applyProduct(p, in)
		p.UpdatedAt = s.now().UTC()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.LowStock() {
		s.emit(model.InventoryEvent{Type: model.EventStockLow, OwnerID: owner, EntityID: out.ID, Stock: &out.Stock})
	}
	return out, nil
}

func (s *Service) DeleteProduct(ctx context.Context, owner string, id uuid.UUID) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, owner, id); err != nil {
		return err
	}
	s.emit(model.InventoryEvent{Type: model.EventProductDeleted, OwnerID: owner, EntityID: id})
	return nil
}

// --- Stock ---

// applyItems moves stock for every item by sign*quantity and fills missing
// item names. It returns the products that ended at or below minimum stock.
func applyItems(ctx context.Context, tx Repository, owner string, items []model.LineItem, sign int) ([]model.Product, error) {
	low := map[uuid.UUID]model.Product{}
	for i := range items {
		it := &items[i]
		p, err := tx.GetProduct(ctx, owner, it.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrNotFound)
			}
			return nil, err
		}
		if it.Name == "" {
			it.Name = p.Name
		}
		stock, err := tx.AdjustStock(ctx, owner, it.ProductID, sign*it.Quantity)
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return nil, fmt.Errorf("%w for %s: available %d, requested %d", ErrInsufficientStock, p.Name, p.Stock, it.Quantity)
			}
			return nil, err
		}
		p.Stock = stock
		if p.LowStock() {
			low[p.ID] = *p
		} else {
			delete(low, p.ID)
		}
	}
	out := make([]model.Product, 0, len(low))
	for _, p := range low {
		out = append(out, p)
	}
	return out, nil
}

// restoreItems reverses applyItems for items of a record being replaced or
// deleted. Products deleted since are skipped.
func restoreItems(ctx context.Context, tx Repository, owner string, items []model.LineItem, sign int) error {
	for _, it := range items {
		_, err := tx.AdjustStock(ctx, owner, it.ProductID, sign*it.Quantity)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", it.ProductID, err)
		}
	}
	return nil
}

func (s *Service) emitLow(owner string, low []model.Product) {
	for _, p := range low {
		stock := p.Stock
		s.emit(model.InventoryEvent{Type: model.EventStockLow, OwnerID: owner, EntityID: p.ID, Stock: &stock})
	}
}

// --- Sales ---

// CreateSale records a pending sale and takes its items out of stock.
func (s *Service) CreateSale(ctx context.Context, owner string, in SaleInput) (*model.Sale, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if !in.Platform.Valid() || !in.PaymentMethod.Valid() {
		return nil, invalid("unknown platform or payment method")
	}

	sale := &model.Sale{
		ID:            uuid.New(),
		OwnerID:       owner,
		Items:         append([]model.LineItem(nil), in.Items...),
		Platform:      in.Platform,
		PaymentMethod: in.PaymentMethod,
		Date:          s.now().UTC(),
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		Notes:         in.Notes,
		Status:        model.TxPending,
	}
	sale.Total = model.Total(sale.Items)

	var low []model.Product
	err := s.repo.InTx(ctx, func(tx Repository) error {
		var err error
		if low, err = applyItems(ctx, tx, owner, sale.Items, -1); err != nil {
			return err
		}
		return tx.CreateSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inventory.sale_created",
		zap.String("owner", owner),
		zap.String("id", sale.ID.String()),
		zap.String("total", sale.Total.StringFixed(2)))
	s.emit(model.InventoryEvent{Type: model.EventSaleCreated, OwnerID: owner, EntityID: sale.ID, Total: sale.Total.StringFixed(2)})
	s.emitLow(owner, low)
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, owner string, id uuid.UUID) (*model.Sale, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.repo.GetSale(ctx, owner, id)
}

func (s *Service) ListSales(ctx context.Context, owner string) ([]model.Sale, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, owner)
}

// UpdateSale edits a sale. When items change the old items go back to
// stock before the new ones are taken out.
func (s *Service) UpdateSale(ctx context.Context, owner string, id uuid.UUID, in SaleInput) (*model.Sale, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if in.Items != nil {
		if err := validateItems(in.Items); err != nil {
			return nil, err
		}
	}
	if !in.Platform.Valid() || !in.PaymentMethod.Valid() || (in.Status != nil && !in.Status.Valid()) {
		return nil, invalid("unknown platform, payment method or status")
	}

	var out *model.Sale
	var low []model.Product
	err := s.repo.InTx(ctx, func(tx Repository) error {
		sale, err := tx.GetSale(ctx, owner, id)
		if err != nil {
			return err
		}
		if in.Items != nil {
			if err := restoreItems(ctx, tx, owner, sale.Items, +1); err != nil {
				return err
			}
			sale.Items = append([]model.LineItem(nil), in.Items...)
			if low, err = applyItems(ctx, tx, owner, sale.Items, -1); err != nil {
				return err
			}
			sale.Total = model.Total(sale.Items)
		}
		sale.Platform = in.Platform
		sale.PaymentMethod = in.PaymentMethod
		sale.CustomerName = in.CustomerName
		sale.CustomerPhone = in.CustomerPhone
		sale.Notes = in.Notes
		if in.Status != nil {
			sale.Status = *in.Status
		}
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		out = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(model.InventoryEvent{Type: model.EventSaleUpdated, OwnerID: owner, EntityID: id, Total: out.Total.StringFixed(2)})
	s.emitLow(owner, low)
	return out, nil
}

// DeleteSale removes a sale and returns its items to stock.
func (s *Service) DeleteSale(ctx context.Context, owner string, id uuid.UUID) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	err := s.repo.InTx(ctx, func(tx Repository) error {
		sale, err := tx.GetSale(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := restoreItems(ctx, tx, owner, sale.Items, +1); err != nil {
			return err
		}
		return tx.DeleteSale(ctx, owner, id)
	})
	if err != nil {
		return err
	}
	s.emit(model.InventoryEvent{Type: model.EventSaleDeleted, OwnerID: owner, EntityID: id})
	return nil
}

// --- Purchases ---

func (in PurchaseInput) validate(update bool) error {
	if in.Items != nil || !update {
		if err := validateItems(in.Items); err != nil {
			return err
		}
	}
	if strings.TrimSpace(in.Supplier) == "" {
		return invalid("supplier is required")
	}
	if in.Status != nil && !in.Status.Valid() {
		return invalid("unknown status")
	}
	return nil
}

// CreatePurchase records a pending purchase and adds its items to stock.
func (s *Service) CreatePurchase(ctx context.Context, owner string, in PurchaseInput) (*model.Purchase, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}

	p := &model.Purchase{
		ID:            uuid.New(),
		OwnerID:       owner,
		Items:         append([]model.LineItem(nil), in.Items...),
		Supplier:      strings.TrimSpace(in.Supplier),
		InvoiceNumber: in.InvoiceNumber,
		Date:          s.now().UTC(),
		Notes:         in.Notes,
		Status:        model.TxPending,
	}
	p.Total = model.Total(p.Items)

	err := s.repo.InTx(ctx, func(tx Repository) error {
		if _, err := applyItems(ctx, tx, owner, p.Items, +1); err != nil {
			return err
		}
		return tx.CreatePurchase(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inventory.purchase_created",
		zap.String("owner", owner),
		zap.String("id", p.ID.String()),
		zap.String("total", p.Total.StringFixed(2)))
	s.emit(model.InventoryEvent{Type: model.EventPurchaseCreated, OwnerID: owner, EntityID: p.ID, Total: p.Total.StringFixed(2)})
	return p, nil
}

func (s *Service) GetPurchase(ctx context.Context, owner string, id uuid.UUID) (*model.Purchase, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.repo.GetPurchase(ctx, owner, id)
}

func (s *Service) ListPurchases(ctx context.Context, owner string) ([]model.Purchase, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.repo.ListPurchases(ctx, owner)
}

// UpdatePurchase edits a purchase. When items change the old items are taken
// back out of stock before the new ones are added.
func (s *Service) UpdatePurchase(ctx context.Context, owner string, id uuid.UUID, in PurchaseInput) (*model.Purchase, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}

	var out *model.Purchase
	var low []model.Product
	err := s.repo.InTx(ctx, func(tx Repository) error {
		p, err := tx.GetPurchase(ctx, owner, id)
		if err != nil {
			return err
		}
		if in.Items != nil {
			if err := restoreItems(ctx, tx, owner, p.Items, -1); err != nil {
				return err
			}
			p.Items = append([]model.LineItem(nil), in.Items...)
			if low, err = applyItems(ctx, tx, owner, p.Items, +1); err != nil {
				return err
			}
			p.Total = model.Total(p.Items)
		}
		p.Supplier = strings.TrimSpace(in.Supplier)
		p.InvoiceNumber = in.InvoiceNumber
		p.Notes = in.Notes
		if in.Status != nil {
			p.Status = *in.Status
		}
		if err := tx.UpdatePurchase(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(model.InventoryEvent{Type: model.EventPurchaseUpdated, OwnerID: owner, EntityID: id, Total: out.Total.StringFixed(2)})
	s.emitLow(owner, low)
	return out, nil
}

// DeletePurchase removes a purchase and takes its items back out of stock.
func (s *Service) DeletePurchase(ctx context.Context, owner string, id uuid.UUID) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	err := s.repo.InTx(ctx, func(tx Repository) error {
		p, err := tx.GetPurchase(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := restoreItems(ctx, tx, owner, p.Items, -1); err != nil {
			return err
		}
		return tx.DeletePurchase(ctx, owner, id)
	})
	if err != nil {
		return err
	}
	s.emit(model.InventoryEvent{Type: model.EventPurchaseDeleted, OwnerID: owner, EntityID: id})
	return nil
}

// --- Reports ---

// Movements merges sales and purchases, newest first.
func (s *Service) Movements(ctx context.Context, owner string) ([]model.Movement, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, owner)
	if err != nil {
		return nil, err
	}
	purchases, err := s.repo.ListPurchases(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]model.Movement, 0, len(sales)+len(purchases))
	for _, sl := range sales {
		out = append(out, model.Movement{ID: sl.ID, Kind: model.MovementSale, Date: sl.Date, Items: sl.Items, Total: sl.Total, Status: sl.Status})
	}
	for _, p := range purchases {
		out = append(out, model.Movement{ID: p.ID, Kind: model.MovementPurchase, Date: p.Date, Items: p.Items, Total: p.Total, Status: p.Status})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// Summary builds the dashboard totals for owner.
func (s *Service) Summary(ctx context.Context, owner string) (*model.Summary, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, owner)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, owner)
	if err != nil {
		return nil, err
	}
	purchases, err := s.repo.ListPurchases(ctx, owner)
	if err != nil {
		return nil, err
	}

	sum := &model.Summary{
		Products:       len(products),
		LowStock:       []model.Product{},
		StockValue:     decimal.Zero,
		SalesTotal:     decimal.Zero,
		PurchasesTotal: decimal.Zero,
		SalesCount:     len(sales),
		PurchasesCount: len(purchases),
	}
	for _, p := range products {
		if p.Active {
			sum.ActiveProducts++
		}
		if p.LowStock() {
			sum.LowStock = append(sum.LowStock, p)
		}
		sum.StockValue = sum.StockValue.Add(p.CostPrice.Mul(decimal.NewFromInt(int64(p.Stock))))
	}
	for _, sl := range sales {
		sum.SalesTotal = sum.SalesTotal.Add(sl.Total)
	}
	for _, p := range purchases {
		sum.PurchasesTotal = sum.PurchasesTotal.Add(p.Total)
	}
	return sum, nil
}
