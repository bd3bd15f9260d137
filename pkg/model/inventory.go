package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Platform is the sales channel of a sale.
type Platform int

const (
	PlatformStore     Platform = iota // LOJA_FISICA
	PlatformECommerce                 // E_COMMERCE
	PlatformApp                       // APLICATIVO
	PlatformOther                     // OUTRO
)

// Valid returns true if the platform is one of the known constants.
func (p Platform) Valid() bool { return p >= PlatformStore && p <= PlatformOther }

// PaymentMethod is how a sale was paid.
type PaymentMethod int

const (
	PaymentCash PaymentMethod = iota
	PaymentCreditCard
	PaymentDebitCard
	PaymentPix
	PaymentBoleto
	PaymentOther
)

// Valid returns true if the payment method is one of the known constants.
func (m PaymentMethod) Valid() bool { return m >= PaymentCash && m <= PaymentOther }

// TxStatus is the lifecycle state of a sale or purchase.
type TxStatus int

const (
	TxPending TxStatus = iota
	TxDone
	TxCanceled
)

// Valid returns true if the status is one of the known constants.
func (s TxStatus) Valid() bool { return s >= TxPending && s <= TxCanceled }

// Movement kinds.
const (
	MovementSale       = "venda"
	MovementPurchase   = "compra"
	MovementAdjustment = "ajuste"
	MovementLoss       = "perda"
	MovementReturn     = "devolucao"
)

// Product is an inventory item (SKU).
type Product struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	Supplier    string          `json:"supplier,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LowStock reports whether stock is at or below the minimum.
func (p Product) LowStock() bool { return p.Stock <= p.MinStock }

// LineItem is one product line of a sale or purchase.
type LineItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity times unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the subtotals of items.
func Total(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// Sale is a sales transaction.
type Sale struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Platform      Platform        `json:"platform"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Date          time.Time       `json:"date"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerPhone string          `json:"customer_contact,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Status        TxStatus        `json:"status"`
}

// Purchase is a supplier purchase transaction.
type Purchase struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Supplier      string          `json:"supplier"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Date          time.Time       `json:"date"`
	Notes         string          `json:"notes,omitempty"`
	Status        TxStatus        `json:"status"`
}

// Movement is a stock movement derived from a sale or purchase.
type Movement struct {
	ID     uuid.UUID       `json:"id"`
	Kind   string          `json:"kind"`
	Date   time.Time       `json:"date"`
	Items  []LineItem      `json:"items"`
	Total  decimal.Decimal `json:"total"`
	Status TxStatus        `json:"status"`
}

// Summary is the dashboard view over an owner's inventory.
type Summary struct {
	Products       int             `json:"products"`
	ActiveProducts int             `json:"active_products"`
	LowStock       []Product       `json:"low_stock"`
	StockValue     decimal.Decimal `json:"stock_value"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	PurchasesTotal decimal.Decimal `json:"purchases_total"`
	SalesCount     int             `json:"sales_count"`
	PurchasesCount int             `json:"purchases_count"`
}
