package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Repository persists an owner's products, sales and purchases. Every method
// is scoped by owner; records of other owners behave as missing.
type Repository interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, owner string, id uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, owner string) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, owner string, id uuid.UUID) error

	// AdjustStock adds delta to a product's stock and returns the new value.
	// It fails with ErrInsufficientStock when the result would be negative.
	AdjustStock(ctx context.Context, owner string, id uuid.UUID, delta int) (int, error)

	CreateSale(ctx context.Context, s *model.Sale) error
	GetSale(ctx context.Context, owner string, id uuid.UUID) (*model.Sale, error)
	ListSales(ctx context.Context, owner string) ([]model.Sale, error)
	UpdateSale(ctx context.Context, s *model.Sale) error
	DeleteSale(ctx context.Context, owner string, id uuid.UUID) error

	CreatePurchase(ctx context.Context, p *model.Purchase) error
	GetPurchase(ctx context.Context, owner string, id uuid.UUID) (*model.Purchase, error)
	ListPurchases(ctx context.Context, owner string) ([]model.Purchase, error)
	UpdatePurchase(ctx context.Context, p *model.Purchase) error
	DeletePurchase(ctx context.Context, owner string, id uuid.UUID) error

	// InTx runs fn against a transactional view of the repository. Changes
	// are committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	HealthCheck(ctx context.Context) error
	Close() error
}
