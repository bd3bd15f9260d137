package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Schema creates the inventory tables.
const Schema = `
CREATE SCHEMA IF NOT EXISTS inventory;

CREATE TABLE IF NOT EXISTS inventory.products (
	id          UUID PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	code        TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	sale_price  NUMERIC(14,2) NOT NULL DEFAULT 0,
	cost_price  NUMERIC(14,2) NOT NULL DEFAULT 0,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	min_stock   INTEGER NOT NULL DEFAULT 0,
	supplier    TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS products_owner_idx ON inventory.products (owner_id);

CREATE TABLE IF NOT EXISTS inventory.sales (
	id               UUID PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	items            JSONB NOT NULL,
	total            NUMERIC(14,2) NOT NULL,
	platform         INTEGER NOT NULL,
	payment_method   INTEGER NOT NULL,
	sold_at          TIMESTAMPTZ NOT NULL,
	customer_name    TEXT NOT NULL DEFAULT '',
	customer_contact TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	status           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sales_owner_idx ON inventory.sales (owner_id, sold_at DESC);

CREATE TABLE IF NOT EXISTS inventory.purchases (
	id             UUID PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	items          JSONB NOT NULL,
	total          NUMERIC(14,2) NOT NULL,
	supplier       TEXT NOT NULL,
	invoice_number TEXT NOT NULL DEFAULT '',
	purchased_at   TIMESTAMPTZ NOT NULL,
	notes          TEXT NOT NULL DEFAULT '',
	status         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS purchases_owner_idx ON inventory.purchases (owner_id, purchased_at DESC);
`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGPoolConfig tunes the pgx connection pool.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PGStore is the Postgres Repository.
type PGStore struct {
	pool   *pgxpool.Pool
	q      querier
	logger *zap.Logger
}

// NewPGStore connects to Postgres and applies Schema.
func NewPGStore(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PGStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply inventory schema: %w", err)
	}
	return &PGStore{pool: pool, q: pool, logger: logger}, nil
}

func (s *PGStore) ready() error {
	if s == nil || s.q == nil {
		return ErrUnavailable
	}
	return nil
}

// InTx runs fn inside a single Postgres transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{q: tx, logger: s.logger})
	})
}

const productColumns = `id, owner_id, code, name, description, category, sale_price, cost_price,
	stock, min_stock, supplier, notes, active, created_at, updated_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Code, &p.Name, &p.Description, &p.Category,
		&p.SalePrice, &p.CostPrice, &p.Stock, &p.MinStock, &p.Supplier, &p.Notes,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO inventory.products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, p.ID, p.OwnerID, p.Code, p.Name, p.Description, p.Category, p.SalePrice, p.CostPrice,
		p.Stock, p.MinStock, p.Supplier, p.Notes, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		s.logger.Error("inventory.pg.insert_product_failed", zap.Error(err))
	}
	return err
}

func (s *PGStore) GetProduct(ctx context.Context, owner string, id uuid.UUID) (*model.Product, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanProduct(s.q.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM inventory.products
		WHERE owner_id = $1 AND id = $2
	`, owner, id))
}

func (s *PGStore) ListProducts(ctx context.Context, owner string) ([]model.Product, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+productColumns+`
		FROM inventory.products
		WHERE owner_id = $1
		ORDER BY name
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE inventory.products SET
			code = $3, name = $4, description = $5, category = $6,
			sale_price = $7, cost_price = $8, stock = $9, min_stock = $10,
			supplier = $11, notes = $12, active = $13, updated_at = $14
		WHERE owner_id = $1 AND id = $2
	`, p.OwnerID, p.ID, p.Code, p.Name, p.Description, p.Category, p.SalePrice, p.CostPrice,
		p.Stock, p.MinStock, p.Supplier, p.Notes, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteProduct(ctx context.Context, owner string, id uuid.UUID) error {
	return s.deleteRow(ctx, "inventory.products", owner, id)
}

func (s *PGStore) AdjustStock(ctx context.Context, owner string, id uuid.UUID, delta int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var stock int
	err := s.q.QueryRow(ctx, `
		UPDATE inventory.products
		SET stock = stock + $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2 AND stock + $3 >= 0
		RETURNING stock
	`, owner, id, delta).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		p, gerr := s.GetProduct(ctx, owner, id)
		if gerr != nil {
			return 0, gerr
		}
		return p.Stock, ErrInsufficientStock
	}
	return stock, err
}

func (s *PGStore) deleteRow(ctx context.Context, table, owner string, id uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM `+table+` WHERE owner_id = $1 AND id = $2`, owner, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const saleColumns = `id, owner_id, items, total, platform, payment_method, sold_at,
	customer_name, customer_contact, notes, status`

func scanSale(row pgx.Row) (*model.Sale, error) {
	var sale model.Sale
	var items []byte
	err := row.Scan(&sale.ID, &sale.OwnerID, &items, &sale.Total, &sale.Platform, &sale.PaymentMethod,
		&sale.Date, &sale.CustomerName, &sale.CustomerPhone, &sale.Notes, &sale.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return nil, fmt.Errorf("decode sale items: %w", err)
	}
	return &sale, nil
}

func (s *PGStore) CreateSale(ctx context.Context, sale *model.Sale) error {
	if err := s.ready(); err != nil {
		return err
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO inventory.sales (`+saleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sale.ID, sale.OwnerID, items, sale.Total, int(sale.Platform), int(sale.PaymentMethod),
		sale.Date, sale.CustomerName, sale.CustomerPhone, sale.Notes, int(sale.Status))
	if err != nil {
		s.logger.Error("inventory.pg.insert_sale_failed", zap.Error(err))
	}
	return err
}

func (s *PGStore) GetSale(ctx context.Context, owner string, id uuid.UUID) (*model.Sale, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanSale(s.q.QueryRow(ctx, `
		SELECT `+saleColumns+` FROM inventory.sales WHERE owner_id = $1 AND id = $2
	`, owner, id))
}

func (s *PGStore) ListSales(ctx context.Context, owner string) ([]model.Sale, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+saleColumns+` FROM inventory.sales WHERE owner_id = $1 ORDER BY sold_at DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sale)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateSale(ctx context.Context, sale *model.Sale) error {
	if err := s.ready(); err != nil {
		return err
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE inventory.sales SET
			items = $3, total = $4, platform = $5, payment_method = $6, sold_at = $7,
			customer_name = $8, customer_contact = $9, notes = $10, status = $11
		WHERE owner_id = $1 AND id = $2
	`, sale.OwnerID, sale.ID, items, sale.Total, int(sale.Platform), int(sale.PaymentMethod),
		sale.Date, sale.CustomerName, sale.CustomerPhone, sale.Notes, int(sale.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteSale(ctx context.Context, owner string, id uuid.UUID) error {
	return s.deleteRow(ctx, "inventory.sales", owner, id)
}

const purchaseColumns = `id, owner_id, items, total, supplier, invoice_number, purchased_at, notes, status`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	var items []byte
	err := row.Scan(&p.ID, &p.OwnerID, &items, &p.Total, &p.Supplier, &p.InvoiceNumber,
		&p.Date, &p.Notes, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &p.Items); err != nil {
		return nil, fmt.Errorf("decode purchase items: %w", err)
	}
	return &p, nil
}

func (s *PGStore) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	if err := s.ready(); err != nil {
		return err
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO inventory.purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.OwnerID, items, p.Total, p.Supplier, p.InvoiceNumber, p.Date, p.Notes, int(p.Status))
	if err != nil {
		s.logger.Error("inventory.pg.insert_purchase_failed", zap.Error(err))
	}
	return err
}

func (s *PGStore) GetPurchase(ctx context.Context, owner string, id uuid.UUID) (*model.Purchase, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanPurchase(s.q.QueryRow(ctx, `
		SELECT `+purchaseColumns+` FROM inventory.purchases WHERE owner_id = $1 AND id = $2
	`, owner, id))
}

func (s *PGStore) ListPurchases(ctx context.Context, owner string) ([]model.Purchase, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+purchaseColumns+` FROM inventory.purchases WHERE owner_id = $1 ORDER BY purchased_at DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdatePurchase(ctx context.Context, p *model.Purchase) error {
	if err := s.ready(); err != nil {
		return err
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE inventory.purchases SET
			items = $3, total = $4, supplier = $5, invoice_number = $6,
			purchased_at = $7, notes = $8, status = $9
		WHERE owner_id = $1 AND id = $2
	`, p.OwnerID, p.ID, items, p.Total, p.Supplier, p.InvoiceNumber, p.Date, p.Notes, int(p.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeletePurchase(ctx context.Context, owner string, id uuid.UUID) error {
	return s.deleteRow(ctx, "inventory.purchases", owner, id)
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres unavailable")
	}
	return s.pool.Ping(ctx)
}

func (s *PGStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
