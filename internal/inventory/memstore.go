package inventory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

// MemStore is an in-memory Repository. Transactions are serialized and
// applied atomically.
type MemStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemStore() *MemStore {
	return &MemStore{data: newMemData()}
}

type memData struct {
	products  map[uuid.UUID]model.Product
	sales     map[uuid.UUID]model.Sale
	purchases map[uuid.UUID]model.Purchase
}

func newMemData() *memData {
	return &memData{
		products:  make(map[uuid.UUID]model.Product),
		sales:     make(map[uuid.UUID]model.Sale),
		purchases: make(map[uuid.UUID]model.Purchase),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.sales {
		v.Items = slices.Clone(v.Items)
		c.sales[k] = v
	}
	for k, v := range d.purchases {
		v.Items = slices.Clone(v.Items)
		c.purchases[k] = v
	}
	return c
}

func (d *memData) createProduct(p *model.Product) error {
	if _, ok := d.products[p.ID]; ok {
		return ErrInvalid
	}
	d.products[p.ID] = *p
	return nil
}

func (d *memData) getProduct(owner string, id uuid.UUID) (*model.Product, error) {
	p, ok := d.products[id]
	if !ok || p.OwnerID != owner {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (d *memData) listProducts(owner string) []model.Product {
	out := []model.Product{}
	for _, p := range d.products {
		if p.OwnerID == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *memData) updateProduct(p *model.Product) error {
	cur, ok := d.products[p.ID]
	if !ok || cur.OwnerID != p.OwnerID {
		return ErrNotFound
	}
	d.products[p.ID] = *p
	return nil
}

func (d *memData) deleteProduct(owner string, id uuid.UUID) error {
	if _, err := d.getProduct(owner, id); err != nil {
		return err
	}
	delete(d.products, id)
	return nil
}

func (d *memData) adjustStock(owner string, id uuid.UUID, delta int) (int, error) {
	p, err := d.getProduct(owner, id)
	if err != nil {
		return 0, err
	}
	if p.Stock+delta < 0 {
		return p.Stock, ErrInsufficientStock
	}
	p.Stock += delta
	d.products[id] = *p
	return p.Stock, nil
}

func (d *memData) getSale(owner string, id uuid.UUID) (*model.Sale, error) {
	s, ok := d.sales[id]
	if !ok || s.OwnerID != owner {
		return nil, ErrNotFound
	}
	s.Items = slices.Clone(s.Items)
	return &s, nil
}

func (d *memData) listSales(owner string) []model.Sale {
	out := []model.Sale{}
	for _, s := range d.sales {
		if s.OwnerID == owner {
			s.Items = slices.Clone(s.Items)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (d *memData) getPurchase(owner string, id uuid.UUID) (*model.Purchase, error) {
	p, ok := d.purchases[id]
	if !ok || p.OwnerID != owner {
		return nil, ErrNotFound
	}
	p.Items = slices.Clone(p.Items)
	return &p, nil
}

func (d *memData) listPurchases(owner string) []model.Purchase {
	out := []model.Purchase{}
	for _, p := range d.purchases {
		if p.OwnerID == owner {
			p.Items = slices.Clone(p.Items)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// memTx is the Repository view handed to InTx callbacks.
type memTx struct{ d *memData }

func (t memTx) CreateProduct(_ context.Context, p *model.Product) error { return t.d.createProduct(p) }
func (t memTx) GetProduct(_ context.Context, owner string, id uuid.UUID) (*model.Product, error) {
	return t.d.getProduct(owner, id)
}
func (t memTx) ListProducts(_ context.Context, owner string) ([]model.Product, error) {
	return t.d.listProducts(owner), nil
}
func (t memTx) UpdateProduct(_ context.Context, p *model.Product) error { return t.d.updateProduct(p) }
func (t memTx) DeleteProduct(_ context.Context, owner string, id uuid.UUID) error {
	return t.d.deleteProduct(owner, id)
}
func (t memTx) AdjustStock(_ context.Context, owner string, id uuid.UUID, delta int) (int, error) {
	return t.d.adjustStock(owner, id, delta)
}

func (t memTx) CreateSale(_ context.Context, s *model.Sale) error {
	v := *s
	v.Items = slices.Clone(s.Items)
	t.d.sales[s.ID] = v
	return nil
}
func (t memTx) GetSale(_ context.Context, owner string, id uuid.UUID) (*model.Sale, error) {
	return t.d.getSale(owner, id)
}
func (t memTx) ListSales(_ context.Context, owner string) ([]model.Sale, error) {
	return t.d.listSales(owner), nil
}
func (t memTx) UpdateSale(_ context.Context, s *model.Sale) error {
	if _, err := t.d.getSale(s.OwnerID, s.ID); err != nil {
		return err
	}
	v := *s
	v.Items = slices.Clone(s.Items)
	t.d.sales[s.ID] = v
	return nil
}
func (t memTx) DeleteSale(_ context.Context, owner string, id uuid.UUID) error {
	if _, err := t.d.getSale(owner, id); err != nil {
		return err
	}
	delete(t.d.sales, id)
	return nil
}

func (t memTx) CreatePurchase(_ context.Context, p *model.Purchase) error {
	v := *p
	v.Items = slices.Clone(p.Items)
	t.d.purchases[p.ID] = v
	return nil
}
func (t memTx) GetPurchase(_ context.Context, owner string, id uuid.UUID) (*model.Purchase, error) {
	return t.d.getPurchase(owner, id)
}
func (t memTx) ListPurchases(_ context.Context, owner string) ([]model.Purchase, error) {
	return t.d.listPurchases(owner), nil
}
func (t memTx) UpdatePurchase(_ context.Context, p *model.Purchase) error {
	if _, err := t.d.getPurchase(p.OwnerID, p.ID); err != nil {
		return err
	}
	v := *p
	v.Items = slices.Clone(p.Items)
	t.d.purchases[p.ID] = v
	return nil
}
func (t memTx) DeletePurchase(_ context.Context, owner string, id uuid.UUID) error {
	if _, err := t.d.getPurchase(owner, id); err != nil {
		return err
	}
	delete(t.d.purchases, id)
	return nil
}

func (t memTx) InTx(_ context.Context, fn func(tx Repository) error) error { return fn(t) }
func (t memTx) HealthCheck(context.Context) error                          { return nil }
func (t memTx) Close() error                                               { return nil }

// InTx runs fn on a copy of the data and swaps it in when fn succeeds.
func (m *MemStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.data.clone()
	if err := fn(memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *MemStore) do(ctx context.Context, fn func(tx Repository) error) error {
	return m.InTx(ctx, fn)
}

func (m *MemStore) CreateProduct(ctx context.Context, p *model.Product) error {
	return m.do(ctx, func(tx Repository) error { return tx.CreateProduct(ctx, p) })
}

func (m *MemStore) GetProduct(ctx context.Context, owner string, id uuid.UUID) (out *model.Product, err error) {
	err = m.do(ctx, func(tx Repository) error { out, err = tx.GetProduct(ctx, owner, id); return err })
	return out, err
}

func (m *MemStore) ListProducts(ctx context.Context, owner string) (out []model.Product, err error) {
	err = m.do(ctx, func(tx Repository) error { out, err = tx.ListProducts(ctx, owner); return err })
	return out, err
}

func (m *MemStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	return m.do(ctx, func(tx Repository) error { return tx.UpdateProduct(ctx, p) })
}

func (m *MemStore) DeleteProduct(ctx context.Context, owner string, id uuid.UUID) error {
	return m.do(ctx, func(tx Repository) error { return tx.DeleteProduct(ctx, owner, id) })
}

func (m *MemStore) AdjustStock(ctx context.Context, owner string, id uuid.UUID, delta int) (n int, err error) {
	err = m.do(ctx, func(tx Repository) error { n, err = tx.AdjustStock(ctx, owner, id, delta); return err })
	return n, err
}

func (m *MemStore) CreateSale(ctx context.Context, s *model.Sale) error {
	return m.do(ctx, func(tx Repository) error { return tx.CreateSale(ctx, s) })
}

func (m *MemStore) GetSale(ctx context.Context, owner string, id uuid.UUID) (out *model.Sale, err error) {
	err = m.do(ctx, func(tx Repository) error { out, err = tx.GetSale(ctx, owner, id); return err })
	return out, err
}

func (m *MemStore) ListSales(ctx context.Context, owner string) (out []model.Sale, err error) {
	err = m.do(ctx, func(tx Repository) error { out, err = tx.ListSales(ctx, owner); return err })
	return out, err
}

func (m *MemStore) UpdateSale(ctx context.Context, s *model.Sale) error {
	return m.do(ctx, func(tx Repository) error { return tx.UpdateSale(ctx, s) })
}

func (m *MemStore) DeleteSale(ctx context.Context, owner string, id uuid.UUID) error {
	return m.do(ctx, func(tx Repository) error { return tx.DeleteSale(ctx, owner, id) })
}

func (m *MemStore) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	return m.do(ctx, func(tx Repository) error { return tx.CreatePurchase(ctx, p) })
}

func (m *MemStore) GetPurchase(ctx context.Context, owner string, id uuid.UUID) (out *model.Purchase, err error) {
	err = m.do(ctx, func(tx Repository) error { out, err = tx.GetPurchase(ctx, owner, id); return err })
	return out, err
}

func (m *MemStore) ListPurchases(ctx context.Context, owner string) (out []model.Purchase, err error) {
	err = m.do(ctx, func(tx Repository) error { out, err = tx.ListPurchases(ctx, owner); return err })
	return out, err
}

func (m *MemStore) UpdatePurchase(ctx context.Context, p *model.Purchase) error {
	return m.do(ctx, func(tx Repository) error { return tx.UpdatePurchase(ctx, p) })
}

func (m *MemStore) DeletePurchase(ctx context.Context, owner string, id uuid.UUID) error {
	return m.do(ctx, func(tx Repository) error { return tx.DeletePurchase(ctx, owner, id) })
}

func (m *MemStore) HealthCheck(context.Context) error { return nil }
func (m *MemStore) Close() error                      { return nil }
