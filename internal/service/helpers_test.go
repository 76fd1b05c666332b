package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/KumarG23/nep-back/internal/datamodels/product"
	"github.com/KumarG23/nep-back/internal/payment"
	"github.com/KumarG23/nep-back/internal/repository/gormrepo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gormrepo.OpenMemory("svc_" + strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name, price string) *product.Product {
	t.Helper()
	p := &product.Product{Name: name, Price: decimal.RequireFromString(price)}
	require.NoError(t, gormrepo.NewProductRepository(db).Create(context.Background(), p))
	return p
}

type published struct {
	queue string
	body  []byte
}

// recordingPublisher 记录投递的消息
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, queue string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{queue: queue, body: body})
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type orderFixture struct {
	db      *gorm.DB
	svc     *OrderService
	carts   *CartService
	gateway *payment.MemoryGateway
	events  *recordingPublisher
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := newTestDB(t)
	gw := payment.NewMemoryGateway()
	events := &recordingPublisher{}
	products := gormrepo.NewProductRepository(db)
	carts := gormrepo.NewCartRepository(db)
	svc := NewOrderService(db,
		gormrepo.NewOrderRepository(db), products, carts,
		gw, events,
		OrderOptions{Currency: "usd", TotalTolerance: decimal.RequireFromString("0.01"), EventQueue: "order_placed_queue"},
		NewMonitor(), nil)
	return &orderFixture{
		db:      db,
		svc:     svc,
		carts:   NewCartService(carts, products, nil),
		gateway: gw,
		events:  events,
	}
}

func (f *orderFixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("orders").Count(&n).Error)
	return n
}
