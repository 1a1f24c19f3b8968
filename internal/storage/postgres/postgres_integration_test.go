//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/orderdesk/internal/domain/auth"
	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/domain/report"
	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/notify"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orderdesk",
				"POSTGRES_PASSWORD": "orderdesk",
				"POSTGRES_DB":       "orderdesk",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://orderdesk:orderdesk@%s:%s/orderdesk?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Applying twice must be harmless.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate again: %v", err)
	}

	return m.Run()
}

type seeded struct {
	storeID string
	slug    string
	itemID  string
}

// seedStore creates an isolated store with one category and one 100.00 item.
func seedStore(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()
	slug := fmt.Sprintf("store-%d", time.Now().UnixNano())

	var s seeded
	s.slug = slug
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO stores (slug, name) VALUES ($1, $1) RETURNING id`, slug).Scan(&s.storeID))

	var categoryID string
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO categories (store_id, name, slug) VALUES ($1, 'Pizza', 'pizza') RETURNING id`,
		s.storeID).Scan(&categoryID))
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO menu_items (store_id, category_id, name, price) VALUES ($1, $2, 'Margherita', 100) RETURNING id`,
		s.storeID, categoryID).Scan(&s.itemID))
	return s
}

func createCoupon(t *testing.T, storeID, code string, limit int) *coupon.Coupon {
	t.Helper()
	c := &coupon.Coupon{
		StoreID:    storeID,
		Code:       code,
		Name:       code,
		Type:       coupon.FixedAmount,
		Value:      decimal.NewFromInt(10),
		UsageLimit: &limit,
		IsActive:   true,
	}
	require.NoError(t, NewCouponRepository(testPool).Create(context.Background(), c))
	return c
}

func newOrderService(t *testing.T) *order.Service {
	t.Helper()
	coupons := NewCouponRepository(testPool)
	numbers, err := order.NewNumberGenerator(-1)
	require.NoError(t, err)

	svc, err := order.NewService(order.Deps{
		Stores:         NewStoreRepository(testPool),
		Customers:      customer.NewRegistry(NewCustomerRepository(testPool)),
		Catalog:        catalog.NewService(NewCatalogRepository(testPool), notify.Nop{}),
		Coupons:        coupon.NewEvaluator(coupons),
		Orders:         NewOrderRepository(testPool),
		Tx:             NewTxManager(testPool),
		Numbers:        numbers,
		Events:         notify.Nop{},
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}, order.Config{})
	require.NoError(t, err)
	return svc
}

func TestCustomerRegistry_ConcurrentFirstOrders(t *testing.T) {
	reg := customer.NewRegistry(NewCustomerRepository(testPool))
	phone := fmt.Sprintf("+91%010d", time.Now().UnixNano()%1e10)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.Resolve(context.Background(), customer.Profile{Phone: phone, Name: fmt.Sprintf("Racer %d", i)})
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	var count int
	require.NoError(t, testPool.QueryRow(context.Background(),
		`SELECT count(*) FROM customers WHERE phone = $1`, phone).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCouponRepository_RedeemNeverExceedsLimit(t *testing.T) {
	s := seedStore(t)
	c := createCoupon(t, s.storeID, "LIMIT3", 3)
	repo := NewCouponRepository(testPool)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = repo.Redeem(context.Background(), c.ID)
		}()
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, coupon.ErrUsageLimitReached):
			limited++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, limited)

	got, err := repo.Get(context.Background(), s.storeID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsedCount)
}

func TestCouponRepository_CodeUniquePerStore(t *testing.T) {
	s := seedStore(t)
	createCoupon(t, s.storeID, "DUP", 1)

	dup := &coupon.Coupon{StoreID: s.storeID, Code: "DUP", Name: "again", Type: coupon.Percentage, Value: decimal.NewFromInt(5)}
	err := NewCouponRepository(testPool).Create(context.Background(), dup)
	require.ErrorIs(t, err, coupon.ErrCodeTaken)

	other := seedStore(t)
	createCoupon(t, other.storeID, "DUP", 1)
}

func TestOrderService_PlaceOrderPersistsAtomically(t *testing.T) {
	s := seedStore(t)
	c := createCoupon(t, s.storeID, "ONCE", 1)
	svc := newOrderService(t)
	ctx := context.Background()

	req := order.PlaceOrderRequest{
		StoreSlug:     s.slug,
		Customer:      customer.Profile{Phone: fmt.Sprintf("+44%010d", time.Now().UnixNano()%1e10), Name: "Asha"},
		Items:         []order.LineRequest{{MenuItemID: s.itemID, Quantity: 2}},
		PaymentMethod: order.PaymentUPI,
		CouponCode:    "ONCE",
	}

	o, err := svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, o.Tax.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(200)))
	require.Len(t, o.Items, 1)
	assert.NotEmpty(t, o.Items[0].ID)

	d, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", d.Customer.Name)
	assert.Equal(t, s.slug, d.Store.Slug)
	require.NotNil(t, d.Coupon)
	assert.Equal(t, c.ID, d.Coupon.ID)
	require.Len(t, d.Lines, 1)
	assert.Equal(t, "Margherita", d.Lines[0].MenuItem.Name)

	// The coupon is exhausted now; the second order must leave no trace.
	_, err = svc.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)

	var orders int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE store_id = $1`, s.storeID).Scan(&orders))
	assert.Equal(t, 1, orders)
}

func TestOrderRepository_LinesKeepPlacedPrice(t *testing.T) {
	s := seedStore(t)
	svc := newOrderService(t)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		StoreSlug:     s.slug,
		Customer:      customer.Profile{Phone: fmt.Sprintf("+61%010d", time.Now().UnixNano()%1e10), Name: "Dev"},
		Items:         []order.LineRequest{{MenuItemID: s.itemID, Quantity: 3}},
		PaymentMethod: order.PaymentCashOnDelivery,
	})
	require.NoError(t, err)

	_, err = testPool.Exec(ctx, `UPDATE menu_items SET price = 250 WHERE id = $1`, s.itemID)
	require.NoError(t, err)

	d, err := NewOrderRepository(testPool).GetDetails(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, d.Lines, 1)
	assert.True(t, d.Lines[0].Price.Equal(decimal.NewFromInt(100)), "line price %s", d.Lines[0].Price)
	assert.True(t, d.Subtotal.Equal(decimal.NewFromInt(300)))
	assert.True(t, d.Total.Equal(o.Total), "total %s, placed %s", d.Total, o.Total)
	assert.True(t, d.Total.Equal(decimal.NewFromInt(315)))
}

func TestOrderRepository_TransitionIsGuarded(t *testing.T) {
	s := seedStore(t)
	svc := newOrderService(t)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		StoreSlug:     s.slug,
		Customer:      customer.Profile{Phone: fmt.Sprintf("+1%010d", time.Now().UnixNano()%1e10), Name: "Bo"},
		Items:         []order.LineRequest{{MenuItemID: s.itemID, Quantity: 1}},
		PaymentMethod: order.PaymentCard,
	})
	require.NoError(t, err)

	repo := NewOrderRepository(testPool)
	prev := order.State{Status: order.StatusPending, PaymentStatus: order.PaymentPending, EstimatedTime: 30}
	next := prev
	next.Status = order.StatusConfirmed

	require.NoError(t, repo.Transition(ctx, o.ID, prev, next))
	require.ErrorIs(t, repo.Transition(ctx, o.ID, prev, next), order.ErrConcurrentUpdate)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)

	_, err = repo.Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestReportRepository(t *testing.T) {
	s := seedStore(t)
	svc := newOrderService(t)
	ctx := context.Background()
	phone := fmt.Sprintf("+7%010d", time.Now().UnixNano()%1e10)

	for range 2 {
		_, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
			StoreSlug:     s.slug,
			Customer:      customer.Profile{Phone: phone, Name: "Cy"},
			Items:         []order.LineRequest{{MenuItemID: s.itemID, Quantity: 1}},
			PaymentMethod: order.PaymentCashOnDelivery,
		})
		require.NoError(t, err)
	}

	repo := NewReportRepository(testPool)
	from, to := report.PeriodToday.Range(time.Now())
	m, err := repo.Metrics(ctx, s.storeID, from.Add(-time.Hour), to.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalOrders)
	assert.Equal(t, 2, m.PendingOrders)
	assert.True(t, m.TotalRevenue.Equal(decimal.NewFromInt(210)))
	assert.Equal(t, 1, m.TotalMenuItems)

	rows, err := repo.RecentOrders(ctx, s.storeID, order.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1x Margherita", rows[0].ItemSummary)
	assert.Equal(t, phone, rows[0].CustomerPhone)

	none, err := repo.RecentOrders(ctx, s.storeID, order.StatusDelivered, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	customers, err := repo.Customers(ctx, s.storeID, 500)
	require.NoError(t, err)
	var found bool
	for _, c := range customers {
		if c.Phone == phone {
			found = true
			assert.Equal(t, 2, c.TotalOrders)
			assert.True(t, c.TotalSpent.Equal(decimal.NewFromInt(210)))
			assert.Equal(t, "Margherita", c.LastOrderItems)
		}
	}
	assert.True(t, found)
}

func TestSeedUpserts_AreIdempotent(t *testing.T) {
	ctx := context.Background()
	slug := fmt.Sprintf("seed-%d", time.Now().UnixNano())

	stores := NewStoreRepository(testPool)
	st := &store.Store{Slug: slug, Name: "Seed", IsActive: true}
	require.NoError(t, stores.Upsert(ctx, st))
	again := &store.Store{Slug: slug, Name: "Seed Renamed", IsActive: true}
	require.NoError(t, stores.Upsert(ctx, again))
	assert.Equal(t, st.ID, again.ID)

	got, err := stores.GetBySlug(ctx, slug)
	require.NoError(t, err)
	assert.Equal(t, "Seed Renamed", got.Name)

	cat := NewCatalogRepository(testPool)
	c1 := &catalog.Category{StoreID: st.ID, Name: "Starters", Slug: "starters", IsActive: true}
	require.NoError(t, cat.UpsertCategory(ctx, c1))
	c2 := &catalog.Category{StoreID: st.ID, Name: "Snacks", Slug: "starters", SortOrder: 4, IsActive: true}
	require.NoError(t, cat.UpsertCategory(ctx, c2))
	assert.Equal(t, c1.ID, c2.ID)

	coupons := NewCouponRepository(testPool)
	limit := 5
	seed := coupon.Coupon{
		StoreID: st.ID, Code: "WELCOME10", Name: "Welcome", Type: coupon.Percentage,
		Value: decimal.NewFromInt(10), UsageLimit: &limit, IsActive: true,
	}
	require.NoError(t, coupons.UpsertMany(ctx, []coupon.Coupon{seed}))
	first, err := coupons.FindActiveByCode(ctx, st.ID, "WELCOME10")
	require.NoError(t, err)
	require.NoError(t, coupons.Redeem(ctx, first.ID))

	seed.Value = decimal.NewFromInt(15)
	require.NoError(t, coupons.UpsertMany(ctx, []coupon.Coupon{seed}))
	updated, err := coupons.FindActiveByCode(ctx, st.ID, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.True(t, updated.Value.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, 1, updated.UsedCount, "usage survives a re-import")

	keys := NewAPIKeyRepository(testPool)
	pepper := []byte("pepper")
	key := auth.Key{ID: slug, Hash: auth.Hash(pepper, "secret-"+slug), Name: "seed", Scopes: []string{auth.ScopeAdmin}}
	require.NoError(t, keys.Upsert(ctx, key))
	found, err := keys.FindByHash(ctx, key.Hash)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.ScopeAdmin}, found.Scopes)

	_, err = keys.FindByHash(ctx, auth.Hash(pepper, "unknown"))
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
}
