package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/domain/validation"
	"github.com/xenking/orderdesk/internal/notify"
)

// --- Mock implementations ---

type mockStores struct{ stores map[string]*store.Store }

func (m *mockStores) GetBySlug(_ context.Context, slug string) (*store.Store, error) {
	if st, ok := m.stores[slug]; ok {
		return st, nil
	}
	return nil, store.ErrNotFound
}

type mockCustomers struct {
	resolved *customer.Customer
	err      error
	calls    int
}

func (m *mockCustomers) Resolve(_ context.Context, p customer.Profile) (*customer.Customer, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.resolved != nil {
		return m.resolved, nil
	}
	return &customer.Customer{ID: "cust-1", Phone: p.Phone, Name: p.Name}, nil
}

type mockCatalog struct{ items map[string]*catalog.MenuItem }

func (m *mockCatalog) GetAvailableItem(_ context.Context, storeID, itemID string) (*catalog.MenuItem, error) {
	it, ok := m.items[itemID]
	if !ok || it.StoreID != storeID {
		return nil, &catalog.ItemError{ItemID: itemID, Err: catalog.ErrItemNotFound}
	}
	if !it.IsAvailable {
		return nil, &catalog.ItemError{ItemID: itemID, Name: it.Name, Err: catalog.ErrItemUnavailable}
	}
	return it, nil
}

type mockCoupons struct {
	applied   *coupon.Applied
	evalErr   error
	redeemErr error
	subtotal  decimal.Decimal
	redeemed  []string
}

func (m *mockCoupons) Evaluate(_ context.Context, _, code string, subtotal decimal.Decimal) (*coupon.Applied, error) {
	m.subtotal = subtotal
	if code == "" {
		return nil, nil
	}
	return m.applied, m.evalErr
}

func (m *mockCoupons) Redeem(_ context.Context, id string) error {
	m.redeemed = append(m.redeemed, id)
	return m.redeemErr
}

type mockOrders struct {
	created    *Order
	createErr  error
	byID       map[string]*Order
	details    *Details
	transErr   error
	prev, next State
	transCalls int
}

func (m *mockOrders) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	o.ID = "order-1"
	o.CreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.created = o
	return nil
}

func (m *mockOrders) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrders) GetDetails(_ context.Context, id string) (*Details, error) {
	if m.details == nil || m.details.ID != id {
		return nil, ErrNotFound
	}
	return m.details, nil
}

func (m *mockOrders) Transition(_ context.Context, _ string, prev, next State) error {
	m.transCalls++
	m.prev, m.next = prev, next
	return m.transErr
}

// mockTx records whether fn ran and whether its error would roll back.
type mockTx struct {
	calls      int
	rolledBack bool
}

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	err := fn(ctx)
	m.rolledBack = err != nil
	return err
}

type fixedNumbers struct{ n string }

func (f fixedNumbers) Next() string { return f.n }

type capturePublisher struct{ events []notify.Event }

func (p *capturePublisher) Publish(_ context.Context, ev notify.Event) {
	p.events = append(p.events, ev)
}

// --- Helpers ---

type fixture struct {
	customers *mockCustomers
	coupons   *mockCoupons
	orders    *mockOrders
	tx        *mockTx
	events    *capturePublisher
	svc       *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		customers: &mockCustomers{},
		coupons:   &mockCoupons{},
		orders:    &mockOrders{byID: map[string]*Order{}},
		tx:        &mockTx{},
		events:    &capturePublisher{},
	}
	svc, err := NewService(Deps{
		Stores: &mockStores{stores: map[string]*store.Store{
			"siddhi": {ID: "store-1", Slug: "siddhi", Name: "Siddhi"},
		}},
		Customers: f.customers,
		Catalog: &mockCatalog{items: map[string]*catalog.MenuItem{
			"thali":   {ID: "thali", StoreID: "store-1", Name: "Thali", Price: decimal.NewFromInt(100), IsAvailable: true},
			"lassi":   {ID: "lassi", StoreID: "store-1", Name: "Lassi", Price: decimal.RequireFromString("45.50"), IsAvailable: true},
			"biryani": {ID: "biryani", StoreID: "store-1", Name: "Biryani", Price: decimal.NewFromInt(250), IsAvailable: false},
			"feast":   {ID: "feast", StoreID: "store-1", Name: "Feast", Price: decimal.RequireFromString("99999999.99"), IsAvailable: true},
		}},
		Coupons:        f.coupons,
		Orders:         f.orders,
		Tx:             f.tx,
		Numbers:        fixedNumbers{n: "ORD42"},
		Events:         f.events,
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}, cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func baseRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		StoreSlug:     "siddhi",
		Customer:      customer.Profile{Name: "Asha", Phone: "9876543210"},
		Items:         []LineRequest{{MenuItemID: "thali", Quantity: 2}},
		PaymentMethod: PaymentUPI,
	}
}

// --- Tests ---

func TestService_PlaceOrder_NoCoupon(t *testing.T) {
	f := newFixture(t, Config{})

	o, err := f.svc.PlaceOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, "ORD42", o.OrderNumber)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, DefaultEstimatedTime, o.EstimatedTime)
	assert.Nil(t, o.CouponID)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, o.Tax.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.Discount.IsZero())
	assert.True(t, o.Total.Equal(decimal.NewFromInt(210)))

	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Price.Equal(decimal.NewFromInt(100)), "line captures the menu price")
	assert.Equal(t, 1, f.tx.calls)
	assert.Empty(t, f.coupons.redeemed)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, notify.OrderCreated, ev.Name)
	assert.Equal(t, "store-siddhi", ev.Channel)
	data, ok := ev.Data.(notify.OrderCreatedData)
	require.True(t, ok)
	assert.Equal(t, "Asha", data.CustomerName)
	assert.True(t, data.Total.Equal(decimal.NewFromInt(210)))
}

func TestService_PlaceOrder_WithCoupon(t *testing.T) {
	f := newFixture(t, Config{})
	f.coupons.applied = &coupon.Applied{
		Coupon:   &coupon.Coupon{ID: "cpn-1", Code: "SAVE10"},
		Discount: decimal.NewFromInt(15),
	}

	req := baseRequest()
	req.CouponCode = "SAVE10"
	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, f.coupons.subtotal.Equal(decimal.NewFromInt(200)), "coupon sees the final subtotal")
	assert.True(t, o.Discount.Equal(decimal.NewFromInt(15)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(195)))
	require.NotNil(t, o.CouponID)
	assert.Equal(t, "cpn-1", *o.CouponID)
	assert.Equal(t, []string{"cpn-1"}, f.coupons.redeemed)
}

func TestService_PlaceOrder_MixedLines(t *testing.T) {
	f := newFixture(t, Config{})
	req := baseRequest()
	req.Items = []LineRequest{
		{MenuItemID: "thali", Quantity: 1, Notes: " extra pickle "},
		{MenuItemID: "lassi", Quantity: 3},
	}

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	// 100 + 3*45.50 = 236.50, tax 11.825 -> 11.83
	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("236.50")))
	assert.True(t, o.Tax.Equal(decimal.RequireFromString("11.83")))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("248.33")))
	assert.Equal(t, "extra pickle", o.Items[0].Notes)
}

func TestService_PlaceOrder_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *PlaceOrderRequest)
		setup     func(f *fixture)
		wantErr   error
		wantField string
		wantType  any
	}{
		{
			name:      "missing store",
			mutate:    func(r *PlaceOrderRequest) { r.StoreSlug = "" },
			wantField: "storeSlug",
		},
		{
			name:      "missing customer name",
			mutate:    func(r *PlaceOrderRequest) { r.Customer.Name = " " },
			wantField: "customer.name",
		},
		{
			name:      "missing customer phone",
			mutate:    func(r *PlaceOrderRequest) { r.Customer.Phone = "" },
			wantField: "customer.phone",
		},
		{
			name:      "short customer phone",
			mutate:    func(r *PlaceOrderRequest) { r.Customer.Phone = "1" },
			wantField: "customer.phone",
		},
		{
			name:      "long customer phone",
			mutate:    func(r *PlaceOrderRequest) { r.Customer.Phone = "+91 98765 43210 00000" },
			wantField: "customer.phone",
		},
		{
			name:    "no items",
			mutate:  func(r *PlaceOrderRequest) { r.Items = nil },
			wantErr: ErrEmptyItems,
		},
		{
			name:     "zero quantity",
			mutate:   func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 },
			wantType: &InvalidQuantityError{},
		},
		{
			name:     "quantity above limit",
			mutate:   func(r *PlaceOrderRequest) { r.Items[0].Quantity = MaxQuantity + 1 },
			wantType: &InvalidQuantityError{},
		},
		{
			name:     "quantity beyond integer column",
			mutate:   func(r *PlaceOrderRequest) { r.Items[0].Quantity = 3_000_000_000 },
			wantType: &InvalidQuantityError{},
		},
		{
			name: "subtotal above limit",
			mutate: func(r *PlaceOrderRequest) {
				r.Items = []LineRequest{{MenuItemID: "feast", Quantity: 2}}
			},
			wantField: "items",
		},
		{
			name: "total with tax above limit",
			mutate: func(r *PlaceOrderRequest) {
				r.Items = []LineRequest{{MenuItemID: "feast", Quantity: 1}}
			},
			wantField: "items",
		},
		{
			name:      "bad payment method",
			mutate:    func(r *PlaceOrderRequest) { r.PaymentMethod = "BARTER" },
			wantField: "paymentMethod",
		},
		{
			name:    "unknown store",
			mutate:  func(r *PlaceOrderRequest) { r.StoreSlug = "nowhere" },
			wantErr: store.ErrNotFound,
		},
		{
			name:    "unknown item",
			mutate:  func(r *PlaceOrderRequest) { r.Items[0].MenuItemID = "pizza" },
			wantErr: catalog.ErrItemNotFound,
		},
		{
			name:    "unavailable item",
			mutate:  func(r *PlaceOrderRequest) { r.Items[0].MenuItemID = "biryani" },
			wantErr: catalog.ErrItemUnavailable,
		},
		{
			name:   "coupon minimum not met",
			mutate: func(r *PlaceOrderRequest) { r.CouponCode = "BIG" },
			setup: func(f *fixture) {
				f.coupons.evalErr = &coupon.MinOrderError{Code: "BIG", Required: decimal.NewFromInt(500)}
			},
			wantErr: coupon.ErrMinOrderNotMet,
		},
		{
			name:    "customer lookup fails",
			setup:   func(f *fixture) { f.customers.err = errors.New("db down") },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			if tt.setup != nil {
				tt.setup(f)
			}
			req := baseRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			o, err := f.svc.PlaceOrder(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, o)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantField != "":
				var vErr *validation.Error
				require.True(t, errors.As(err, &vErr), "got %v", err)
				assert.Equal(t, tt.wantField, vErr.Field)
			case tt.wantType != nil:
				var qErr *InvalidQuantityError
				require.True(t, errors.As(err, &qErr))
			}

			assert.Nil(t, f.orders.created, "nothing is persisted")
			assert.Zero(t, f.tx.calls)
			assert.Empty(t, f.events.events)
		})
	}
}

func TestService_PlaceOrder_ValidationBeforeLookups(t *testing.T) {
	f := newFixture(t, Config{})
	req := baseRequest()
	req.Items = nil

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyItems)
	assert.Zero(t, f.customers.calls)
}

func TestService_PlaceOrder_RedeemRaceRollsBack(t *testing.T) {
	f := newFixture(t, Config{})
	f.coupons.applied = &coupon.Applied{Coupon: &coupon.Coupon{ID: "cpn-1"}, Discount: decimal.NewFromInt(5)}
	f.coupons.redeemErr = coupon.ErrUsageLimitReached

	req := baseRequest()
	req.CouponCode = "ONCE"
	_, err := f.svc.PlaceOrder(context.Background(), req)

	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
	assert.True(t, f.tx.rolledBack)
	assert.Nil(t, f.orders.created)
	assert.Empty(t, f.events.events)
}

func TestService_PlaceOrder_NumberConflict(t *testing.T) {
	f := newFixture(t, Config{})
	f.orders.createErr = ErrOrderNumberConflict

	_, err := f.svc.PlaceOrder(context.Background(), baseRequest())
	require.ErrorIs(t, err, ErrOrderNumberConflict)
	assert.True(t, f.tx.rolledBack)
	assert.Empty(t, f.events.events)
}

func TestService_PlaceOrder_Config(t *testing.T) {
	f := newFixture(t, Config{
		Pricing:              Pricing{TaxRate: decimal.RequireFromString("0.10"), ClampDiscount: true},
		DefaultEstimatedTime: 45,
	})
	f.coupons.applied = &coupon.Applied{Coupon: &coupon.Coupon{ID: "cpn-1"}, Discount: decimal.NewFromInt(500)}

	req := baseRequest()
	req.CouponCode = "HUGE"
	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 45, o.EstimatedTime)
	assert.True(t, o.Tax.Equal(decimal.NewFromInt(20)))
	assert.True(t, o.Total.IsZero())
}

func TestService_Get(t *testing.T) {
	f := newFixture(t, Config{})
	f.orders.details = &Details{Order: Order{ID: "order-9"}}

	got, err := f.svc.Get(context.Background(), "order-9")
	require.NoError(t, err)
	assert.Equal(t, "order-9", got.ID)

	_, err = f.svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
