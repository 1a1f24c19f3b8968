// Package order prices, places and tracks customer orders.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/domain/validation"
	"github.com/xenking/orderdesk/internal/notify"
)

// DefaultEstimatedTime is the preparation estimate, in minutes, given to new orders.
const DefaultEstimatedTime = 30

// StoreFinder resolves a store by slug.
type StoreFinder interface {
	GetBySlug(ctx context.Context, slug string) (*store.Store, error)
}

// CustomerResolver finds or registers the ordering customer.
type CustomerResolver interface {
	Resolve(ctx context.Context, p customer.Profile) (*customer.Customer, error)
}

// ItemReader resolves orderable menu items.
type ItemReader interface {
	GetAvailableItem(ctx context.Context, storeID, itemID string) (*catalog.MenuItem, error)
}

// CouponEvaluator applies and redeems coupons.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, storeID, code string, subtotal decimal.Decimal) (*coupon.Applied, error)
	Redeem(ctx context.Context, couponID string) error
}

// NumberIssuer issues unique order numbers.
type NumberIssuer interface {
	Next() string
}

// LineRequest is one requested order line.
type LineRequest struct {
	MenuItemID string
	Quantity   int
	Notes      string
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	StoreSlug     string
	Customer      customer.Profile
	Items         []LineRequest
	PaymentMethod PaymentMethod
	CouponCode    string
	Notes         string
}

// Deps are the collaborators of Service.
type Deps struct {
	Stores    StoreFinder
	Customers CustomerResolver
	Catalog   ItemReader
	Coupons   CouponEvaluator
	Orders    Repository
	Tx        TxManager
	Numbers   NumberIssuer
	Events    notify.Publisher

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Config holds order policy.
type Config struct {
	Pricing              Pricing
	DefaultEstimatedTime int
}

// Service encapsulates order placement and lifecycle logic.
type Service struct {
	stores    StoreFinder
	customers CustomerResolver
	catalog   ItemReader
	coupons   CouponEvaluator
	orders    Repository
	tx        TxManager
	numbers   NumberIssuer
	events    notify.Publisher

	pricing       Pricing
	estimatedTime int
	now           func() time.Time

	tracer      trace.Tracer
	placed      metric.Int64Counter
	revenue     metric.Float64Counter
	transitions metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if cfg.Pricing.TaxRate.IsZero() {
		cfg.Pricing.TaxRate = DefaultTaxRate
	}
	if cfg.DefaultEstimatedTime <= 0 {
		cfg.DefaultEstimatedTime = DefaultEstimatedTime
	}

	meter := deps.MeterProvider.Meter("orderdesk/order")
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	revenue, err := meter.Float64Counter("orders.revenue",
		metric.WithDescription("Sum of placed order totals"))
	if err != nil {
		return nil, errors.Wrap(err, "create revenue counter")
	}
	transitions, err := meter.Int64Counter("orders.transitions",
		metric.WithDescription("Applied order status and payment transitions"))
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}

	return &Service{
		stores:        deps.Stores,
		customers:     deps.Customers,
		catalog:       deps.Catalog,
		coupons:       deps.Coupons,
		orders:        deps.Orders,
		tx:            deps.Tx,
		numbers:       deps.Numbers,
		events:        deps.Events,
		pricing:       cfg.Pricing,
		estimatedTime: cfg.DefaultEstimatedTime,
		now:           time.Now,
		tracer:        deps.TracerProvider.Tracer("orderdesk/order"),
		placed:        placed,
		revenue:       revenue,
		transitions:   transitions,
	}, nil
}

// PlaceOrder validates the request, resolves the store, customer, items and
// coupon, prices the order and persists it together with its items and the
// coupon redemption in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("store", req.StoreSlug)))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	st, err := s.stores.GetBySlug(ctx, req.StoreSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get store")
	}

	cust, err := s.customers.Resolve(ctx, req.Customer)
	if err != nil {
		return nil, errors.Wrap(err, "resolve customer")
	}

	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, line := range req.Items {
		mi, err := s.catalog.GetAvailableItem(ctx, st.ID, line.MenuItemID)
		if err != nil {
			return nil, errors.Wrap(err, "resolve item")
		}
		items[i] = Item{
			MenuItemID: mi.ID,
			Quantity:   line.Quantity,
			Price:      mi.Price,
			Notes:      strings.TrimSpace(line.Notes),
		}
		subtotal = subtotal.Add(LineTotal(mi.Price, line.Quantity))
	}
	if subtotal.GreaterThan(MaxAmount) {
		return nil, validation.New("items", "order subtotal exceeds "+MaxAmount.StringFixed(2))
	}

	applied, err := s.coupons.Evaluate(ctx, st.ID, req.CouponCode, subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "apply coupon")
	}
	discount := decimal.Zero
	var couponID *string
	if applied != nil {
		discount = applied.Discount
		couponID = &applied.Coupon.ID
	}

	totals := s.pricing.Price(subtotal, discount)
	if totals.Total.Abs().GreaterThan(MaxAmount) {
		return nil, validation.New("items", "order total exceeds "+MaxAmount.StringFixed(2))
	}
	o := &Order{
		OrderNumber:   s.numbers.Next(),
		CustomerID:    cust.ID,
		StoreID:       st.ID,
		CouponID:      couponID,
		Status:        StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Discount:      totals.Discount,
		Total:         totals.Total,
		Notes:         strings.TrimSpace(req.Notes),
		EstimatedTime: s.estimatedTime,
		CustomerName:  cust.Name,
		StoreSlug:     st.Slug,
		Items:         items,
	}

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if couponID != nil {
			if err := s.coupons.Redeem(ctx, *couponID); err != nil {
				return errors.Wrap(err, "redeem coupon")
			}
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("order.number", o.OrderNumber))
	attrs := metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod)))
	s.placed.Add(ctx, 1, attrs)
	s.revenue.Add(ctx, o.Total.InexactFloat64(), attrs)

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("store", st.Slug),
		zap.Stringer("total", o.Total),
	)

	s.events.Publish(ctx, notify.Event{
		Channel: notify.StoreChannel(st.Slug),
		Name:    notify.OrderCreated,
		Data: notify.OrderCreatedData{
			OrderID:      o.ID,
			OrderNumber:  o.OrderNumber,
			Status:       string(o.Status),
			Total:        o.Total,
			CustomerName: cust.Name,
			CreatedAt:    o.CreatedAt,
		},
	})

	return o, nil
}

// Get returns the full view of an order.
func (s *Service) Get(ctx context.Context, id string) (*Details, error) {
	d, err := s.orders.GetDetails(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get order")
	}
	return d, nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if strings.TrimSpace(req.StoreSlug) == "" {
		return validation.New("storeSlug", "required")
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return validation.New("customer.name", "required")
	}
	phone := strings.TrimSpace(req.Customer.Phone)
	if phone == "" {
		return validation.New("customer.phone", "required")
	}
	if n := utf8.RuneCountInString(phone); n < MinPhoneLength || n > MaxPhoneLength {
		return validation.New("customer.phone", fmt.Sprintf("must be %d to %d characters", MinPhoneLength, MaxPhoneLength))
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, line := range req.Items {
		if line.MenuItemID == "" {
			return validation.New("items.menuItemId", "required")
		}
		if line.Quantity < 1 || line.Quantity > MaxQuantity {
			return &InvalidQuantityError{MenuItemID: line.MenuItemID, Quantity: line.Quantity}
		}
	}
	if !req.PaymentMethod.Valid() {
		return validation.New("paymentMethod", "unsupported payment method "+string(req.PaymentMethod))
	}
	return nil
}
