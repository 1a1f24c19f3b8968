package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/store"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPreparing      Status = "PREPARING"
	StatusReady          Status = "READY"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// PaymentStatus is the payment state of an order, independent of Status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentUPI            PaymentMethod = "UPI"
	PaymentCard           PaymentMethod = "CARD"
	PaymentWallet         PaymentMethod = "WALLET"
	PaymentRazorpay       PaymentMethod = "RAZORPAY"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentUPI, PaymentCard, PaymentWallet, PaymentRazorpay:
		return true
	}
	return false
}

// Sentinel errors for order operations.
var (
	ErrNotFound            = errors.New("order not found")
	ErrEmptyItems          = errors.New("items required")
	ErrOrderNumberConflict = errors.New("order number already exists")
	ErrConcurrentUpdate    = errors.New("order was modified concurrently")
	ErrInvalidTransition   = errors.New("invalid transition")
)

// Input limits. Amounts must fit the NUMERIC(10,2) money columns.
const (
	MaxQuantity      = 1000
	MaxEstimatedTime = 24 * 60
	MinPhoneLength   = 10
	MaxPhoneLength   = 20
)

// MaxAmount is the largest subtotal or total an order may carry.
var MaxAmount = decimal.RequireFromString("99999999.99")

// InvalidQuantityError indicates a line item quantity outside 1..MaxQuantity.
type InvalidQuantityError struct {
	MenuItemID string
	Quantity   int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity for menu item %s must be between 1 and %d, got %d", e.MenuItemID, MaxQuantity, e.Quantity)
}

// InvalidTransitionError is returned when a status change is not an edge of
// the lifecycle graph.
type InvalidTransitionError struct {
	Field string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change %s from %s to %s", e.Field, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// Order is a placed order. CustomerName and StoreSlug are filled on reads.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	StoreID       string
	CouponID      *string
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Notes         string
	EstimatedTime int
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	CustomerName string
	StoreSlug    string

	Items []Item
}

// Item is an order line. Price is the menu price when the order was placed.
type Item struct {
	ID         string
	OrderID    string
	MenuItemID string
	Quantity   int
	Price      decimal.Decimal
	Notes      string
}

// MenuItemSnapshot is the menu item data shown with an order line.
type MenuItemSnapshot struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	Size        string
	IsVeg       bool
}

// DetailItem is an order line with its menu item.
type DetailItem struct {
	Item
	MenuItem MenuItemSnapshot
}

// Details is the full view of an order.
type Details struct {
	Order
	Customer customer.Customer
	Store    store.Store
	Coupon   *coupon.Coupon
	Lines    []DetailItem
}

// State is the mutable part of an order touched by lifecycle updates.
type State struct {
	Status        Status
	PaymentStatus PaymentStatus
	EstimatedTime int
	DeliveredAt   *time.Time
}

// Repository persists orders.
type Repository interface {
	// Create inserts o and its items, filling generated IDs and timestamps.
	// It returns ErrOrderNumberConflict when the order number is taken.
	Create(ctx context.Context, o *Order) error
	// Get returns the order without items, or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// GetDetails returns the order with customer, store, coupon and lines.
	GetDetails(ctx context.Context, id string) (*Details, error)
	// Transition writes next only if the stored status and payment status
	// still equal prev, returning ErrConcurrentUpdate otherwise.
	Transition(ctx context.Context, id string, prev, next State) error
}

// TxManager runs fn in a database transaction carried by the context.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
