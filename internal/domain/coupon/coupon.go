// Package coupon evaluates and manages store discount coupons.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type identifies how a coupon's value is applied.
type Type string

const (
	// Percentage takes Value percent off the subtotal, capped by MaxDiscount.
	Percentage Type = "PERCENTAGE"
	// FixedAmount takes Value off the order.
	FixedAmount Type = "FIXED_AMOUNT"
)

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	return t == Percentage || t == FixedAmount
}

var (
	ErrNotFound          = errors.New("coupon not found")
	ErrCouponExpired     = errors.New("coupon is not valid at this time")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	ErrMinOrderNotMet    = errors.New("minimum order amount not met")
	ErrCodeTaken         = errors.New("coupon code already exists")
)

// MinOrderError reports the amount a subtotal must reach for the coupon to apply.
type MinOrderError struct {
	Code     string
	Required decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum order of %s", e.Code, e.Required.StringFixed(2))
}

func (e *MinOrderError) Unwrap() error { return ErrMinOrderNotMet }

// Coupon is a store-scoped discount code.
type Coupon struct {
	ID             string
	StoreID        string
	Code           string
	Name           string
	Description    string
	Type           Type
	Value          decimal.Decimal
	MinOrderAmount decimal.NullDecimal
	MaxDiscount    decimal.NullDecimal
	// UsageLimit is nil for unlimited coupons.
	UsageLimit *int
	UsedCount  int
	IsActive   bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
	CreatedAt  time.Time
}

// Exhausted reports whether the coupon has been redeemed UsageLimit times.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// ActiveAt reports whether now falls inside the coupon's validity window.
func (c *Coupon) ActiveAt(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// Repository stores coupons.
type Repository interface {
	// FindActiveByCode returns the active coupon with exactly code in the
	// store, or ErrNotFound.
	FindActiveByCode(ctx context.Context, storeID, code string) (*Coupon, error)
	// Redeem increments the usage counter only while it is below the limit.
	// It returns ErrUsageLimitReached when no row was updated.
	Redeem(ctx context.Context, couponID string) error

	List(ctx context.Context, storeID string) ([]Coupon, error)
	Get(ctx context.Context, storeID, id string) (*Coupon, error)
	// Create returns ErrCodeTaken when the code already exists in the store.
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, storeID, id string) error
	// Savings sums the discounts granted by coupons on the store's orders.
	Savings(ctx context.Context, storeID string) (decimal.Decimal, error)
}
