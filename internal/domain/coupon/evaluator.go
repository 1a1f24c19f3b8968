package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Applied is a coupon that passed evaluation together with its discount.
type Applied struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// Evaluator checks a coupon code against an order subtotal.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by repo.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// Evaluate looks up code in the store and computes its discount for subtotal.
//
// An empty or unknown code yields (nil, nil) and the order proceeds without a
// discount. A matched coupon that is outside its validity window, exhausted or
// above the subtotal's reach is an error.
func (e *Evaluator) Evaluate(ctx context.Context, storeID, code string, subtotal decimal.Decimal) (*Applied, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	c, err := e.repo.FindActiveByCode(ctx, storeID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.ActiveAt(e.now()) {
		return nil, ErrCouponExpired
	}
	if c.Exhausted() {
		return nil, ErrUsageLimitReached
	}
	if c.MinOrderAmount.Valid && subtotal.LessThan(c.MinOrderAmount.Decimal) {
		return nil, &MinOrderError{Code: c.Code, Required: c.MinOrderAmount.Decimal, Subtotal: subtotal}
	}

	return &Applied{Coupon: c, Discount: Discount(c, subtotal)}, nil
}

// Redeem consumes one use of the coupon. It must run in the same transaction
// as the order insert so a rejected redemption rolls the order back.
func (e *Evaluator) Redeem(ctx context.Context, couponID string) error {
	return e.repo.Redeem(ctx, couponID)
}

// Discount computes the amount c takes off subtotal, rounded to cents.
// Fixed discounts are not limited by the subtotal.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case Percentage:
		d = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.Valid && d.GreaterThan(c.MaxDiscount.Decimal) {
			d = c.MaxDiscount.Decimal
		}
	case FixedAmount:
		d = c.Value
	}
	return d.Round(2)
}
