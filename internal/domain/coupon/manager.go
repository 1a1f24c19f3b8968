package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/validation"
)

// Input describes a new coupon.
type Input struct {
	Code           string
	Name           string
	Description    string
	Type           Type
	Value          decimal.Decimal
	MinOrderAmount decimal.NullDecimal
	MaxDiscount    decimal.NullDecimal
	UsageLimit     *int
	IsActive       bool
	ValidFrom      *time.Time
	ValidUntil     *time.Time
}

// Patch holds the fields of an update. Nil fields are left unchanged.
type Patch struct {
	Code           *string
	Name           *string
	Description    *string
	Type           *Type
	Value          *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	MaxDiscount    *decimal.Decimal
	UsageLimit     *int
	IsActive       *bool
	ValidFrom      *time.Time
	ValidUntil     *time.Time
}

// Stats summarises coupon usage for a store.
type Stats struct {
	Total        int
	Active       int
	TotalUsage   int
	TotalSavings decimal.Decimal
	// ConversionRate is redemptions per coupon, in percent.
	ConversionRate int64
}

// Manager implements the admin operations on coupons.
type Manager struct {
	repo Repository
}

// NewManager creates a Manager.
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// List returns the store's coupons with usage statistics.
func (m *Manager) List(ctx context.Context, storeID string) ([]Coupon, Stats, error) {
	coupons, err := m.repo.List(ctx, storeID)
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "list coupons")
	}
	savings, err := m.repo.Savings(ctx, storeID)
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "sum savings")
	}

	st := Stats{Total: len(coupons), TotalSavings: savings}
	for _, c := range coupons {
		if c.IsActive {
			st.Active++
		}
		st.TotalUsage += c.UsedCount
	}
	if st.Total > 0 {
		st.ConversionRate = decimal.NewFromInt(int64(st.TotalUsage)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(st.Total))).
			Round(0).
			IntPart()
	}
	return coupons, st, nil
}

// Create validates in and stores it as a new coupon.
func (m *Manager) Create(ctx context.Context, storeID string, in Input) (*Coupon, error) {
	c := &Coupon{
		StoreID:        storeID,
		Code:           strings.TrimSpace(in.Code),
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Type:           in.Type,
		Value:          in.Value,
		MinOrderAmount: in.MinOrderAmount,
		MaxDiscount:    in.MaxDiscount,
		UsageLimit:     in.UsageLimit,
		IsActive:       in.IsActive,
		ValidFrom:      in.ValidFrom,
		ValidUntil:     in.ValidUntil,
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Update applies p to the coupon with id. The usage counter is never changed.
func (m *Manager) Update(ctx context.Context, storeID, id string, p Patch) (*Coupon, error) {
	c, err := m.repo.Get(ctx, storeID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get coupon")
	}

	if p.Code != nil {
		c.Code = strings.TrimSpace(*p.Code)
	}
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.MinOrderAmount != nil {
		c.MinOrderAmount = decimal.NewNullDecimal(*p.MinOrderAmount)
	}
	if p.MaxDiscount != nil {
		c.MaxDiscount = decimal.NewNullDecimal(*p.MaxDiscount)
	}
	if p.UsageLimit != nil {
		c.UsageLimit = p.UsageLimit
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.ValidFrom != nil {
		c.ValidFrom = p.ValidFrom
	}
	if p.ValidUntil != nil {
		c.ValidUntil = p.ValidUntil
	}

	if err := Validate(c); err != nil {
		return nil, err
	}
	if err := m.repo.Update(ctx, c); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCodeTaken) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Delete removes a coupon. Orders that used it keep their discount.
func (m *Manager) Delete(ctx context.Context, storeID, id string) error {
	if err := m.repo.Delete(ctx, storeID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}

// Validate checks the fields an admin or an import may set.
func Validate(c *Coupon) error {
	switch {
	case c.Code == "":
		return validation.New("code", "required")
	case strings.ContainsAny(c.Code, " \t\r\n"):
		return validation.New("code", "must not contain whitespace")
	case c.Name == "":
		return validation.New("name", "required")
	case !c.Type.Valid():
		return validation.New("type", "must be PERCENTAGE or FIXED_AMOUNT")
	case c.Value.IsNegative():
		return validation.New("value", "must not be negative")
	case c.Type == Percentage && c.Value.GreaterThan(hundred):
		return validation.New("value", "percentage must not exceed 100")
	case c.MinOrderAmount.Valid && c.MinOrderAmount.Decimal.IsNegative():
		return validation.New("minOrderAmount", "must not be negative")
	case c.MaxDiscount.Valid && c.MaxDiscount.Decimal.IsNegative():
		return validation.New("maxDiscount", "must not be negative")
	case c.UsageLimit != nil && *c.UsageLimit < 1:
		return validation.New("usageLimit", "must be at least 1")
	case c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom):
		return validation.New("validUntil", "must not be before validFrom")
	}
	return nil
}
