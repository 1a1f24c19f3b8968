package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	coupon    *Coupon
	findErr   error
	redeemErr error
	redeemed  []string

	list    []Coupon
	savings decimal.Decimal
	created *Coupon
	updated *Coupon
	deleted string
	saveErr error
}

func (m *mockRepo) FindActiveByCode(_ context.Context, _, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.coupon == nil || m.coupon.Code != code {
		return nil, ErrNotFound
	}
	c := *m.coupon
	return &c, nil
}

func (m *mockRepo) Redeem(_ context.Context, couponID string) error {
	m.redeemed = append(m.redeemed, couponID)
	return m.redeemErr
}

func (m *mockRepo) List(context.Context, string) ([]Coupon, error) { return m.list, nil }

func (m *mockRepo) Get(_ context.Context, _, id string) (*Coupon, error) {
	if m.coupon == nil || m.coupon.ID != id {
		return nil, ErrNotFound
	}
	c := *m.coupon
	return &c, nil
}

func (m *mockRepo) Create(_ context.Context, c *Coupon) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	c.ID = "cpn-new"
	m.created = c
	return nil
}

func (m *mockRepo) Update(_ context.Context, c *Coupon) error {
	m.updated = c
	return m.saveErr
}

func (m *mockRepo) Delete(_ context.Context, _, id string) error {
	if m.coupon == nil || m.coupon.ID != id {
		return ErrNotFound
	}
	m.deleted = id
	return nil
}

func (m *mockRepo) Savings(context.Context, string) (decimal.Decimal, error) { return m.savings, nil }

func intPtr(v int) *int { return &v }

func TestEvaluator_Evaluate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := fixedNow.Add(-24 * time.Hour)
	tomorrow := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name         string
		coupon       *Coupon
		code         string
		subtotal     decimal.Decimal
		wantDiscount decimal.Decimal
		wantNil      bool
		wantErr      error
	}{
		{
			name:         "percentage capped by max discount",
			coupon:       &Coupon{Code: "SAVE10", Type: Percentage, Value: decimal.NewFromInt(10), MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(15))},
			code:         "SAVE10",
			subtotal:     decimal.NewFromInt(200),
			wantDiscount: decimal.NewFromInt(15),
		},
		{
			name:         "percentage below cap",
			coupon:       &Coupon{Code: "SAVE10", Type: Percentage, Value: decimal.NewFromInt(10), MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(50))},
			code:         "SAVE10",
			subtotal:     decimal.NewFromInt(200),
			wantDiscount: decimal.NewFromInt(20),
		},
		{
			name:         "percentage rounds to cents",
			coupon:       &Coupon{Code: "THIRD", Type: Percentage, Value: decimal.RequireFromString("33.33")},
			code:         "THIRD",
			subtotal:     decimal.RequireFromString("99.99"),
			wantDiscount: decimal.RequireFromString("33.33"),
		},
		{
			name:         "fixed amount is not limited by subtotal",
			coupon:       &Coupon{Code: "FLAT100", Type: FixedAmount, Value: decimal.NewFromInt(100)},
			code:         "FLAT100",
			subtotal:     decimal.NewFromInt(60),
			wantDiscount: decimal.NewFromInt(100),
		},
		{
			name:     "unknown code applies nothing",
			coupon:   &Coupon{Code: "SAVE10", Type: Percentage, Value: decimal.NewFromInt(10)},
			code:     "save10",
			subtotal: decimal.NewFromInt(200),
			wantNil:  true,
		},
		{
			name:     "blank code applies nothing",
			code:     "  ",
			subtotal: decimal.NewFromInt(200),
			wantNil:  true,
		},
		{
			name:     "minimum order not met",
			coupon:   &Coupon{Code: "BIG", Type: FixedAmount, Value: decimal.NewFromInt(50), MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(500))},
			code:     "BIG",
			subtotal: decimal.NewFromInt(200),
			wantErr:  ErrMinOrderNotMet,
		},
		{
			name:         "minimum order met exactly",
			coupon:       &Coupon{Code: "BIG", Type: FixedAmount, Value: decimal.NewFromInt(50), MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(500))},
			code:         "BIG",
			subtotal:     decimal.NewFromInt(500),
			wantDiscount: decimal.NewFromInt(50),
		},
		{
			name:     "usage limit reached",
			coupon:   &Coupon{Code: "ONCE", Type: FixedAmount, Value: decimal.NewFromInt(5), UsageLimit: intPtr(1), UsedCount: 1},
			code:     "ONCE",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrUsageLimitReached,
		},
		{
			name:     "not yet valid",
			coupon:   &Coupon{Code: "SOON", Type: FixedAmount, Value: decimal.NewFromInt(5), ValidFrom: &tomorrow},
			code:     "SOON",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrCouponExpired,
		},
		{
			name:     "expired",
			coupon:   &Coupon{Code: "OLD", Type: FixedAmount, Value: decimal.NewFromInt(5), ValidUntil: &yesterday},
			code:     "OLD",
			subtotal: decimal.NewFromInt(100),
			wantErr:  ErrCouponExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Evaluator{repo: &mockRepo{coupon: tt.coupon}, now: func() time.Time { return fixedNow }}

			applied, err := e.Evaluate(context.Background(), "store-1", tt.code, tt.subtotal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, applied)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, applied)
				return
			}
			require.NotNil(t, applied)
			assert.True(t, tt.wantDiscount.Equal(applied.Discount),
				"want discount %s, got %s", tt.wantDiscount, applied.Discount)
		})
	}
}

func TestEvaluator_MinOrderErrorDetails(t *testing.T) {
	repo := &mockRepo{coupon: &Coupon{
		Code:           "BIG",
		Type:           FixedAmount,
		Value:          decimal.NewFromInt(50),
		MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(500)),
	}}

	_, err := NewEvaluator(repo).Evaluate(context.Background(), "s", "BIG", decimal.NewFromInt(200))

	var minErr *MinOrderError
	require.True(t, errors.As(err, &minErr))
	assert.True(t, minErr.Required.Equal(decimal.NewFromInt(500)))
	assert.Contains(t, err.Error(), "500.00")
}

func TestEvaluator_LookupFailure(t *testing.T) {
	repo := &mockRepo{findErr: errors.New("connection refused")}

	_, err := NewEvaluator(repo).Evaluate(context.Background(), "s", "ANY", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestEvaluator_Redeem(t *testing.T) {
	repo := &mockRepo{redeemErr: ErrUsageLimitReached}

	err := NewEvaluator(repo).Redeem(context.Background(), "cpn-1")
	require.ErrorIs(t, err, ErrUsageLimitReached)
	assert.Equal(t, []string{"cpn-1"}, repo.redeemed)
}
