package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/coupon"
)

const (
	couponColumns = `id, store_id, code, name, description, type, value, min_order_amount,
		max_discount, usage_limit, used_count, is_active, valid_from, valid_until, created_at`

	findActiveCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE store_id = $1 AND code = $2 AND is_active`

	getCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE store_id = $1 AND id = $2`

	listCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE store_id = $1 ORDER BY created_at DESC`

	// The limit check and the increment happen in one statement so
	// concurrent redemptions can never exceed usage_limit.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	createCouponSQL = `INSERT INTO coupons
		(store_id, code, name, description, type, value, min_order_amount, max_discount,
		 usage_limit, is_active, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, used_count, created_at`

	updateCouponSQL = `UPDATE coupons SET
		code = $3, name = $4, description = $5, type = $6, value = $7, min_order_amount = $8,
		max_discount = $9, usage_limit = $10, is_active = $11, valid_from = $12, valid_until = $13,
		updated_at = now()
		WHERE store_id = $1 AND id = $2`

	deleteCouponSQL = `DELETE FROM coupons WHERE store_id = $1 AND id = $2`

	couponSavingsSQL = `SELECT COALESCE(SUM(discount), 0)
		FROM orders WHERE store_id = $1 AND coupon_id IS NOT NULL`

	couponsCodeKey = "coupons_store_id_code_key"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActiveByCode looks up an active coupon by its exact code.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, storeID, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, findActiveCouponSQL, storeID, code)
}

// Get returns a coupon of the store regardless of its active flag.
func (r *CouponRepository) Get(ctx context.Context, storeID, id string) (*coupon.Coupon, error) {
	if !validID(id) {
		return nil, coupon.ErrNotFound
	}
	return r.getOne(ctx, getCouponSQL, storeID, id)
}

func (r *CouponRepository) getOne(ctx context.Context, sql, storeID, key string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, storeID, key)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", key, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", key, err)
	}
	return &c, nil
}

// List returns the store's coupons, newest first.
func (r *CouponRepository) List(ctx context.Context, storeID string) ([]coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// Redeem atomically consumes one use of the coupon.
func (r *CouponRepository) Redeem(ctx context.Context, couponID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, redeemCouponSQL, couponID)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	return nil
}

// Create inserts c, filling ID, UsedCount and CreatedAt.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createCouponSQL,
		c.StoreID, c.Code, c.Name, c.Description, string(c.Type), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.IsActive, c.ValidFrom, c.ValidUntil,
	).Scan(&c.ID, &c.UsedCount, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, couponsCodeKey) {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update overwrites the editable fields of c. used_count is left alone.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCouponSQL,
		c.StoreID, c.ID, c.Code, c.Name, c.Description, string(c.Type), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.IsActive, c.ValidFrom, c.ValidUntil,
	)
	if err != nil {
		if isUniqueViolation(err, couponsCodeKey) {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes the coupon. Orders keep their discount; coupon_id is nulled.
func (r *CouponRepository) Delete(ctx context.Context, storeID, id string) error {
	if !validID(id) {
		return coupon.ErrNotFound
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteCouponSQL, storeID, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Savings sums the discount of every couponed order in the store.
func (r *CouponRepository) Savings(ctx context.Context, storeID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := conn(ctx, r.pool).QueryRow(ctx, couponSavingsSQL, storeID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing coupon savings: %w", err)
	}
	return sum, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.StoreID, &c.Code, &c.Name, &c.Description, &typ, &c.Value, &c.MinOrderAmount,
		&c.MaxDiscount, &c.UsageLimit, &c.UsedCount, &c.IsActive, &c.ValidFrom, &c.ValidUntil, &c.CreatedAt,
	)
	c.Type = coupon.Type(typ)
	return c, err
}

const upsertCouponSQL = `INSERT INTO coupons
	(store_id, code, name, description, type, value, min_order_amount, max_discount,
	 usage_limit, is_active, valid_from, valid_until)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (store_id, code) DO UPDATE SET
		name = EXCLUDED.name, description = EXCLUDED.description, type = EXCLUDED.type,
		value = EXCLUDED.value, min_order_amount = EXCLUDED.min_order_amount,
		max_discount = EXCLUDED.max_discount, usage_limit = EXCLUDED.usage_limit,
		is_active = EXCLUDED.is_active, valid_from = EXCLUDED.valid_from,
		valid_until = EXCLUDED.valid_until, updated_at = now()`

// UpsertMany inserts coupons in one batch, overwriting the definition of
// codes that already exist in the store. Usage counters are preserved.
func (r *CouponRepository) UpsertMany(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL,
			c.StoreID, c.Code, c.Name, c.Description, string(c.Type), c.Value, c.MinOrderAmount,
			c.MaxDiscount, c.UsageLimit, c.IsActive, c.ValidFrom, c.ValidUntil,
		)
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}
