package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(order_number, customer_id, store_id, coupon_id, status, payment_method, payment_status,
		 subtotal, tax, discount, total, notes, estimated_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	createOrderItemSQL = `INSERT INTO order_items (order_id, menu_item_id, quantity, price, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	orderColumns = `o.id, o.order_number, o.customer_id, o.store_id, o.coupon_id, o.status,
		o.payment_method, o.payment_status, o.subtotal, o.tax, o.discount, o.total, o.notes,
		o.estimated_time, o.delivered_at, o.created_at, o.updated_at, cu.name, s.slug`

	getOrderSQL = `SELECT ` + orderColumns + `
		FROM orders o
		JOIN customers cu ON cu.id = o.customer_id
		JOIN stores s ON s.id = o.store_id
		WHERE o.id = $1`

	getOrderDetailsSQL = `SELECT ` + orderColumns + `,
			cu.id, cu.phone, cu.name, cu.email, cu.address, cu.is_blocked, cu.created_at,
			s.id, s.slug, s.name, s.description, s.address, s.phone, s.email, s.is_active
		FROM orders o
		JOIN customers cu ON cu.id = o.customer_id
		JOIN stores s ON s.id = o.store_id
		WHERE o.id = $1`

	listOrderLinesSQL = `SELECT oi.id, oi.order_id, oi.menu_item_id, oi.quantity, oi.price, oi.notes,
			m.id, m.name, m.description, m.image_url, m.size, m.is_veg
		FROM order_items oi
		JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE oi.order_id = $1
		ORDER BY oi.created_at, oi.id`

	// The WHERE clause makes the update a compare-and-swap on the state the
	// caller validated the transition against.
	transitionOrderSQL = `UPDATE orders SET
		status = $4, payment_status = $5, estimated_time = $6, delivered_at = $7, updated_at = now()
		WHERE id = $1 AND status = $2 AND payment_status = $3`

	ordersNumberKey = "orders_order_number_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order and its items atomically. When ctx already carries
// a transaction the insert joins it.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, conn(ctx, r.pool), func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, createOrderSQL,
			o.OrderNumber, o.CustomerID, o.StoreID, o.CouponID, string(o.Status),
			string(o.PaymentMethod), string(o.PaymentStatus), o.Subtotal, o.Tax, o.Discount,
			o.Total, o.Notes, o.EstimatedTime,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, ordersNumberKey) {
				return order.ErrOrderNumberConflict
			}
			return fmt.Errorf("creating order %q: %w", o.OrderNumber, err)
		}

		batch := &pgx.Batch{}
		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID
			batch.Queue(createOrderItemSQL, o.ID, it.MenuItemID, it.Quantity, it.Price, it.Notes).
				QueryRow(func(row pgx.Row) error {
					return row.Scan(&it.ID)
				})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("creating items of order %q: %w", o.OrderNumber, err)
		}
		return nil
	})
}

// Get returns the order without its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	rows, err := conn(ctx, r.pool).Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// GetDetails returns the order with customer, store, applied coupon and lines.
func (r *OrderRepository) GetDetails(ctx context.Context, id string) (*order.Details, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderDetailsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanOrderDetails)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err = q.Query(ctx, listOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing lines of order %q: %w", id, err)
	}
	d.Lines, err = pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("listing lines of order %q: %w", id, err)
	}
	d.Items = make([]order.Item, len(d.Lines))
	for i, l := range d.Lines {
		d.Items[i] = l.Item
	}

	if d.CouponID != nil {
		rows, err = q.Query(ctx, getCouponSQL, d.StoreID, *d.CouponID)
		if err != nil {
			return nil, fmt.Errorf("getting coupon of order %q: %w", id, err)
		}
		c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
		switch {
		case err == nil:
			d.Coupon = &c
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("getting coupon of order %q: %w", id, err)
		}
	}
	return &d, nil
}

// Transition stores next if the order is still in prev.
func (r *OrderRepository) Transition(ctx context.Context, id string, prev, next order.State) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, transitionOrderSQL,
		id, string(prev.Status), string(prev.PaymentStatus),
		string(next.Status), string(next.PaymentStatus), next.EstimatedTime, next.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConcurrentUpdate
	}
	return nil
}

func orderDest(o *order.Order, status, method, payment *string) []any {
	return []any{
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.StoreID, &o.CouponID, status,
		method, payment, &o.Subtotal, &o.Tax, &o.Discount, &o.Total, &o.Notes,
		&o.EstimatedTime, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt, &o.CustomerName, &o.StoreSlug,
	}
}

func setOrderEnums(o *order.Order, status, method, payment string) {
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payment)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                       order.Order
		status, method, payment string
	)
	err := row.Scan(orderDest(&o, &status, &method, &payment)...)
	setOrderEnums(&o, status, method, payment)
	return o, err
}

func scanOrderDetails(row pgx.CollectableRow) (order.Details, error) {
	var (
		d                       order.Details
		status, method, payment string
	)
	dest := orderDest(&d.Order, &status, &method, &payment)
	cu, s := &d.Customer, &d.Store
	dest = append(dest,
		&cu.ID, &cu.Phone, &cu.Name, &cu.Email, &cu.Address, &cu.IsBlocked, &cu.CreatedAt,
		&s.ID, &s.Slug, &s.Name, &s.Description, &s.Address, &s.Phone, &s.Email, &s.IsActive,
	)
	err := row.Scan(dest...)
	setOrderEnums(&d.Order, status, method, payment)
	return d, err
}

func scanOrderLine(row pgx.CollectableRow) (order.DetailItem, error) {
	var l order.DetailItem
	m := &l.MenuItem
	err := row.Scan(
		&l.ID, &l.OrderID, &l.MenuItemID, &l.Quantity, &l.Price, &l.Notes,
		&m.ID, &m.Name, &m.Description, &m.ImageURL, &m.Size, &m.IsVeg,
	)
	return l, err
}
