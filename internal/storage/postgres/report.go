package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/domain/report"
)

const (
	dashboardMetricsSQL = `SELECT
			(SELECT count(*) FROM orders
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3),
			(SELECT COALESCE(SUM(total), 0) FROM orders
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3),
			(SELECT count(*) FROM orders
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status = 'PENDING'),
			(SELECT count(*) FROM orders
				WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status = 'DELIVERED'),
			(SELECT count(*) FROM customers),
			(SELECT count(*) FROM menu_items WHERE store_id = $1 AND is_available)`

	recentOrdersSQL = `SELECT ` + orderColumns + `, cu.phone, cu.email,
			COALESCE((
				SELECT string_agg(oi.quantity || 'x ' || m.name, ', ' ORDER BY oi.created_at, oi.id)
				FROM order_items oi JOIN menu_items m ON m.id = oi.menu_item_id
				WHERE oi.order_id = o.id
			), '')
		FROM orders o
		JOIN customers cu ON cu.id = o.customer_id
		JOIN stores s ON s.id = o.store_id
		WHERE o.store_id = $1 AND ($2 = '' OR o.status = $2)
		ORDER BY o.created_at DESC
		LIMIT $3`

	customerStatsSQL = `SELECT ` + customerColumns + `,
			COALESCE(st.spent, 0), COALESCE(st.order_count, 0),
			COALESCE((
				SELECT string_agg(m.name, ', ' ORDER BY oi.created_at, oi.id)
				FROM order_items oi JOIN menu_items m ON m.id = oi.menu_item_id
				WHERE oi.order_id = st.last_order_id
			), '')
		FROM customers c
		LEFT JOIN LATERAL (
			SELECT SUM(o.total) AS spent, count(*) AS order_count,
				(array_agg(o.id ORDER BY o.created_at DESC))[1] AS last_order_id
			FROM orders o
			WHERE o.customer_id = c.id AND o.store_id = $1
		) st ON TRUE
		ORDER BY c.created_at DESC
		LIMIT $2`
)

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository runs the admin aggregate queries.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Metrics computes the dashboard counters for orders created in [from, to).
func (r *ReportRepository) Metrics(ctx context.Context, storeID string, from, to time.Time) (report.Metrics, error) {
	var m report.Metrics
	err := conn(ctx, r.pool).QueryRow(ctx, dashboardMetricsSQL, storeID, from, to).Scan(
		&m.TotalOrders, &m.TotalRevenue, &m.PendingOrders, &m.CompletedOrders,
		&m.TotalCustomers, &m.TotalMenuItems,
	)
	if err != nil {
		return report.Metrics{}, fmt.Errorf("computing dashboard metrics: %w", err)
	}
	return m, nil
}

// RecentOrders lists the store's newest orders with an item summary.
func (r *ReportRepository) RecentOrders(ctx context.Context, storeID string, status order.Status, limit int) ([]report.OrderRow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, recentOrdersSQL, storeID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent orders: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.OrderRow, error) {
		var (
			o                       report.OrderRow
			status, method, payment string
		)
		dest := append(orderDest(&o.Order, &status, &method, &payment),
			&o.CustomerPhone, &o.CustomerEmail, &o.ItemSummary)
		err := row.Scan(dest...)
		setOrderEnums(&o.Order, status, method, payment)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing recent orders: %w", err)
	}
	return out, nil
}

// Customers lists customers with their spend and order count in the store.
func (r *ReportRepository) Customers(ctx context.Context, storeID string, limit int) ([]report.CustomerRow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, customerStatsSQL, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.CustomerRow, error) {
		var c report.CustomerRow
		err := row.Scan(
			&c.ID, &c.Phone, &c.Name, &c.Email, &c.Address, &c.IsBlocked, &c.CreatedAt,
			&c.TotalSpent, &c.TotalOrders, &c.LastOrderItems,
		)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return out, nil
}
