// Package report builds the read-only admin views of a store.
package report

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/domain/validation"
)

// Period selects the window of the dashboard metrics.
type Period string

const (
	PeriodToday   Period = "today"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates a period query value. Empty means today.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodToday, nil
	case PeriodToday, PeriodWeekly, PeriodMonthly:
		return p, nil
	}
	return "", validation.New("period", "must be one of today, weekly, monthly")
}

// Range returns the half-open window [from, to) containing now. Weeks start
// on Sunday.
func (p Period) Range(now time.Time) (from, to time.Time) {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodWeekly:
		from = day.AddDate(0, 0, -int(day.Weekday()))
		return from, from.AddDate(0, 0, 7)
	case PeriodMonthly:
		from = time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

// Metrics are the dashboard counters. Order figures cover the period;
// TotalCustomers and TotalMenuItems are current totals.
type Metrics struct {
	TotalOrders     int
	TotalRevenue    decimal.Decimal
	PendingOrders   int
	CompletedOrders int
	TotalCustomers  int
	TotalMenuItems  int
}

// OrderRow is an order in the admin list.
type OrderRow struct {
	order.Order
	CustomerPhone string
	CustomerEmail string
	// ItemSummary reads like "2x Margherita, 1x Cola".
	ItemSummary string
}

// CustomerRow is a customer with their activity in one store.
type CustomerRow struct {
	customer.Customer
	TotalSpent     decimal.Decimal
	TotalOrders    int
	LastOrderItems string
}

// Repository runs the aggregate queries.
type Repository interface {
	Metrics(ctx context.Context, storeID string, from, to time.Time) (Metrics, error)
	// RecentOrders lists newest first. An empty status matches all.
	RecentOrders(ctx context.Context, storeID string, status order.Status, limit int) ([]OrderRow, error)
	Customers(ctx context.Context, storeID string, limit int) ([]CustomerRow, error)
}

const (
	defaultOrderLimit    = 50
	defaultCustomerLimit = 100
	maxLimit             = 500
)

// Service serves admin reports.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a report Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Dashboard returns the store metrics for period.
func (s *Service) Dashboard(ctx context.Context, storeID string, period Period) (Metrics, error) {
	from, to := period.Range(s.now())
	m, err := s.repo.Metrics(ctx, storeID, from, to)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "dashboard metrics")
	}
	return m, nil
}

// Orders lists recent orders, optionally filtered by status.
func (s *Service) Orders(ctx context.Context, storeID, status string, limit int) ([]OrderRow, error) {
	var st order.Status
	if status != "" {
		var err error
		if st, err = order.ParseStatus(status); err != nil {
			return nil, err
		}
	}
	rows, err := s.repo.RecentOrders(ctx, storeID, st, clampLimit(limit, defaultOrderLimit))
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return rows, nil
}

// Customers lists customers newest first with their spend in the store.
func (s *Service) Customers(ctx context.Context, storeID string, limit int) ([]CustomerRow, error) {
	rows, err := s.repo.Customers(ctx, storeID, clampLimit(limit, defaultCustomerLimit))
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	return rows, nil
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}
