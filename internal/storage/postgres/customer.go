package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/customer"
)

const (
	customerColumns = `id, phone, name, email, address, is_blocked, created_at`

	findCustomerByPhoneSQL = `SELECT ` + customerColumns + ` FROM customers WHERE phone = $1`

	createCustomerSQL = `INSERT INTO customers (phone, name, email, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	customersPhoneKey = "customers_phone_key"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// FindByPhone returns the customer registered with phone.
func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findCustomerByPhoneSQL, phone)
	if err != nil {
		return nil, fmt.Errorf("finding customer by phone: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("finding customer by phone: %w", err)
	}
	return &c, nil
}

// Create inserts c. A concurrent insert of the same phone yields
// customer.ErrPhoneTaken.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createCustomerSQL, c.Phone, c.Name, c.Email, c.Address).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, customersPhoneKey) {
			return customer.ErrPhoneTaken
		}
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.Email, &c.Address, &c.IsBlocked, &c.CreatedAt)
	return c, err
}
