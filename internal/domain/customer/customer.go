// Package customer identifies ordering customers by phone number.
package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderdesk/internal/domain/validation"
)

var (
	ErrNotFound = errors.New("customer not found")
	// ErrPhoneTaken is returned by Repository.Create when another customer
	// with the same phone was inserted first.
	ErrPhoneTaken = errors.New("customer phone already registered")
)

// Customer is a person who places orders.
type Customer struct {
	ID        string
	Phone     string
	Name      string
	Email     string
	Address   string
	IsBlocked bool
	CreatedAt time.Time
}

// Profile is the contact information supplied with an order.
type Profile struct {
	Phone   string
	Name    string
	Email   string
	Address string
}

// Repository stores customers. Phone numbers are unique.
type Repository interface {
	FindByPhone(ctx context.Context, phone string) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
}

// Registry resolves the customer behind an order.
type Registry struct {
	repo Repository
}

// NewRegistry creates a Registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// Resolve returns the customer with p.Phone, creating one from p when none
// exists. An existing customer is returned unchanged even if p carries a
// different name or address. When a concurrent request registers the same
// phone first, the winner's record is returned.
func (r *Registry) Resolve(ctx context.Context, p Profile) (*Customer, error) {
	p.Phone = strings.TrimSpace(p.Phone)
	p.Name = strings.TrimSpace(p.Name)
	if p.Phone == "" {
		return nil, validation.New("customerPhone", "required")
	}
	if p.Name == "" {
		return nil, validation.New("customerName", "required")
	}

	c, err := r.repo.FindByPhone(ctx, p.Phone)
	switch {
	case err == nil:
		return c, nil
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "find customer")
	}

	c = &Customer{
		Phone:   p.Phone,
		Name:    p.Name,
		Email:   strings.TrimSpace(p.Email),
		Address: strings.TrimSpace(p.Address),
	}
	if err := r.repo.Create(ctx, c); err != nil {
		if !errors.Is(err, ErrPhoneTaken) {
			return nil, errors.Wrap(err, "create customer")
		}
		existing, findErr := r.repo.FindByPhone(ctx, p.Phone)
		if findErr != nil {
			return nil, errors.Wrap(findErr, "find customer after conflict")
		}
		return existing, nil
	}
	return c, nil
}
