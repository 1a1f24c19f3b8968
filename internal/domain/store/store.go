// Package store describes the storefront an order, menu or coupon belongs to.
package store

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active store matches the slug.
var ErrNotFound = errors.New("store not found")

// Store is a single storefront.
type Store struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Address     string
	Phone       string
	Email       string
	IsActive    bool
}

// Repository looks up stores.
type Repository interface {
	// GetBySlug returns the active store with the given slug or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*Store, error)
}
