// Package catalog reads and manages a store's menu.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound     = errors.New("menu item not found")
	ErrItemUnavailable  = errors.New("menu item unavailable")
	ErrCategoryNotFound = errors.New("category not found")
	ErrEmptyQuery       = errors.New("search query required")
)

// ItemError ties ErrItemNotFound or ErrItemUnavailable to a specific item.
type ItemError struct {
	ItemID string
	Name   string
	Err    error
}

func (e *ItemError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err, e.Name, e.ItemID)
	}
	return fmt.Sprintf("%s: %s", e.Err, e.ItemID)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Category groups menu items.
type Category struct {
	ID          string
	StoreID     string
	Name        string
	Slug        string
	Description string
	SortOrder   int
	IsActive    bool
}

// MenuItem is a purchasable product. CategoryName is filled on reads.
type MenuItem struct {
	ID           string
	StoreID      string
	CategoryID   string
	CategoryName string
	Name         string
	Description  string
	Price        decimal.Decimal
	Size         string
	ImageURL     string
	IsAvailable  bool
	IsVeg        bool
	SortOrder    int
	CreatedAt    time.Time
}

// Repository provides access to categories and menu items. Every lookup is
// scoped to a store.
type Repository interface {
	// GetItem returns ErrItemNotFound when itemID does not exist in the store.
	GetItem(ctx context.Context, storeID, itemID string) (*MenuItem, error)
	ListItems(ctx context.Context, storeID string) ([]MenuItem, error)
	// SearchItems matches available items by name or description.
	SearchItems(ctx context.Context, storeID, query string, limit int) ([]MenuItem, error)
	ListCategories(ctx context.Context, storeID string) ([]Category, error)
	// GetCategory returns ErrCategoryNotFound when categoryID is not in the store.
	GetCategory(ctx context.Context, storeID, categoryID string) (*Category, error)
	// CreateItem inserts item and fills its ID and CreatedAt.
	CreateItem(ctx context.Context, item *MenuItem) error
	// SetAvailability returns ErrItemNotFound when itemID is not in the store.
	SetAvailability(ctx context.Context, storeID, itemID string, available bool) (*MenuItem, error)
}
