package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/catalog"
)

const (
	menuItemColumns = `m.id, m.store_id, m.category_id, c.name, m.name, m.description, m.price,
		m.size, m.image_url, m.is_available, m.is_veg, m.sort_order, m.created_at`

	getMenuItemSQL = `SELECT ` + menuItemColumns + `
		FROM menu_items m JOIN categories c ON c.id = m.category_id
		WHERE m.store_id = $1 AND m.id = $2`

	listMenuItemsSQL = `SELECT ` + menuItemColumns + `
		FROM menu_items m JOIN categories c ON c.id = m.category_id
		WHERE m.store_id = $1
		ORDER BY m.sort_order, m.name`

	searchMenuItemsSQL = `SELECT ` + menuItemColumns + `
		FROM menu_items m JOIN categories c ON c.id = m.category_id
		WHERE m.store_id = $1 AND m.is_available
			AND (m.name ILIKE $2 OR m.description ILIKE $2)
		ORDER BY m.sort_order, m.name
		LIMIT $3`

	createMenuItemSQL = `INSERT INTO menu_items
		(store_id, category_id, name, description, price, size, image_url, is_available, is_veg, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	setAvailabilitySQL = `WITH m AS (
			UPDATE menu_items SET is_available = $3, updated_at = now()
			WHERE store_id = $1 AND id = $2
			RETURNING *
		)
		SELECT ` + menuItemColumns + ` FROM m JOIN categories c ON c.id = m.category_id`

	categoryColumns = `id, store_id, name, slug, description, sort_order, is_active`

	listCategoriesSQL = `SELECT ` + categoryColumns + `
		FROM categories WHERE store_id = $1 ORDER BY sort_order, name`

	getCategorySQL = `SELECT ` + categoryColumns + `
		FROM categories WHERE store_id = $1 AND id = $2`

	upsertCategorySQL = `INSERT INTO categories (store_id, name, slug, description, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (store_id, slug) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order, is_active = EXCLUDED.is_active
		RETURNING id`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetItem returns a menu item of the store.
func (r *CatalogRepository) GetItem(ctx context.Context, storeID, itemID string) (*catalog.MenuItem, error) {
	if !validID(itemID) {
		return nil, catalog.ErrItemNotFound
	}
	rows, err := conn(ctx, r.pool).Query(ctx, getMenuItemSQL, storeID, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", itemID, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrItemNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", itemID, err)
	}
	return &item, nil
}

// ListItems returns all menu items of the store, available or not.
func (r *CatalogRepository) ListItems(ctx context.Context, storeID string) ([]catalog.MenuItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listMenuItemsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}

	items, err := pgx.CollectRows(rows, scanMenuItem)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return items, nil
}

// SearchItems matches available items whose name or description contains
// query, case-insensitively.
func (r *CatalogRepository) SearchItems(ctx context.Context, storeID, query string, limit int) ([]catalog.MenuItem, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := conn(ctx, r.pool).Query(ctx, searchMenuItemsSQL, storeID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching menu items: %w", err)
	}

	items, err := pgx.CollectRows(rows, scanMenuItem)
	if err != nil {
		return nil, fmt.Errorf("searching menu items: %w", err)
	}
	return items, nil
}

// ListCategories returns the store's categories, including inactive ones.
func (r *CatalogRepository) ListCategories(ctx context.Context, storeID string) ([]catalog.Category, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCategoriesSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// GetCategory returns a category of the store.
func (r *CatalogRepository) GetCategory(ctx context.Context, storeID, categoryID string) (*catalog.Category, error) {
	if !validID(categoryID) {
		return nil, catalog.ErrCategoryNotFound
	}
	rows, err := conn(ctx, r.pool).Query(ctx, getCategorySQL, storeID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", categoryID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", categoryID, err)
	}
	return &c, nil
}

// UpsertCategory creates or updates the category with c.Slug in c.StoreID and
// fills c.ID.
func (r *CatalogRepository) UpsertCategory(ctx context.Context, c *catalog.Category) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertCategorySQL,
		c.StoreID, c.Name, c.Slug, c.Description, c.SortOrder, c.IsActive,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting category %q: %w", c.Slug, err)
	}
	return nil
}

// CreateItem inserts item, filling ID and CreatedAt.
func (r *CatalogRepository) CreateItem(ctx context.Context, item *catalog.MenuItem) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createMenuItemSQL,
		item.StoreID, item.CategoryID, item.Name, item.Description, item.Price,
		item.Size, item.ImageURL, item.IsAvailable, item.IsVeg, item.SortOrder,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating menu item %q: %w", item.Name, err)
	}
	return nil
}

// SetAvailability toggles whether the item can be ordered.
func (r *CatalogRepository) SetAvailability(ctx context.Context, storeID, itemID string, available bool) (*catalog.MenuItem, error) {
	if !validID(itemID) {
		return nil, catalog.ErrItemNotFound
	}
	rows, err := conn(ctx, r.pool).Query(ctx, setAvailabilitySQL, storeID, itemID, available)
	if err != nil {
		return nil, fmt.Errorf("setting availability of %q: %w", itemID, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrItemNotFound
		}
		return nil, fmt.Errorf("setting availability of %q: %w", itemID, err)
	}
	return &item, nil
}

func scanMenuItem(row pgx.CollectableRow) (catalog.MenuItem, error) {
	var m catalog.MenuItem
	err := row.Scan(
		&m.ID, &m.StoreID, &m.CategoryID, &m.CategoryName, &m.Name, &m.Description, &m.Price,
		&m.Size, &m.ImageURL, &m.IsAvailable, &m.IsVeg, &m.SortOrder, &m.CreatedAt,
	)
	return m, err
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.StoreID, &c.Name, &c.Slug, &c.Description, &c.SortOrder, &c.IsActive)
	return c, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
