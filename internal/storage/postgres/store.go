package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/store"
)

const (
	getStoreBySlugSQL = `SELECT id, slug, name, description, address, phone, email, is_active
		FROM stores WHERE slug = $1 AND is_active`

	upsertStoreSQL = `INSERT INTO stores (slug, name, description, address, phone, email, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, address = EXCLUDED.address,
			phone = EXCLUDED.phone, email = EXCLUDED.email, is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id`
)

var _ store.Repository = (*StoreRepository)(nil)

// StoreRepository implements store.Repository backed by PostgreSQL.
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository returns a StoreRepository that uses the given pool.
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// GetBySlug returns the active store with slug.
func (r *StoreRepository) GetBySlug(ctx context.Context, slug string) (*store.Store, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getStoreBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting store %q: %w", slug, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("getting store %q: %w", slug, err)
	}
	return &s, nil
}

func scanStore(row pgx.CollectableRow) (store.Store, error) {
	var s store.Store
	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.Description, &s.Address, &s.Phone, &s.Email, &s.IsActive)
	return s, err
}

// Upsert creates or updates the store with s.Slug and fills s.ID.
func (r *StoreRepository) Upsert(ctx context.Context, s *store.Store) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertStoreSQL,
		s.Slug, s.Name, s.Description, s.Address, s.Phone, s.Email, s.IsActive,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("upserting store %q: %w", s.Slug, err)
	}
	return nil
}
