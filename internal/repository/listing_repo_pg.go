package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListingRepository holds the locally known listing facts the vendor does not
// enforce for us, such as guest capacity.
type ListingRepository interface {
	List(ctx context.Context) ([]domain.Listing, error)
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
}

type PGListingRepository struct {
	db *pgxpool.Pool
}

func NewListingRepository(db *pgxpool.Pool) ListingRepository {
	return &PGListingRepository{db: db}
}

func (r *PGListingRepository) List(ctx context.Context) ([]domain.Listing, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, max_guests, created_at, updated_at FROM listings ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := make([]domain.Listing, 0)
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(&l.ID, &l.Name, &l.MaxGuests, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (r *PGListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, max_guests, created_at, updated_at FROM listings WHERE id=$1`, id)
	var l domain.Listing
	if err := row.Scan(&l.ID, &l.Name, &l.MaxGuests, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

var _ ListingRepository = (*PGListingRepository)(nil)
