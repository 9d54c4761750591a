package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("record not found")

type BookingRepository interface {
	CreatePending(ctx context.Context, booking *domain.Booking) error
	MarkFailed(ctx context.Context, id, reason string) error
	MarkConfirmed(ctx context.Context, id string, c domain.Confirmation) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetLatestByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, idempotency_key, COALESCE(upstream_reservation_id, ''), COALESCE(confirmation_code, ''),
	listing_id, quote_id, check_in, check_out, nights, adults, children,
	guest_first_name, guest_last_name, guest_email, guest_phone,
	base_cents, cleaning_cents, tax_cents, total_cents, currency,
	payment_method_token, payment_status, status, COALESCE(error_reason, ''),
	COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at, updated_at, confirmed_at`

// CreatePending inserts the attempt in pending/pending state and fills in the
// server-side timestamps.
func (r *PGBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) error {
	booking.Status = domain.BookingStatusPending
	booking.PaymentStatus = domain.PaymentStatusPending

	return r.db.QueryRow(ctx, `INSERT INTO bookings (
		id, idempotency_key, listing_id, quote_id, check_in, check_out, nights, adults, children,
		guest_first_name, guest_last_name, guest_email, guest_phone,
		base_cents, cleaning_cents, tax_cents, total_cents, currency,
		payment_method_token, payment_status, status, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, NULLIF($22, ''), NULLIF($23, ''))
		RETURNING created_at, updated_at`,
		booking.ID, booking.IdempotencyKey, booking.ListingID, booking.QuoteID,
		booking.CheckIn, booking.CheckOut, booking.Nights, booking.Guests.Adults, booking.Guests.Children,
		booking.Guest.FirstName, booking.Guest.LastName, booking.Guest.Email, booking.Guest.Phone,
		booking.Pricing.BaseCents, booking.Pricing.CleaningCents, booking.Pricing.TaxCents, booking.Pricing.TotalCents, booking.Pricing.Currency,
		booking.PaymentMethodToken, booking.PaymentStatus, booking.Status, booking.IPAddress, booking.UserAgent,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

func (r *PGBookingRepository) MarkFailed(ctx context.Context, id, reason string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings
		SET status=$1, payment_status=$2, error_reason=$3, updated_at=now()
		WHERE id=$4`,
		domain.BookingStatusCancelled, domain.PaymentStatusFailed, reason, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkConfirmed records the upstream identifiers. Pricing is only overwritten
// when upstream reported it.
func (r *PGBookingRepository) MarkConfirmed(ctx context.Context, id string, c domain.Confirmation) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings
		SET upstream_reservation_id=$1, confirmation_code=$2, status=$3, payment_status=$4,
			base_cents=CASE WHEN $5 THEN $6 ELSE base_cents END,
			cleaning_cents=CASE WHEN $5 THEN $7 ELSE cleaning_cents END,
			tax_cents=CASE WHEN $5 THEN $8 ELSE tax_cents END,
			total_cents=CASE WHEN $5 THEN $9 ELSE total_cents END,
			currency=CASE WHEN $5 AND $10 <> '' THEN $10 ELSE currency END,
			confirmed_at=now(), updated_at=now()
		WHERE id=$11`,
		c.UpstreamReservationID, c.ConfirmationCode, c.Status, c.PaymentStatus,
		!c.Pricing.IsZero(), c.Pricing.BaseCents, c.Pricing.CleaningCents, c.Pricing.TaxCents, c.Pricing.TotalCents, c.Pricing.Currency,
		id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) GetLatestByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key=$1 ORDER BY created_at DESC LIMIT 1`, key)
	return scanBooking(row)
}

func (r *PGBookingRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status=$1 AND created_at <= $2 ORDER BY created_at`, domain.BookingStatusPending, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, *b)
	}
	return stale, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(
		&b.ID, &b.IdempotencyKey, &b.UpstreamReservationID, &b.ConfirmationCode,
		&b.ListingID, &b.QuoteID, &b.CheckIn, &b.CheckOut, &b.Nights, &b.Guests.Adults, &b.Guests.Children,
		&b.Guest.FirstName, &b.Guest.LastName, &b.Guest.Email, &b.Guest.Phone,
		&b.Pricing.BaseCents, &b.Pricing.CleaningCents, &b.Pricing.TaxCents, &b.Pricing.TotalCents, &b.Pricing.Currency,
		&b.PaymentMethodToken, &b.PaymentStatus, &b.Status, &b.ErrorReason,
		&b.IPAddress, &b.UserAgent, &b.CreatedAt, &b.UpdatedAt, &b.ConfirmedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
