// Package reservation confirms checkouts against the upstream booking API.
//
// Every attempt is written to the local store as a pending record before the
// upstream charge is requested. Failures before the charge abort the attempt;
// failures after it are logged for reconciliation and never change the
// result the guest sees.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/Domenick1991/cabinbooking/internal/kafka"
	"github.com/Domenick1991/cabinbooking/internal/metrics"
	"github.com/Domenick1991/cabinbooking/internal/repository"
	"github.com/Domenick1991/cabinbooking/internal/upstream"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLockTTL           = 5 * time.Minute
	DefaultSideEffectTimeout = 30 * time.Second
	markFailedTimeout        = 10 * time.Second
	maxReasonLength          = 1000
)

type ReservationUseCase interface {
	ConfirmReservation(ctx context.Context, input ConfirmInput) (*Result, error)
	GetReservation(ctx context.Context, id string) (*Result, error)
}

type Upstream interface {
	CreateReservation(ctx context.Context, in upstream.ReservationInput) (upstream.Reservation, error)
}

// Locker serialises submits that share an idempotency key.
type Locker interface {
	AcquireReservationLock(ctx context.Context, idempotencyKey string, ttl time.Duration) (holder string, ok bool, err error)
	ReleaseReservationLock(ctx context.Context, idempotencyKey, holder string) error
}

type Notifier interface {
	SendConfirmation(ctx context.Context, payload kafka.ConfirmationPayload) error
}

type EventProducer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ConfirmInput struct {
	IdempotencyKey     string    `validate:"omitempty,max=128"`
	ListingID          string    `validate:"required"`
	QuoteID            string    `validate:"required"`
	CheckIn            time.Time `validate:"required"`
	CheckOut           time.Time `validate:"required"`
	PaymentMethodToken string    `validate:"required"`
	Guests             domain.Guests
	Guest              domain.GuestDetails
	Pricing            domain.Pricing
	IPAddress          string
	UserAgent          string
}

// Result is the canonical outcome of a confirmed reservation.
type Result struct {
	BookingID        string
	IdempotencyKey   string
	ReservationID    string
	ConfirmationCode string
	Status           domain.BookingStatus
	PaymentStatus    domain.PaymentStatus
	ListingID        string
	CheckIn          time.Time
	CheckOut         time.Time
	Nights           int
	Guests           domain.Guests
	Guest            domain.GuestDetails
	Pricing          domain.Pricing
	Replayed         bool
}

// EffectOutcome reports how one post-confirmation side effect ended.
type EffectOutcome struct {
	Name       string
	Err        error
	DurationMS int64
}

type Service struct {
	bookings          repository.BookingRepository
	upstream          Upstream
	locker            Locker
	notifier          Notifier
	producer          EventProducer
	eventsTopic       string
	lockTTL           time.Duration
	sideEffectTimeout time.Duration
	metrics           *metrics.Metrics
	validate          *validator.Validate
	newID             func() string
	onSettled         func(bookingID string, outcomes []EffectOutcome)

	wg sync.WaitGroup
}

type Option func(*Service)

func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithEvents(producer EventProducer, topic string) Option {
	return func(s *Service) {
		s.producer = producer
		s.eventsTopic = topic
	}
}

func WithSideEffectTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sideEffectTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSettledHook is called once all side effects of a confirmation have ended.
func WithSettledHook(fn func(bookingID string, outcomes []EffectOutcome)) Option {
	return func(s *Service) {
		s.onSettled = fn
	}
}

func NewService(bookings repository.BookingRepository, api Upstream, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		bookings:          bookings,
		upstream:          api,
		notifier:          notifier,
		lockTTL:           DefaultLockTTL,
		sideEffectTimeout: DefaultSideEffectTimeout,
		validate:          validator.New(),
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmReservation confirms and charges the quote held by the guest.
// A repeat of an already confirmed key replays the stored result without
// contacting upstream. Upstream sees the same idempotency key on every
// attempt for a checkout.
func (s *Service) ConfirmReservation(ctx context.Context, input ConfirmInput) (*Result, error) {
	result, err := s.confirm(ctx, input)
	switch {
	case err != nil:
		s.metrics.ObserveReservation(apperr.Kind(err))
	case result.Replayed:
		s.metrics.ObserveReservation("replayed")
	default:
		s.metrics.ObserveReservation("confirmed")
	}
	return result, err
}

func (s *Service) confirm(ctx context.Context, input ConfirmInput) (*Result, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	key := input.IdempotencyKey
	if key == "" {
		key = s.newID()
	}

	locked := false
	if s.locker != nil {
		holder, ok, err := s.locker.AcquireReservationLock(ctx, key, s.lockTTL)
		switch {
		case err != nil:
			// The record lookup below still guards replays.
			log.Printf("WARNING: reservation lock %s: %v", key, err)
		case !ok:
			return nil, fmt.Errorf("%w: key %s", apperr.ErrReservationInProgress, key)
		default:
			locked = true
			defer s.releaseLock(ctx, key, holder)
		}
	}

	var record *domain.Booking
	latest, err := s.bookings.GetLatestByIdempotencyKey(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		log.Printf("ERROR: look up booking for key %s: %v", key, err)
		return nil, fmt.Errorf("%w: look up previous attempt", apperr.ErrSystemUnavailable)
	case latest.Status == domain.BookingStatusPending && !locked:
		return nil, fmt.Errorf("%w: booking %s", apperr.ErrReservationInProgress, latest.ID)
	case latest.Status == domain.BookingStatusPending:
		// An earlier attempt may have reached upstream. Repeating it under the
		// same key lets upstream return that outcome instead of charging again.
		log.Printf("resuming pending booking %s for key %s", latest.ID, key)
		record = latest
	case latest.Status != domain.BookingStatusCancelled:
		// Anything upstream accepted is replayed, never charged again.
		log.Printf("replaying %s booking %s for key %s", latest.Status, latest.ID, key)
		res := resultFromRecord(latest)
		res.Replayed = true
		return res, nil
	}

	if record == nil {
		record = &domain.Booking{
			ID:                 s.newID(),
			IdempotencyKey:     key,
			ListingID:          input.ListingID,
			QuoteID:            input.QuoteID,
			CheckIn:            domain.TruncateDay(input.CheckIn),
			CheckOut:           domain.TruncateDay(input.CheckOut),
			Nights:             domain.Nights(input.CheckIn, input.CheckOut),
			Guests:             input.Guests,
			Guest:              input.Guest,
			Pricing:            input.Pricing,
			PaymentMethodToken: input.PaymentMethodToken,
			IPAddress:          input.IPAddress,
			UserAgent:          input.UserAgent,
		}
		if err := s.bookings.CreatePending(ctx, record); err != nil {
			log.Printf("ERROR: create pending booking for key %s: %v", key, err)
			return nil, fmt.Errorf("%w: record attempt", apperr.ErrSystemUnavailable)
		}
	}

	reservation, err := s.upstream.CreateReservation(ctx, upstream.ReservationInput{
		QuoteID:            record.QuoteID,
		Reference:          record.ID,
		Guest:              record.Guest,
		PaymentMethodToken: record.PaymentMethodToken,
		IdempotencyKey:     key,
	})
	if err != nil {
		return nil, s.fail(ctx, record, err)
	}

	result := buildResult(record, reservation)
	s.settle(ctx, record, result)
	return result, nil
}

func (s *Service) GetReservation(ctx context.Context, id string) (*Result, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: malformed reservation id", apperr.ErrValidation)
	}
	record, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: reservation %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load reservation: %v", apperr.ErrSystemUnavailable, err)
	}
	return resultFromRecord(record), nil
}

// FlagStalePending publishes a reconciliation event for every attempt that has
// been pending longer than olderThan. Such an attempt may have been charged
// upstream, so it is reported and never failed automatically.
func (s *Service) FlagStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.bookings.ListStalePending(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("list stale pending bookings: %w", err)
	}

	for _, b := range stale {
		log.Printf("WARNING: booking %s (key %s) pending since %s needs reconciliation",
			b.ID, b.IdempotencyKey, b.CreatedAt.Format(time.RFC3339))
		s.publish(ctx, kafka.ReservationEvent{
			Type:           kafka.EventNeedsReconciliation,
			BookingID:      b.ID,
			IdempotencyKey: b.IdempotencyKey,
			ListingID:      b.ListingID,
			Status:         string(b.Status),
			PaymentStatus:  string(b.PaymentStatus),
			Reason:         "pending since " + b.CreatedAt.UTC().Format(time.RFC3339),
			OccurredAt:     time.Now().UTC(),
		})
	}
	return len(stale), nil
}

// Wait blocks until every background side effect started so far has ended.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) validateInput(input ConfirmInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, describeValidation(err))
	}
	if input.Guest.FirstName == "" || input.Guest.LastName == "" {
		return fmt.Errorf("%w: guest name is required", apperr.ErrValidation)
	}
	if err := s.validate.Var(input.Guest.Email, "required,email"); err != nil {
		return fmt.Errorf("%w: a valid guest email is required", apperr.ErrValidation)
	}
	if !input.CheckOut.After(input.CheckIn) {
		return fmt.Errorf("%w: check-out must be after check-in", apperr.ErrValidation)
	}
	if input.Guests.Adults < 1 || input.Guests.Children < 0 {
		return fmt.Errorf("%w: at least one adult is required", apperr.ErrValidation)
	}
	if !input.Pricing.Balanced() {
		return fmt.Errorf("%w: quoted amounts do not add up", apperr.ErrValidation)
	}
	if err := s.validate.Var(input.Pricing.Currency, "required,iso4217"); err != nil {
		return fmt.Errorf("%w: a valid currency is required", apperr.ErrValidation)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "missing or invalid " + strings.Join(fields, ", ")
}

// fail records the upstream failure and returns the user-facing category.
func (s *Service) fail(ctx context.Context, record *domain.Booking, cause error) error {
	log.Printf("ERROR: upstream reservation for booking %s (key %s): %v", record.ID, record.IdempotencyKey, cause)

	if upstream.MayHaveSucceeded(cause) {
		// A retry with the same key resumes this record; otherwise the stale
		// pending sweep reports it.
		log.Printf("WARNING: booking %s left pending, upstream outcome unknown", record.ID)
		return fmt.Errorf("%w: reservation outcome unknown", apperr.ErrServiceUnavailable)
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()
	reason := truncate(cause.Error(), maxReasonLength)
	if err := s.bookings.MarkFailed(markCtx, record.ID, reason); err != nil {
		log.Printf("ERROR: mark booking %s failed (reason %q): %v", record.ID, reason, err)
	}

	classified := classify(cause)
	s.publish(markCtx, kafka.ReservationEvent{
		Type:           kafka.EventReservationFailed,
		BookingID:      record.ID,
		IdempotencyKey: record.IdempotencyKey,
		ListingID:      record.ListingID,
		Status:         string(domain.BookingStatusCancelled),
		PaymentStatus:  string(domain.PaymentStatusFailed),
		Reason:         apperr.Kind(classified),
		OccurredAt:     time.Now().UTC(),
	})
	return classified
}

// classify maps an upstream failure to one of the fixed user-facing categories.
func classify(err error) error {
	ue, ok := upstream.AsError(err)
	if !ok {
		return fmt.Errorf("%w: reservation not completed", apperr.ErrServiceUnavailable)
	}

	text := strings.ToLower(ue.Code + " " + ue.Message)
	switch {
	case ue.StatusCode == http.StatusGone || strings.Contains(text, "expired"):
		return fmt.Errorf("%w: upstream %d", apperr.ErrQuoteExpired, ue.StatusCode)
	case ue.StatusCode == http.StatusPaymentRequired || strings.Contains(text, "declined") || strings.Contains(text, "payment"):
		return fmt.Errorf("%w: upstream %d", apperr.ErrPaymentDeclined, ue.StatusCode)
	case ue.StatusCode == http.StatusConflict || strings.Contains(text, "unavailable") || strings.Contains(text, "not available"):
		return fmt.Errorf("%w: upstream %d", apperr.ErrDatesUnavailable, ue.StatusCode)
	default:
		return fmt.Errorf("%w: upstream %d", apperr.ErrServiceUnavailable, ue.StatusCode)
	}
}

// buildResult prefers what upstream reported and falls back to the local record.
func buildResult(record *domain.Booking, r upstream.Reservation) *Result {
	res := &Result{
		BookingID:        record.ID,
		IdempotencyKey:   record.IdempotencyKey,
		ReservationID:    r.ReservationID,
		ConfirmationCode: r.ConfirmationCode,
		Status:           domain.BookingStatusConfirmed,
		PaymentStatus:    domain.PaymentStatusPaid,
		ListingID:        firstNonEmpty(r.ListingID, record.ListingID),
		CheckIn:          record.CheckIn,
		CheckOut:         record.CheckOut,
		Guests:           record.Guests,
		Guest:            record.Guest,
		Pricing:          record.Pricing,
	}
	if r.Status != "" {
		res.Status = domain.BookingStatus(strings.ToLower(r.Status))
	}
	if r.PaymentStatus != "" {
		res.PaymentStatus = domain.PaymentStatus(strings.ToLower(r.PaymentStatus))
	}
	if !r.CheckIn.IsZero() {
		res.CheckIn = r.CheckIn
	}
	if !r.CheckOut.IsZero() {
		res.CheckOut = r.CheckOut
	}
	if r.Pricing != nil && !r.Pricing.IsZero() {
		res.Pricing = *r.Pricing
	}
	if r.Guest != nil {
		res.Guest = domain.GuestDetails{
			FirstName: firstNonEmpty(r.Guest.FirstName, record.Guest.FirstName),
			LastName:  firstNonEmpty(r.Guest.LastName, record.Guest.LastName),
			Email:     firstNonEmpty(r.Guest.Email, record.Guest.Email),
			Phone:     firstNonEmpty(r.Guest.Phone, record.Guest.Phone),
		}
	}
	res.Nights = domain.Nights(res.CheckIn, res.CheckOut)
	return res
}

func resultFromRecord(b *domain.Booking) *Result {
	return &Result{
		BookingID:        b.ID,
		IdempotencyKey:   b.IdempotencyKey,
		ReservationID:    b.UpstreamReservationID,
		ConfirmationCode: b.ConfirmationCode,
		Status:           b.Status,
		PaymentStatus:    b.PaymentStatus,
		ListingID:        b.ListingID,
		CheckIn:          b.CheckIn,
		CheckOut:         b.CheckOut,
		Nights:           b.Nights,
		Guests:           b.Guests,
		Guest:            b.Guest,
		Pricing:          b.Pricing,
	}
}

// settle runs the post-charge side effects in the background. Each effect
// reports its own outcome; none of them can fail the join or the result.
func (s *Service) settle(ctx context.Context, record *domain.Booking, result *Result) {
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		var (
			g        errgroup.Group
			mu       sync.Mutex
			outcomes []EffectOutcome
		)
		run := func(name string, fn func(context.Context) error) {
			g.Go(func() error {
				start := time.Now()
				err := fn(effectCtx)
				if err != nil {
					s.metrics.ObserveSideEffectFailure(name)
					log.Printf("ERROR: %s for booking %s (reservation %s, code %s, key %s): %v",
						name, record.ID, result.ReservationID, result.ConfirmationCode, record.IdempotencyKey, err)
				}

				mu.Lock()
				outcomes = append(outcomes, EffectOutcome{Name: name, Err: err, DurationMS: time.Since(start).Milliseconds()})
				mu.Unlock()
				return nil
			})
		}

		run("persist_confirmation", func(ctx context.Context) error {
			return s.bookings.MarkConfirmed(ctx, record.ID, domain.Confirmation{
				UpstreamReservationID: result.ReservationID,
				ConfirmationCode:      result.ConfirmationCode,
				Status:                result.Status,
				PaymentStatus:         result.PaymentStatus,
				Pricing:               result.Pricing,
			})
		})
		if s.notifier != nil {
			run("send_confirmation", func(ctx context.Context) error {
				return s.notifier.SendConfirmation(ctx, confirmationPayload(result))
			})
		}
		_ = g.Wait()

		s.publish(effectCtx, kafka.ReservationEvent{
			Type:                  kafka.EventReservationConfirmed,
			BookingID:             record.ID,
			IdempotencyKey:        record.IdempotencyKey,
			ListingID:             result.ListingID,
			UpstreamReservationID: result.ReservationID,
			ConfirmationCode:      result.ConfirmationCode,
			Status:                string(result.Status),
			PaymentStatus:         string(result.PaymentStatus),
			OccurredAt:            time.Now().UTC(),
		})

		if s.onSettled != nil {
			s.onSettled(record.ID, outcomes)
		}
	}()
}

func confirmationPayload(r *Result) kafka.ConfirmationPayload {
	return kafka.ConfirmationPayload{
		BookingID:        r.BookingID,
		ReservationID:    r.ReservationID,
		ConfirmationCode: r.ConfirmationCode,
		ListingID:        r.ListingID,
		FirstName:        r.Guest.FirstName,
		LastName:         r.Guest.LastName,
		Email:            r.Guest.Email,
		Phone:            r.Guest.Phone,
		CheckIn:          r.CheckIn.Format(domain.DateLayout),
		CheckOut:         r.CheckOut.Format(domain.DateLayout),
		Nights:           r.Nights,
		Adults:           r.Guests.Adults,
		Children:         r.Guests.Children,
		Total:            domain.FromMinorUnits(r.Pricing.TotalCents),
		Currency:         r.Pricing.Currency,
		PaymentStatus:    string(r.PaymentStatus),
	}
}

func (s *Service) publish(ctx context.Context, event kafka.ReservationEvent) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, event.BookingID, event); err != nil {
		log.Printf("WARNING: publish %s for booking %s: %v", event.Type, event.BookingID, err)
	}
}

func (s *Service) releaseLock(ctx context.Context, key, holder string) {
	if err := s.locker.ReleaseReservationLock(context.WithoutCancel(ctx), key, holder); err != nil {
		log.Printf("WARNING: release reservation lock %s: %v", key, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ ReservationUseCase = (*Service)(nil)
