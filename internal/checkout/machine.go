package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrWrongStep  = errors.New("checkout: action not allowed at this step")
	ErrNoQuote    = errors.New("checkout: no quote held")
	ErrSuperseded = errors.New("checkout: state changed while the request was in flight")
)

var phonePattern = regexp.MustCompile(`^[0-9 ()+\-]{10,}$`)

type detailsForm struct {
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"required,max=100"`
	Email     string `validate:"required,email"`
	Phone     string `validate:"required"`
}

// Machine is the checkout state machine. Transitions are serialised; network
// calls run without the lock held and are discarded if the state moved on.
type Machine struct {
	mu       sync.Mutex
	backend  Backend
	store    SessionStore
	now      func() time.Time
	newKey   func() string
	validate *validator.Validate

	state State
	rev   uint64
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func WithKeyGenerator(newKey func() string) Option {
	return func(m *Machine) {
		if newKey != nil {
			m.newKey = newKey
		}
	}
}

// New builds a machine and restores a stored session if it still holds a
// live quote. A stale snapshot is deleted.
func New(backend Backend, store SessionStore, opts ...Option) *Machine {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Machine{
		backend:  backend,
		store:    store,
		now:      time.Now,
		newKey:   uuid.NewString,
		validate: validator.New(),
		state:    State{Step: StepDates},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.restore()
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Step
}

// Start opens checkout for a cabin. A restored session for the same cabin is kept.
func (m *Machine) Start(listingID string, capacity int) error {
	if listingID == "" || capacity < 1 {
		return fmt.Errorf("%w: listing and capacity are required", apperr.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ListingID == listingID && m.state.Step != StepConfirmation {
		m.state.Capacity = capacity
		return nil
	}
	m.state = State{ListingID: listingID, Capacity: capacity, Step: StepDates}
	m.changed()
	return nil
}

// SelectDates records the stay. Any availability or quote for other dates is dropped.
func (m *Machine) SelectDates(checkIn, checkOut time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != StepDates {
		return ErrWrongStep
	}
	checkIn, checkOut = domain.TruncateDay(checkIn), domain.TruncateDay(checkOut)
	if err := m.checkDates(checkIn, checkOut); err != nil {
		return err
	}

	m.state.CheckIn = checkIn
	m.state.CheckOut = checkOut
	m.state.Availability = nil
	m.dropQuote()
	m.state.Error = ""
	m.changed()
	return nil
}

// SearchRequest describes the availability lookup for the current selection.
func (m *Machine) SearchRequest() SearchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SearchRequest{
		ListingID: m.state.ListingID,
		CheckIn:   m.state.CheckIn,
		CheckOut:  m.state.CheckOut,
		Guests:    m.state.Guests.Total(),
	}
}

// DeliverAvailability applies a probe result. Results for dates that are no
// longer selected are ignored and false is returned.
func (m *Machine) DeliverAvailability(req SearchRequest, a domain.Availability, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.ListingID != m.state.ListingID || !req.CheckIn.Equal(m.state.CheckIn) || !req.CheckOut.Equal(m.state.CheckOut) {
		return false
	}
	if err != nil {
		m.state.Error = apperr.Message(err)
		return true
	}
	m.state.Availability = &a
	m.state.Error = ""
	m.changed()
	return true
}

func (m *Machine) GoToGuests() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != StepDates {
		return ErrWrongStep
	}
	if err := m.checkDates(m.state.CheckIn, m.state.CheckOut); err != nil {
		return err
	}
	if a := m.state.Availability; a != nil {
		nights := m.state.Nights()
		switch {
		case !a.Available || a.Blocks(m.state.CheckIn, m.state.CheckOut):
			return fmt.Errorf("%w: selected nights are not available", apperr.ErrDatesUnavailable)
		case a.MinimumStay > 0 && nights < a.MinimumStay:
			return fmt.Errorf("%w: minimum stay is %d nights", apperr.ErrValidation, a.MinimumStay)
		case a.MaximumStay > 0 && nights > a.MaximumStay:
			return fmt.Errorf("%w: maximum stay is %d nights", apperr.ErrValidation, a.MaximumStay)
		}
	}

	m.setStep(StepGuests)
	return nil
}

// SetGuests changes the party. A quote for a different party is dropped.
func (m *Machine) SetGuests(adults, children int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != StepGuests && m.state.Step != StepQuote {
		return ErrWrongStep
	}
	if adults < 0 || children < 0 {
		return fmt.Errorf("%w: guest counts must not be negative", apperr.ErrValidation)
	}

	guests := domain.Guests{Adults: adults, Children: children}
	if guests != m.state.Guests {
		m.state.Guests = guests
		m.dropQuote()
		m.state.Step = StepGuests
	}
	m.changed()
	return nil
}

// RequestQuote prices the current selection. From the quote step it refreshes
// the held quote. Every new quote gets a fresh idempotency key.
func (m *Machine) RequestQuote(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Step != StepGuests && m.state.Step != StepQuote {
		m.mu.Unlock()
		return ErrWrongStep
	}
	g := m.state.Guests
	if g.Adults < 1 {
		m.mu.Unlock()
		return fmt.Errorf("%w: at least one adult is required", apperr.ErrValidation)
	}
	if m.state.Capacity > 0 && g.Total() > m.state.Capacity {
		m.mu.Unlock()
		return fmt.Errorf("%w: this cabin sleeps at most %d guests", apperr.ErrValidation, m.state.Capacity)
	}
	req := QuoteRequest{
		ListingID: m.state.ListingID,
		CheckIn:   m.state.CheckIn,
		CheckOut:  m.state.CheckOut,
		Guests:    g,
	}
	rev := m.rev
	m.state.Loading = true
	m.mu.Unlock()

	quote, err := m.backend.Quote(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Loading = false
	if m.rev != rev {
		return ErrSuperseded
	}
	if err != nil {
		m.state.Error = apperr.Message(err)
		return err
	}

	m.state.Quote = &quote
	m.state.IdempotencyKey = m.newKey()
	m.state.Error = ""
	m.setStep(StepQuote)
	return nil
}

// QuoteExpired is computed against the clock on every call.
func (m *Machine) QuoteExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Quote.ExpiredAt(m.now())
}

// QuoteTimeRemaining is for countdown display only; it never changes state.
func (m *Machine) QuoteTimeRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Quote == nil {
		return 0
	}
	if d := m.state.Quote.ExpiresAt.Sub(m.now()); d > 0 {
		return d
	}
	return 0
}

func (m *Machine) ProceedToDetails() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != StepQuote {
		return ErrWrongStep
	}
	if err := m.checkQuote(); err != nil {
		return err
	}
	m.setStep(StepDetails)
	return nil
}

func (m *Machine) SubmitDetails(details domain.GuestDetails) error {
	details = domain.GuestDetails{
		FirstName: strings.TrimSpace(details.FirstName),
		LastName:  strings.TrimSpace(details.LastName),
		Email:     strings.TrimSpace(details.Email),
		Phone:     strings.TrimSpace(details.Phone),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != StepDetails {
		return ErrWrongStep
	}
	if err := m.validate.Struct(detailsForm(details)); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is missing or invalid", apperr.ErrValidation, strings.ToLower(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if !phonePattern.MatchString(details.Phone) {
		return fmt.Errorf("%w: phone must have at least 10 digits", apperr.ErrValidation)
	}

	m.state.Details = details
	m.setStep(StepPayment)
	return nil
}

// ConfirmPayment submits the reservation with the idempotency key of the held
// quote, so a retry after a failure can never charge twice. On success the
// machine ends in the confirmation step whatever happened meanwhile.
func (m *Machine) ConfirmPayment(ctx context.Context, paymentMethodToken string) (*Reservation, error) {
	m.mu.Lock()
	if m.state.Step != StepPayment {
		m.mu.Unlock()
		return nil, ErrWrongStep
	}
	if paymentMethodToken == "" {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: payment method is required", apperr.ErrValidation)
	}
	if err := m.checkQuote(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	req := ReserveRequest{
		IdempotencyKey:     m.state.IdempotencyKey,
		ListingID:          m.state.ListingID,
		QuoteID:            m.state.Quote.QuoteID,
		CheckIn:            m.state.CheckIn,
		CheckOut:           m.state.CheckOut,
		Guests:             m.state.Guests,
		Guest:              m.state.Details,
		Pricing:            m.state.Quote.Pricing,
		PaymentMethodToken: paymentMethodToken,
	}
	rev := m.rev
	m.state.Loading = true
	m.mu.Unlock()

	reservation, err := m.backend.Reserve(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Loading = false
	if err != nil {
		if m.rev == rev {
			m.state.Error = apperr.Message(err)
		}
		return nil, err
	}

	m.state = State{
		ListingID:   m.state.ListingID,
		Capacity:    m.state.Capacity,
		CheckIn:     req.CheckIn,
		CheckOut:    req.CheckOut,
		Guests:      req.Guests,
		Details:     req.Guest,
		Reservation: &reservation,
		Step:        StepConfirmation,
	}
	m.changed()
	out := reservation
	return &out, nil
}

// Back moves to an earlier step. Nothing leaves the confirmation step.
func (m *Machine) Back(to Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step == StepConfirmation || to < StepDates || to >= m.state.Step {
		return ErrWrongStep
	}
	m.setStep(to)
	return nil
}

// Cancel abandons the session, including from the confirmation step.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{ListingID: m.state.ListingID, Capacity: m.state.Capacity, Step: StepDates}
	m.changed()
}

func (m *Machine) checkDates(checkIn, checkOut time.Time) error {
	if checkIn.IsZero() || checkOut.IsZero() {
		return fmt.Errorf("%w: select check-in and check-out dates", apperr.ErrValidation)
	}
	if !checkOut.After(checkIn) {
		return fmt.Errorf("%w: check-out must be after check-in", apperr.ErrValidation)
	}
	if domain.TruncateDay(checkIn).Before(domain.TruncateDay(m.now())) {
		return fmt.Errorf("%w: check-in is in the past", apperr.ErrValidation)
	}
	return nil
}

func (m *Machine) checkQuote() error {
	if m.state.Quote == nil {
		return ErrNoQuote
	}
	if m.state.Quote.ExpiredAt(m.now()) {
		return fmt.Errorf("%w: refresh the quote to continue", apperr.ErrQuoteExpired)
	}
	return nil
}

func (m *Machine) dropQuote() {
	m.state.Quote = nil
	m.state.IdempotencyKey = ""
}

func (m *Machine) setStep(s Step) {
	m.state.Step = clampStep(s)
	m.changed()
}

// changed must be called with mu held after every state mutation.
func (m *Machine) changed() {
	m.rev++
	m.persist()
}

// persist keeps a snapshot only while a quote is held.
func (m *Machine) persist() {
	if m.state.Quote == nil {
		if err := m.store.Delete(StorageKey); err != nil {
			log.Printf("WARNING: delete checkout session: %v", err)
		}
		return
	}
	data, err := json.Marshal(m.state)
	if err != nil {
		log.Printf("WARNING: encode checkout session: %v", err)
		return
	}
	if err := m.store.Save(StorageKey, data); err != nil {
		log.Printf("WARNING: save checkout session: %v", err)
	}
}

func (m *Machine) restore() {
	data, ok, err := m.store.Load(StorageKey)
	if err != nil {
		log.Printf("WARNING: load checkout session: %v", err)
		return
	}
	if !ok {
		return
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil || st.Quote.ExpiredAt(m.now()) || st.Step == StepConfirmation {
		if err := m.store.Delete(StorageKey); err != nil {
			log.Printf("WARNING: delete checkout session: %v", err)
		}
		return
	}
	st.Step = clampStep(st.Step)
	m.state = st
}
