package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type deliveries struct {
	mu   sync.Mutex
	reqs []SearchRequest
}

func (d *deliveries) deliver(req SearchRequest, _ domain.Availability, _ error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
}

func (d *deliveries) get() []SearchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SearchRequest(nil), d.reqs...)
}

func searchFor(days int) SearchRequest {
	return SearchRequest{ListingID: "cabin-1", CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, days), Guests: 2}
}

func TestProbe_DebounceCoalesces(t *testing.T) {
	var calls atomic.Int32
	search := func(ctx context.Context, req SearchRequest) (domain.Availability, error) {
		calls.Add(1)
		return domain.Availability{Available: true}, nil
	}
	var got deliveries
	p := NewProbe(search, got.deliver, WithDebounce(20*time.Millisecond))
	defer p.Close()

	p.Schedule(searchFor(1))
	p.Schedule(searchFor(2))
	p.Schedule(searchFor(3))

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
	reqs := got.get()
	require.Len(t, reqs, 1)
	assert.Equal(t, searchFor(3), reqs[0])
}

func TestProbe_SupersededLookupIsDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	firstDone := make(chan error, 1)
	search := func(ctx context.Context, req SearchRequest) (domain.Availability, error) {
		if req == searchFor(1) {
			close(firstStarted)
			<-ctx.Done()
			firstDone <- ctx.Err()
			return domain.Availability{Available: false}, nil
		}
		return domain.Availability{Available: true}, nil
	}
	var got deliveries
	p := NewProbe(search, got.deliver, WithDebounce(time.Millisecond))
	defer p.Close()

	p.Schedule(searchFor(1))
	<-firstStarted
	p.Schedule(searchFor(2))

	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("superseded lookup was not canceled")
	}

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	reqs := got.get()
	require.Len(t, reqs, 1)
	assert.Equal(t, searchFor(2), reqs[0])
}

func TestProbe_Close(t *testing.T) {
	var calls atomic.Int32
	search := func(ctx context.Context, req SearchRequest) (domain.Availability, error) {
		calls.Add(1)
		return domain.Availability{}, nil
	}
	var got deliveries
	p := NewProbe(search, got.deliver, WithDebounce(30*time.Millisecond))

	p.Schedule(searchFor(1))
	p.Close()
	p.Schedule(searchFor(2))

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Empty(t, got.get())
}

func TestProbe_CloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	search := func(ctx context.Context, req SearchRequest) (domain.Availability, error) {
		close(started)
		<-ctx.Done()
		return domain.Availability{}, ctx.Err()
	}
	var got deliveries
	p := NewProbe(search, got.deliver, WithDebounce(time.Millisecond))

	p.Schedule(searchFor(1))
	<-started
	p.Close()

	assert.Empty(t, got.get())
}

func TestNewMachineProbe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.SelectDates(checkIn, checkOut))

	req := f.m.SearchRequest()
	f.backend.On("Search", mock.Anything, req).Return(domain.Availability{Available: true, MinimumStay: 2}, nil).Once()

	p := NewMachineProbe(f.m, f.backend, WithDebounce(time.Millisecond))
	defer p.Close()
	p.Schedule(req)

	require.Eventually(t, func() bool { return f.m.State().Availability != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, f.m.State().Availability.MinimumStay)
	f.backend.AssertExpectations(t)
}
