package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
)

const DefaultDebounce = 500 * time.Millisecond

// SearchFunc runs one availability lookup.
type SearchFunc func(ctx context.Context, req SearchRequest) (domain.Availability, error)

// DeliverFunc receives the result of the latest probe only. It runs with the
// probe locked and must not call Schedule.
type DeliverFunc func(req SearchRequest, a domain.Availability, err error)

// Probe debounces availability lookups for the selected dates. A new Schedule
// cancels the pending or in-flight lookup, and a superseded lookup's result is
// dropped even if it completes.
type Probe struct {
	search   SearchFunc
	deliver  DeliverFunc
	debounce time.Duration

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

type ProbeOption func(*Probe)

func WithDebounce(d time.Duration) ProbeOption {
	return func(p *Probe) {
		if d >= 0 {
			p.debounce = d
		}
	}
}

func NewProbe(search SearchFunc, deliver DeliverFunc, opts ...ProbeOption) *Probe {
	p := &Probe{search: search, deliver: deliver, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewMachineProbe feeds the machine's availability from backend.
func NewMachineProbe(m *Machine, backend Backend, opts ...ProbeOption) *Probe {
	return NewProbe(backend.Search, func(req SearchRequest, a domain.Availability, err error) {
		m.DeliverAvailability(req, a, err)
	}, opts...)
}

// Schedule supersedes whatever probe is pending and starts the debounce window again.
func (p *Probe) Schedule(req SearchRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.gen++
	p.stopLocked()

	gen := p.gen
	p.timer = time.AfterFunc(p.debounce, func() { p.fire(gen, req) })
}

// Close stops the pending probe, cancels an in-flight one and waits for it to return.
func (p *Probe) Close() {
	p.mu.Lock()
	p.closed = true
	p.gen++
	p.stopLocked()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Probe) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Probe) fire(gen uint64, req SearchRequest) {
	p.mu.Lock()
	if gen != p.gen || p.closed {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	defer cancel()

	a, err := p.search(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.closed {
		return
	}
	p.cancel = nil
	p.deliver(req, a, err)
}
