package server

import (
	"errors"
	"sync"

	"github.com/realtime-ai/vadseg/pkg/vad"
)

// ErrTooManyStreams is returned when every prober is in use.
var ErrTooManyStreams = errors.New("server: too many concurrent streams")

// proberPool lends out at most size probers, creating them on demand and
// keeping them for reuse.
type proberPool struct {
	factory vad.Factory
	slots   chan struct{}

	mu     sync.Mutex
	idle   []vad.Prober
	closed bool
}

func newProberPool(factory vad.Factory, size int) *proberPool {
	return &proberPool{
		factory: factory,
		slots:   make(chan struct{}, max(size, 1)),
	}
}

// get returns a prober or ErrTooManyStreams without waiting.
func (p *proberPool) get() (vad.Prober, error) {
	select {
	case p.slots <- struct{}{}:
	default:
		return nil, ErrTooManyStreams
	}

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		pr := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return pr, nil
	}
	p.mu.Unlock()

	pr, err := p.factory()
	if err != nil {
		<-p.slots
		return nil, err
	}
	return pr, nil
}

// put returns pr to the pool. A prober that failed is destroyed instead.
func (p *proberPool) put(pr vad.Prober, broken bool) {
	defer func() { <-p.slots }()

	p.mu.Lock()
	defer p.mu.Unlock()
	if broken || p.closed {
		pr.Destroy()
		return
	}
	p.idle = append(p.idle, pr)
}

// active returns the number of probers lent out.
func (p *proberPool) active() int {
	return len(p.slots)
}

// close destroys idle probers; probers still lent out are destroyed when
// they come back.
func (p *proberPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var errs []error
	for _, pr := range p.idle {
		errs = append(errs, pr.Destroy())
	}
	p.idle = nil
	return errors.Join(errs...)
}
