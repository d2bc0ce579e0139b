// Package control serializes session lifecycle requests through a bounded
// queue processed by a single worker, so creation and the registry's
// capacity check are linearized even under concurrent callers.
package control

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"termhub/internal/session"
)

var (
	// ErrBackpressure means the request queue is full; the caller should
	// retry or surface the failure.
	ErrBackpressure = errors.New("control queue full")

	// ErrInternal is the catch-all for dispatcher-internal faults. The
	// waiting caller always receives it rather than a silent drop.
	ErrInternal = errors.New("internal control error")

	// ErrStopped means the dispatcher is shutting down.
	ErrStopped = errors.New("dispatcher stopped")
)

// request is the closed set of control-plane operations.
type request interface{ isRequest() }

type createRequest struct {
	cfg  session.Config
	resp chan createResponse
}

type createResponse struct {
	info session.Info
	err  error
}

type listRequest struct {
	resp chan listResponse
}

type listResponse struct {
	infos []session.Info
	err   error
}

type closeRequest struct {
	id   string
	resp chan error
}

func (createRequest) isRequest() {}
func (listRequest) isRequest()   {}
func (closeRequest) isRequest()  {}

// Dispatcher owns the single-writer control queue in front of the registry.
type Dispatcher struct {
	registry *session.Registry
	queue    chan request
	done     chan struct{}
	stopped  chan struct{}

	// closeMu orders submissions against Stop: every enqueue completes
	// while holding the read lock, and Stop flips closed under the write
	// lock before signalling the worker, so a request accepted by submit
	// is always still visible to the worker's drain.
	closeMu sync.RWMutex
	closed  bool
}

// NewDispatcher creates a dispatcher with the given queue depth and starts
// its worker.
func NewDispatcher(registry *session.Registry, depth int) *Dispatcher {
	if depth <= 0 {
		depth = 64
	}
	d := &Dispatcher{
		registry: registry,
		queue:    make(chan request, depth),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case req := <-d.queue:
			d.handle(req)
		case <-d.done:
			// Drain anything that was queued before Stop so every
			// caller gets its response.
			for {
				select {
				case req := <-d.queue:
					d.handle(req)
				default:
					return
				}
			}
		}
	}
}

// handle processes one request and guarantees exactly one response, even
// when the registry faults.
func (d *Dispatcher) handle(req request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("control: recovered from panic: %v", rec)
			switch r := req.(type) {
			case createRequest:
				r.resp <- createResponse{err: fmt.Errorf("%w: %v", ErrInternal, rec)}
			case listRequest:
				r.resp <- listResponse{err: fmt.Errorf("%w: %v", ErrInternal, rec)}
			case closeRequest:
				r.resp <- fmt.Errorf("%w: %v", ErrInternal, rec)
			}
		}
	}()

	switch r := req.(type) {
	case createRequest:
		info, err := d.registry.Create(r.cfg)
		r.resp <- createResponse{info: info, err: err}
	case listRequest:
		r.resp <- listResponse{infos: d.registry.List()}
	case closeRequest:
		r.resp <- d.registry.Close(r.id)
	default:
		panic(fmt.Sprintf("control: unknown request type %T", req))
	}
}

func (d *Dispatcher) submit(req request) error {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		return ErrStopped
	}
	select {
	case d.queue <- req:
		return nil
	default:
		return ErrBackpressure
	}
}

// CreateSession submits a creation request and waits for its response.
func (d *Dispatcher) CreateSession(cfg session.Config) (session.Info, error) {
	req := createRequest{cfg: cfg, resp: make(chan createResponse, 1)}
	if err := d.submit(req); err != nil {
		return session.Info{}, err
	}
	r := <-req.resp
	return r.info, r.err
}

// ListSessions returns a snapshot of running sessions via the queue.
func (d *Dispatcher) ListSessions() ([]session.Info, error) {
	req := listRequest{resp: make(chan listResponse, 1)}
	if err := d.submit(req); err != nil {
		return nil, err
	}
	r := <-req.resp
	return r.infos, r.err
}

// CloseSession submits a close request and waits for its response.
func (d *Dispatcher) CloseSession(id string) error {
	req := closeRequest{id: id, resp: make(chan error, 1)}
	if err := d.submit(req); err != nil {
		return err
	}
	return <-req.resp
}

// Stop shuts the worker down after draining queued requests. Submissions
// that were accepted before Stop always receive a response; later ones
// fail with ErrStopped. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	d.closeMu.Unlock()

	close(d.done)
	<-d.stopped
}
