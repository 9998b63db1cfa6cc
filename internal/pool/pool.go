package pool

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/w2vasia/gps-track/internal/gpx"
	"github.com/w2vasia/gps-track/internal/track"
)

// ErrPoolTerminated rejects every submission still pending when Shutdown is
// called, and every submission made afterwards.
var ErrPoolTerminated = errors.New("pool: terminated")

// Request and Response are the only things that cross the worker boundary,
// as JSON bytes. Workers share no state with the submitter or each other.
type Request struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Format string `json:"format"`
}

type Response struct {
	ID     string                `json:"id"`
	Result *track.TransportTrack `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type outcome struct {
	track track.Track
	err   error
}

// Pending is the caller's handle for one submission. It resolves exactly
// once: with the parsed track, a parse error, or ErrPoolTerminated.
type Pending struct {
	ch chan outcome
}

// Await blocks until the submission resolves.
func (p *Pending) Await() (track.Track, error) {
	o := <-p.ch
	return o.track, o.err
}

// Pool runs the fallback parser across a fixed set of workers. Requests are
// assigned round-robin; responses are matched to their submission solely by
// correlation identifier, never by arrival order.
type Pool struct {
	logger    *zap.Logger
	size      int
	inboxes   []chan []byte
	responses chan []byte
	done      chan struct{}

	mu       sync.Mutex
	pending  map[string]*Pending
	closed   bool
	requests uint64

	workers sync.WaitGroup
}

// New starts size persistent workers; size <= 0 means one per host core.
func New(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		logger:    logger,
		size:      size,
		inboxes:   make([]chan []byte, size),
		responses: make(chan []byte, size),
		done:      make(chan struct{}),
		pending:   make(map[string]*Pending),
	}
	for i := 0; i < size; i++ {
		p.inboxes[i] = make(chan []byte, 1)
		p.workers.Add(1)
		go p.worker(p.inboxes[i])
	}
	go p.dispatch()

	logger.Info("parser pool started", zap.Int("size", size))
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues one document for parsing and returns immediately. The
// returned handle never hangs: it resolves with a result, a parse error, or
// ErrPoolTerminated.
func (p *Pool) Submit(text string) *Pending {
	pending := &Pending{ch: make(chan outcome, 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pending.ch <- outcome{err: ErrPoolTerminated}
		return pending
	}
	id := strconv.FormatUint(p.requests, 10)
	worker := p.requests % uint64(p.size)
	p.requests++
	p.pending[id] = pending
	p.mu.Unlock()

	raw, err := json.Marshal(Request{ID: id, Text: text, Format: "gpx"})
	if err != nil {
		p.resolve(id, outcome{err: fmt.Errorf("pool: encode request: %w", err)})
		return pending
	}

	// The send happens off the caller's goroutine so a busy worker never
	// turns Submit into a blocking call.
	go func() {
		select {
		case p.inboxes[worker] <- raw:
		case <-p.done:
			p.resolve(id, outcome{err: ErrPoolTerminated})
		}
	}()
	return pending
}

// Shutdown terminates the workers and rejects every still-pending handle.
// Safe to call more than once and with nothing outstanding.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.workers.Wait()

	p.mu.Lock()
	stranded := p.pending
	p.pending = make(map[string]*Pending)
	p.mu.Unlock()

	for _, pending := range stranded {
		pending.ch <- outcome{err: ErrPoolTerminated}
	}
	p.logger.Info("parser pool stopped", zap.Int("rejected", len(stranded)))
}

func (p *Pool) worker(inbox <-chan []byte) {
	defer p.workers.Done()
	for {
		select {
		case raw := <-inbox:
			resp := handle(raw)
			out, err := json.Marshal(resp)
			if err != nil {
				out, _ = json.Marshal(Response{ID: resp.ID, Error: err.Error()})
			}
			select {
			case p.responses <- out:
			case <-p.done:
				return
			}
		case <-p.done:
			return
		}
	}
}

// handle is the whole life of one request inside a worker: decode the
// envelope, run the fallback parser, serialize the model for transport.
func handle(raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Response{Error: fmt.Sprintf("decode request: %v", err)}
	}
	if req.Format != "gpx" {
		return Response{ID: req.ID, Error: fmt.Sprintf("unsupported format %q", req.Format)}
	}
	t, err := gpx.FallbackParse(req.Text)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	tt := track.Serialize(t)
	return Response{ID: req.ID, Result: &tt}
}

func (p *Pool) dispatch() {
	for {
		select {
		case raw := <-p.responses:
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				p.logger.Warn("undecodable worker response", zap.Error(err))
				continue
			}
			p.resolve(resp.ID, outcomeOf(resp))
		case <-p.done:
			return
		}
	}
}

func outcomeOf(resp Response) outcome {
	if resp.Error != "" {
		// A parse failure inside the worker keeps its identity across the
		// boundary; anything else is a unit failure the caller may retry
		// in-process.
		if rest, ok := strings.CutPrefix(resp.Error, gpx.ErrMalformedDocument.Error()); ok {
			return outcome{err: fmt.Errorf("%w%s", gpx.ErrMalformedDocument, rest)}
		}
		return outcome{err: fmt.Errorf("pool: unit failure: %s", resp.Error)}
	}
	if resp.Result == nil {
		return outcome{err: errors.New("pool: response carries no result")}
	}
	t, err := track.Deserialize(*resp.Result)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{track: t}
}

// resolve completes the pending handle for id, if any. A response whose id
// is unknown is discarded: that is the expected race during teardown, not
// an error.
func (p *Pool) resolve(id string, o outcome) {
	p.mu.Lock()
	pending, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()

	if ok {
		pending.ch <- o
	}
}
