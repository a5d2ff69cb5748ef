package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBatchWindow is how long calls are collected before a batch is sent.
const DefaultBatchWindow = 10 * time.Millisecond

// Sender delivers one batch and returns the responses it got back.
type Sender interface {
	Send(ctx context.Context, batch []Request) ([]Response, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, batch []Request) ([]Response, error)

func (f SenderFunc) Send(ctx context.Context, batch []Request) ([]Response, error) {
	return f(ctx, batch)
}

// Caller issues a single call and waits for its raw result.
type Caller interface {
	Call(ctx context.Context, method string, params any) (any, error)
}

// Option configures a Transport.
type Option func(*Transport)

// WithBatchWindow sets the collection window.
func WithBatchWindow(d time.Duration) Option {
	return func(t *Transport) { t.window = d }
}

// WithInterceptor appends an interceptor.
func WithInterceptor(i Interceptor) Option {
	return func(t *Transport) { t.interceptors = append(t.interceptors, i) }
}

// WithRequestHook appends a hook called with every outgoing batch.
func WithRequestHook(h RequestHook) Option {
	return func(t *Transport) { t.hooks = append(t.hooks, h) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithMetrics records batch and call metrics.
func WithMetrics(m *Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithSendTimeout bounds every batch round trip.
func WithSendTimeout(d time.Duration) Option {
	return func(t *Transport) { t.sendTimeout = d }
}

// Transport batches calls issued within a short window into one request and
// routes every response back to its transaction.
type Transport struct {
	sender       Sender
	window       time.Duration
	sendTimeout  time.Duration
	interceptors []Interceptor
	hooks        []RequestHook
	logger       zerolog.Logger
	metrics      *Metrics

	mu     sync.Mutex
	nextID uint64
	open   map[uint64]*Transaction
	queue  []*Transaction
	timer  *time.Timer
	gen    uint64 // incremented whenever a window is flushed
	wg     sync.WaitGroup
}

// NewTransport creates a transport on top of sender.
func NewTransport(sender Sender, opts ...Option) *Transport {
	t := &Transport{
		sender: sender,
		window: DefaultBatchWindow,
		logger: zerolog.Nop(),
		open:   make(map[uint64]*Transaction),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start registers a call and queues it for the current batch. The call is
// cancelled right away when ctx is already done.
func (t *Transport) Start(ctx context.Context, method string, params any, meta map[string]any) *Transaction {
	t.mu.Lock()
	t.nextID++
	tx := newTransaction(t, t.nextID, method, params, meta)
	t.open[tx.ID] = tx
	t.mu.Unlock()

	if ctx.Err() != nil {
		tx.Cancel()
		return tx
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !tx.advance(StateQueued) {
		return tx
	}
	t.queue = append(t.queue, tx)
	if t.timer == nil {
		gen := t.gen
		t.timer = time.AfterFunc(t.window, func() { t.flush(gen, true) })
	}
	return tx
}

// Call implements Caller.
func (t *Transport) Call(ctx context.Context, method string, params any) (any, error) {
	return t.Start(ctx, method, params, nil).Wait(ctx)
}

// Flush sends the queued calls now instead of at the end of the window.
func (t *Transport) Flush() {
	t.flush(0, false)
}

// flush sends the current window. A timer tick only flushes the window it
// was armed for.
func (t *Transport) flush(gen uint64, tick bool) {
	t.mu.Lock()
	if tick && gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	batch := t.queue
	t.queue = nil
	for _, tx := range batch {
		tx.advance(StateSent)
	}
	if len(batch) > 0 {
		t.wg.Add(1)
	}
	t.mu.Unlock()

	if len(batch) > 0 {
		go t.send(batch)
	}
}

// Close sends what is queued and waits for every batch in flight.
func (t *Transport) Close() {
	t.Flush()
	t.wg.Wait()
}

// Open returns how many transactions are awaiting a result.
func (t *Transport) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

func (t *Transport) chain(ctx context.Context, tx *Transaction) (any, error) {
	h := Handler(wait)
	for _, i := range t.interceptors {
		h = i(h)
	}
	return h(ctx, tx)
}

func (t *Transport) cancel(tx *Transaction) {
	t.mu.Lock()
	delete(t.open, tx.ID)
	for i, q := range t.queue {
		if q == tx {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if tx.finish(StateCancelled, nil, ErrCancelled) && t.metrics != nil {
		t.metrics.observeCall(tx.Method, "cancelled")
	}
}

// release removes tx from the open table. It fails for transactions that
// were cancelled meanwhile.
func (t *Transport) release(tx *Transaction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.open[tx.ID]; !ok {
		return false
	}
	delete(t.open, tx.ID)
	return true
}

func (t *Transport) complete(tx *Transaction, result any, err error) {
	if !t.release(tx) {
		return
	}
	if tx.finish(StateCompleted, result, err) && t.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		t.metrics.observeCall(tx.Method, outcome)
	}
}

func (t *Transport) send(batch []*Transaction) {
	defer t.wg.Done()

	for _, h := range t.hooks {
		h(batch)
	}

	reqs := make([]Request, len(batch))
	byID := make(map[uint64]*Transaction, len(batch))
	for i, tx := range batch {
		reqs[i] = Request{ID: tx.ID, Method: tx.Method, Params: tx.Params, Meta: tx.Meta}
		byID[tx.ID] = tx
	}

	ctx := context.Background()
	if t.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	resps, err := t.sender.Send(ctx, reqs)
	if t.metrics != nil {
		t.metrics.observeBatch(len(batch), time.Since(start), err)
	}
	if err != nil {
		t.logger.Warn().Err(err).Int("size", len(batch)).Msg("rpc batch failed")
		rerr := &Error{Code: TransportError, Message: err.Error()}
		for _, tx := range batch {
			t.complete(tx, nil, rerr)
		}
		return
	}

	t.demux(byID, resps)
}

// demux routes responses to the transactions of one batch. A response
// without an id or with an id this batch never carried is a protocol error
// that fails every call of the batch still waiting.
func (t *Transport) demux(byID map[uint64]*Transaction, resps []Response) {
	var protoErr *Error
	answered := make(map[uint64]bool, len(resps))

	for _, r := range resps {
		if r.ID == nil {
			protoErr = NewError(TransportError, "missing transaction id")
			break
		}
		tx, ok := byID[*r.ID]
		if !ok {
			protoErr = NewError(SystemError, "transaction not found for %d", *r.ID)
			break
		}
		answered[tx.ID] = true
		if r.Error != nil {
			t.complete(tx, nil, r.Error)
		} else {
			t.complete(tx, r.Value(), nil)
		}
	}

	for id, tx := range byID {
		if answered[id] {
			continue
		}
		err := protoErr
		if err == nil {
			err = NewError(TransportError, "no response for transaction %d", id)
		}
		t.complete(tx, nil, err)
	}

	if protoErr != nil {
		t.logger.Error().Err(protoErr).Int("code", protoErr.Code).Msg("rpc protocol error")
	}
}

// Call issues method through c and decodes the result.
func Call[T any](ctx context.Context, c Caller, method string, params any, decode func(any) (T, error)) (T, error) {
	var zero T
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return zero, err
	}
	v, err := decode(raw)
	if err != nil {
		return zero, &Error{Code: ParserErrorMalformed, Message: method + ": " + err.Error()}
	}
	return v, nil
}
