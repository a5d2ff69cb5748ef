package rpc

import (
	"context"
	"errors"
	"sync"
)

// State is the lifecycle position of a transaction.
type State int32

const (
	StatePending State = iota
	StateQueued
	StateSent
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateQueued:
		return "queued"
	case StateSent:
		return "sent"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// ErrCancelled is the result of a transaction the caller detached from.
var ErrCancelled = errors.New("rpc: transaction cancelled")

// Transaction is one call travelling through a Transport.
type Transaction struct {
	ID     uint64
	Method string
	Params any
	Meta   map[string]any

	t *Transport

	mu     sync.Mutex
	state  State
	done   chan struct{}
	result any
	err    error
}

func newTransaction(t *Transport, id uint64, method string, params any, meta map[string]any) *Transaction {
	return &Transaction{
		ID:     id,
		Method: method,
		Params: params,
		Meta:   meta,
		t:      t,
		state:  StatePending,
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Done is closed once the transaction is completed or cancelled.
func (tx *Transaction) Done() <-chan struct{} {
	return tx.done
}

// Result returns the decoded response. It is only meaningful after Done is
// closed.
func (tx *Transaction) Result() (any, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.result, tx.err
}

// Wait blocks until the transaction finishes, running it through the
// transport's interceptors. Cancelling ctx cancels the transaction.
func (tx *Transaction) Wait(ctx context.Context) (any, error) {
	return tx.t.chain(ctx, tx)
}

// Cancel detaches the caller. A queued transaction leaves its batch; a sent
// one stays on the wire but its response is dropped.
func (tx *Transaction) Cancel() {
	tx.t.cancel(tx)
}

// advance moves a non-terminal transaction to next.
func (tx *Transaction) advance(next State) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state.Terminal() {
		return false
	}
	tx.state = next
	return true
}

// finish stores the outcome and closes Done exactly once.
func (tx *Transaction) finish(state State, result any, err error) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state.Terminal() {
		return false
	}
	tx.state = state
	tx.result = result
	tx.err = err
	close(tx.done)
	return true
}

// wait is the innermost handler of the interceptor chain.
func wait(ctx context.Context, tx *Transaction) (any, error) {
	select {
	case <-tx.done:
		return tx.Result()
	case <-ctx.Done():
		tx.Cancel()
		return nil, ctx.Err()
	}
}
