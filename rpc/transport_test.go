package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSender answers every request with its method name, unless reply
// is set.
type recordingSender struct {
	mu      sync.Mutex
	batches [][]Request
	reply   func(batch []Request) ([]Response, error)
	gate    chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, batch []Request) ([]Response, error) {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.mu.Unlock()

	if s.gate != nil {
		<-s.gate
	}
	if s.reply != nil {
		return s.reply(batch)
	}
	out := make([]Response, len(batch))
	for i, req := range batch {
		id := req.ID
		out[i] = Response{ID: &id, Result: req.Method}
	}
	return out, nil
}

func (s *recordingSender) Batches() [][]Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Request(nil), s.batches...)
}

func waitDone(t *testing.T, tx *Transaction) {
	t.Helper()
	select {
	case <-tx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("transaction %d did not finish", tx.ID)
	}
}

func TestTransport_BatchesCallsInOneWindow(t *testing.T) {
	sender := &recordingSender{}
	tr := NewTransport(sender, WithBatchWindow(20*time.Millisecond))
	ctx := context.Background()

	a := tr.Start(ctx, "A.one", nil, nil)
	b := tr.Start(ctx, "A.two", nil, nil)
	c := tr.Start(ctx, "A.three", nil, nil)
	for _, tx := range []*Transaction{a, b, c} {
		waitDone(t, tx)
	}

	batches := sender.Batches()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	got := []string{batches[0][0].Method, batches[0][1].Method, batches[0][2].Method}
	want := []string{"A.one", "A.two", "A.three"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("batch order = %v, want %v", got, want)
			break
		}
	}

	for _, tx := range []*Transaction{a, b, c} {
		res, err := tx.Result()
		if err != nil || res != tx.Method {
			t.Errorf("Result() = %v, %v, want %s", res, err, tx.Method)
		}
		if tx.State() != StateCompleted {
			t.Errorf("State() = %s, want completed", tx.State())
		}
	}
	if tr.Open() != 0 {
		t.Errorf("Open() = %d, want 0", tr.Open())
	}
}

func TestTransport_SeparateWindows(t *testing.T) {
	sender := &recordingSender{}
	tr := NewTransport(sender, WithBatchWindow(5*time.Millisecond))
	ctx := context.Background()

	waitDone(t, tr.Start(ctx, "A.one", nil, nil))
	waitDone(t, tr.Start(ctx, "A.two", nil, nil))

	if n := len(sender.Batches()); n != 2 {
		t.Fatalf("batches = %d, want 2", n)
	}
}

func TestTransport_StaleTimerKeepsNextWindow(t *testing.T) {
	sender := &recordingSender{}
	tr := NewTransport(sender, WithBatchWindow(time.Hour))
	ctx := context.Background()

	first := tr.Start(ctx, "A.one", nil, nil)
	tr.mu.Lock()
	armed := tr.gen
	tr.mu.Unlock()
	tr.Flush()
	waitDone(t, first)

	second := tr.Start(ctx, "A.two", nil, nil)
	tr.flush(armed, true)
	if second.State() != StateQueued {
		t.Fatalf("State() = %s, want queued after a tick of the previous window", second.State())
	}
	if n := len(sender.Batches()); n != 1 {
		t.Fatalf("batches = %d, want 1", n)
	}

	tr.Close()
	waitDone(t, second)
	if n := len(sender.Batches()); n != 2 {
		t.Errorf("batches = %d, want 2", n)
	}
}

func TestTransport_CancelBeforeFlush(t *testing.T) {
	sender := &recordingSender{}
	tr := NewTransport(sender, WithBatchWindow(time.Hour))
	ctx := context.Background()

	keep := tr.Start(ctx, "A.keep", nil, nil)
	drop := tr.Start(ctx, "A.drop", nil, nil)
	drop.Cancel()
	tr.Flush()
	waitDone(t, keep)

	batches := sender.Batches()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0].Method != "A.keep" {
		t.Fatalf("batches = %+v, want only A.keep", batches)
	}
	if drop.State() != StateCancelled {
		t.Errorf("State() = %s, want cancelled", drop.State())
	}
	if _, err := drop.Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("Result() error = %v, want ErrCancelled", err)
	}
}

func TestTransport_CancelAfterSendIgnoresResponse(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	tr := NewTransport(sender, WithBatchWindow(time.Hour))
	ctx := context.Background()

	tx := tr.Start(ctx, "A.slow", nil, nil)
	tr.Flush()

	for len(sender.Batches()) == 0 {
		time.Sleep(time.Millisecond)
	}
	if tx.State() != StateSent {
		t.Fatalf("State() = %s, want sent", tx.State())
	}

	tx.Cancel()
	if tr.Open() != 0 {
		t.Errorf("Open() = %d after cancel, want 0", tr.Open())
	}
	close(sender.gate)
	tr.Close()

	if tx.State() != StateCancelled {
		t.Errorf("State() = %s, want cancelled", tx.State())
	}
	if res, err := tx.Result(); res != nil || !errors.Is(err, ErrCancelled) {
		t.Errorf("Result() = %v, %v, want nil, ErrCancelled", res, err)
	}
}

func TestTransport_WaitContextCancels(t *testing.T) {
	sender := &recordingSender{}
	tr := NewTransport(sender, WithBatchWindow(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	tx := tr.Start(ctx, "A.never", nil, nil)
	cancel()

	if _, err := tx.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	if tx.State() != StateCancelled {
		t.Errorf("State() = %s, want cancelled", tx.State())
	}
	tr.Close()
	if n := len(sender.Batches()); n != 0 {
		t.Errorf("batches = %d, want 0", n)
	}
}

func TestTransport_InterceptorOrder(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	mark := func(name string) Interceptor {
		return func(next Handler) Handler {
			return func(ctx context.Context, tx *Transaction) (any, error) {
				mu.Lock()
				trace = append(trace, name+">")
				mu.Unlock()
				res, err := next(ctx, tx)
				mu.Lock()
				trace = append(trace, "<"+name)
				mu.Unlock()
				return res, err
			}
		}
	}

	tr := NewTransport(&recordingSender{}, WithBatchWindow(time.Millisecond),
		WithInterceptor(mark("first")), WithInterceptor(mark("second")))

	res, err := tr.Call(context.Background(), "A.call", nil)
	if err != nil || res != "A.call" {
		t.Fatalf("Call() = %v, %v", res, err)
	}

	want := []string{"second>", "first>", "<first", "<second"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestTransport_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply func(batch []Request) ([]Response, error)
		code  int
	}{
		{
			name: "missing id",
			reply: func(batch []Request) ([]Response, error) {
				return []Response{{Result: "x"}}, nil
			},
			code: TransportError,
		},
		{
			name: "unknown id",
			reply: func(batch []Request) ([]Response, error) {
				id := uint64(999)
				return []Response{{ID: &id, Result: "x"}}, nil
			},
			code: SystemError,
		},
		{
			name: "send failure",
			reply: func(batch []Request) ([]Response, error) {
				return nil, errors.New("connection refused")
			},
			code: TransportError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransport(&recordingSender{reply: tt.reply}, WithBatchWindow(time.Millisecond))
			ctx := context.Background()

			a := tr.Start(ctx, "A.one", nil, nil)
			b := tr.Start(ctx, "A.two", nil, nil)
			for _, tx := range []*Transaction{a, b} {
				_, err := tx.Wait(ctx)
				var rerr *Error
				if !errors.As(err, &rerr) || rerr.Code != tt.code {
					t.Errorf("Wait() error = %v, want code %d", err, tt.code)
				}
			}
			if tr.Open() != 0 {
				t.Errorf("Open() = %d, want 0", tr.Open())
			}
		})
	}
}

func TestTransport_ProtocolErrorKeepsOtherBatches(t *testing.T) {
	var calls int
	var mu sync.Mutex
	sender := &recordingSender{reply: func(batch []Request) ([]Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return []Response{{Result: "broken"}}, nil
		}
		id := batch[0].ID
		return []Response{{ID: &id, Result: "fine"}}, nil
	}}
	tr := NewTransport(sender, WithBatchWindow(time.Millisecond))
	ctx := context.Background()

	if _, err := tr.Call(ctx, "A.first", nil); err == nil {
		t.Fatal("Call() expected protocol error")
	}
	res, err := tr.Call(ctx, "A.second", nil)
	if err != nil || res != "fine" {
		t.Fatalf("Call() = %v, %v, want fine", res, err)
	}
}

func TestTransport_ApplicationError(t *testing.T) {
	sender := &recordingSender{reply: func(batch []Request) ([]Response, error) {
		id := batch[0].ID
		return []Response{{ID: &id, Error: &Error{
			Code:    ApplicationError,
			Message: "no such user",
			Data:    map[string]any{"type": "NotFound"},
		}}}, nil
	}}
	tr := NewTransport(sender, WithBatchWindow(time.Millisecond))

	_, err := tr.Call(context.Background(), "User.get", nil)
	if err == nil || err.Error() != "NotFound: no such user" {
		t.Fatalf("Call() error = %v, want NotFound: no such user", err)
	}
	if !errors.Is(err, &Error{Code: ApplicationError}) {
		t.Errorf("errors.Is by code failed for %v", err)
	}
}

func TestTransport_RequestHook(t *testing.T) {
	var seen []uint64
	tr := NewTransport(&recordingSender{}, WithBatchWindow(time.Millisecond),
		WithRequestHook(func(batch []*Transaction) {
			for _, tx := range batch {
				seen = append(seen, tx.ID)
			}
		}))

	if _, err := tr.Call(context.Background(), "A.one", nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Errorf("hook saw %v, want [1]", seen)
	}
}

func TestCall_Decodes(t *testing.T) {
	tr := NewTransport(&recordingSender{reply: func(batch []Request) ([]Response, error) {
		id := batch[0].ID
		return []Response{{ID: &id, Result: []any{"a", "b"}}}, nil
	}}, WithBatchWindow(time.Millisecond))

	got, err := Call(context.Background(), tr, "A.list", nil, func(raw any) ([]string, error) {
		return NewList(raw, ParseString)
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("Call() = %v", got)
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Code: SystemError, Message: "boom", Data: map[string]any{"traceback": []any{"line 1", "line 2"}}}
	if e.Error() != "line 1\nline 2" {
		t.Errorf("Error() = %q", e.Error())
	}
	e = &Error{Code: SystemError, Message: "boom"}
	if e.Error() != "boom" {
		t.Errorf("Error() = %q", e.Error())
	}
}
