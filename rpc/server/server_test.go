package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ngAnzar/rpc/rpc"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := New(WithMetrics(rpc.NewMetrics("test")))
	s.Handle("Math.add", func(ctx context.Context, params any) (any, error) {
		m, _ := params.(map[string]any)
		a, err := rpc.ParseNumber(m["a"])
		if err != nil {
			return nil, err
		}
		b, err := rpc.ParseNumber(m["b"])
		if err != nil {
			return nil, err
		}
		return a + b, nil
	})
	s.Handle("Math.fail", func(ctx context.Context, params any) (any, error) {
		return nil, errors.New("division by zero")
	})

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

type addParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func TestServer_HTTPRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	sender, err := rpc.NewHTTPSender(ts.URL + "/rpc")
	if err != nil {
		t.Fatalf("NewHTTPSender() error = %v", err)
	}
	tr := rpc.NewTransport(sender, rpc.WithBatchWindow(5*time.Millisecond))
	defer tr.Close()
	ctx := context.Background()

	a := tr.Start(ctx, "Math.add", addParams{A: 1, B: 2}, nil)
	b := tr.Start(ctx, "Math.fail", nil, nil)
	c := tr.Start(ctx, "Math.nope", nil, nil)

	sum, err := rpc.NewNullable(mustWait(t, a), rpc.ParseNumber)
	if err != nil || sum != 3 {
		t.Errorf("Math.add = %v, %v, want 3", sum, err)
	}

	_, err = b.Wait(ctx)
	var rerr *rpc.Error
	if !errors.As(err, &rerr) || rerr.Code != rpc.ApplicationError {
		t.Errorf("Math.fail error = %v, want application error", err)
	}
	if err != nil && err.Error() != "ApplicationError: division by zero" {
		t.Errorf("Math.fail message = %q", err.Error())
	}

	_, err = c.Wait(ctx)
	if !errors.As(err, &rerr) || rerr.Code != rpc.MethodNotFound {
		t.Errorf("Math.nope error = %v, want method not found", err)
	}
}

func TestServer_WebSocketRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	sender := rpc.NewWebSocketSender("ws" + strings.TrimPrefix(ts.URL, "http") + "/ws")
	defer sender.Close()
	tr := rpc.NewTransport(sender, rpc.WithBatchWindow(5*time.Millisecond))
	defer tr.Close()

	got, err := rpc.Call(context.Background(), tr, "Math.add", addParams{A: 2, B: 5}, rpc.ParseNumber)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != 7 {
		t.Errorf("Call() = %v, want 7", got)
	}
}

func TestServer_Methods(t *testing.T) {
	s := New()
	s.Handle("B.x", nil)
	s.Handle("A.x", nil)
	if got := s.Methods(); len(got) != 2 || got[0] != "A.x" {
		t.Errorf("Methods() = %v", got)
	}
}

func mustWait(t *testing.T, tx *rpc.Transaction) any {
	t.Helper()
	res, err := tx.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return res
}
