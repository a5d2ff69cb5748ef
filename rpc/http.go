package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	"github.com/google/uuid"
)

// SessionHeader carries the client session id on every request.
const SessionHeader = "X-RPC-Session"

// HTTPSender posts every batch as a JSON array to one endpoint. Cookies set
// by the server are kept and sent back, like credentialed browser requests.
type HTTPSender struct {
	Endpoint string
	Client   *http.Client
	Header   http.Header

	session string
}

// NewHTTPSender creates a sender with its own cookie jar and session id.
func NewHTTPSender(endpoint string) (*HTTPSender, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &HTTPSender{
		Endpoint: endpoint,
		Client:   &http.Client{Jar: jar},
		Header:   make(http.Header),
		session:  uuid.NewString(),
	}, nil
}

// Session returns the id sent in SessionHeader.
func (s *HTTPSender) Session() string { return s.session }

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, batch []Request) ([]Response, error) {
	body, err := EncodeBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range s.Header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if s.session != "" {
		req.Header.Set(SessionHeader, s.session)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc endpoint returned %s", resp.Status)
	}
	return DecodeBatch(data)
}
