package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Sender delivers one batch of events to the remote telemetry endpoint.
// A nil return means the whole batch is acknowledged.
type Sender interface {
	Send(ctx context.Context, events []Event) error
}

// Connectivity answers whether the device currently believes it is online.
type Connectivity interface {
	Online() bool
}

// OnlineFlag is the connectivity source of truth, toggled by the UI layer
// (which observes the platform's connectivity events).
type OnlineFlag struct {
	online atomic.Bool
}

// NewOnlineFlag starts optimistic: assume online until told otherwise.
func NewOnlineFlag() *OnlineFlag {
	f := &OnlineFlag{}
	f.online.Store(true)
	return f
}

func (f *OnlineFlag) Online() bool     { return f.online.Load() }
func (f *OnlineFlag) SetOnline(v bool) { f.online.Store(v) }

// HTTPSender posts event batches as JSON to a single endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, events []Event) error {
	body, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telemetry endpoint returned %d", resp.StatusCode)
	}
	return nil
}
