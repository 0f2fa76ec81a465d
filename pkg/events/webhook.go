package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/resumekit/authz/pkg/async"
	"github.com/resumekit/authz/pkg/authz"
	"github.com/resumekit/authz/pkg/observability"
)

// Delivery headers set on every webhook request.
const (
	HeaderEvent     = "X-Authz-Event"
	HeaderEventID   = "X-Authz-Event-ID"
	HeaderDelivery  = "X-Authz-Delivery"
	HeaderSignature = "X-Authz-Signature"
)

// Endpoint is one registered webhook receiver.
type Endpoint struct {
	Name   string            `json:"name"`
	URL    string            `json:"url"`
	Secret string            `json:"secret,omitempty"`
	Events []authz.EventType `json:"events,omitempty"` // empty means every type
}

func (e *Endpoint) wants(t authz.EventType) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, et := range e.Events {
		if et == t {
			return true
		}
	}
	return false
}

// WebhookSinkConfig configures the delivery pipeline.
type WebhookSinkConfig struct {
	// Timeout bounds one HTTP request. Defaults to 10s.
	Timeout time.Duration
	// Workers is the delivery concurrency. Defaults to 4.
	Workers int
	// Retry governs re-delivery after failed attempts.
	Retry RetryConfig
}

// WebhookSink forwards authorization events to registered HTTP
// endpoints. Payloads are signed with HMAC-SHA256 when the endpoint
// has a secret, and failed deliveries retry with exponential backoff.
// Register it on a Bus via HandleEvent.
type WebhookSink struct {
	mu        sync.RWMutex
	endpoints []*Endpoint

	client  *http.Client
	pool    *async.WorkerPool
	policy  *RetryPolicy
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewWebhookSink creates a sink whose delivery workers live under ctx.
// metrics may be nil when delivery counters are not wanted.
func NewWebhookSink(ctx context.Context, config WebhookSinkConfig, metrics *observability.Metrics) *WebhookSink {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}

	policy := NewRetryPolicy(config.Retry)

	// One pool task is one event's full delivery to one endpoint, so
	// its budget must cover every attempt plus the sleeps between them.
	budget := time.Duration(policy.config.MaxAttempts) * (config.Timeout + policy.config.MaxDelay)

	return &WebhookSink{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		pool:    async.NewWorkerPool(ctx, config.Workers, "webhook delivery", budget),
		policy:  policy,
		metrics: metrics,
		logger:  observability.GetLogger(ctx).WithField("component", "webhook_sink"),
	}
}

// Register adds an endpoint. Endpoints cannot be removed; the sink's
// lifetime is the process's.
func (s *WebhookSink) Register(endpoint *Endpoint) error {
	if endpoint.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if endpoint.Name == "" {
		endpoint.Name = endpoint.URL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = append(s.endpoints, endpoint)
	return nil
}

// EndpointCount reports how many endpoints are registered.
func (s *WebhookSink) EndpointCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.endpoints)
}

// HandleEvent queues the event for delivery to every interested
// endpoint. It matches the Bus Handler signature and returns quickly;
// the actual HTTP requests run on the sink's workers.
func (s *WebhookSink) HandleEvent(ctx context.Context, event authz.Event) error {
	s.mu.RLock()
	endpoints := make([]*Endpoint, len(s.endpoints))
	copy(endpoints, s.endpoints)
	s.mu.RUnlock()

	for _, ep := range endpoints {
		if !ep.wants(event.Type) {
			continue
		}

		ep := ep
		if err := s.pool.Submit(func(ctx context.Context) error {
			return s.deliver(ctx, ep, event)
		}); err != nil {
			return fmt.Errorf("queue delivery to %s: %w", ep.Name, err)
		}
	}

	return nil
}

// deliver sends one event to one endpoint, retrying per the policy.
func (s *WebhookSink) deliver(ctx context.Context, endpoint *Endpoint, event authz.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"endpoint": endpoint.Name,
		"event_id": event.ID,
		"type":     string(event.Type),
	})

	attempts := 0
	for {
		attempts++

		err = s.send(ctx, endpoint, event, payload)
		if err == nil {
			s.countDelivery("success")
			logger.WithField("attempts", attempts).Debug("webhook delivered")
			return nil
		}

		if !s.policy.ShouldRetry(attempts, err) {
			s.countDelivery("failed")
			return fmt.Errorf("deliver event %s to %s failed after %d attempts: %w",
				event.ID, endpoint.Name, attempts, err)
		}

		s.countDelivery("retried")
		delay := s.policy.NextRetryDelay(attempts)
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempts,
			"delay":   delay.String(),
		}).Warn("webhook delivery failed, retrying")

		select {
		case <-ctx.Done():
			s.countDelivery("failed")
			return fmt.Errorf("deliver event %s to %s: %w", event.ID, endpoint.Name, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// send performs a single delivery attempt.
func (s *WebhookSink) send(ctx context.Context, endpoint *Endpoint, event authz.Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(event.Type))
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderDelivery, time.Now().UTC().Format(time.RFC3339))
	if endpoint.Secret != "" {
		req.Header.Set(HeaderSignature, generateSignature(payload, endpoint.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}

func (s *WebhookSink) countDelivery(status string) {
	if s.metrics != nil {
		s.metrics.WebhookDeliveries.WithLabelValues(status).Inc()
	}
}

// Close drains queued deliveries and stops the workers.
func (s *WebhookSink) Close() error {
	return s.pool.Shutdown(5 * time.Second)
}

// VerifySignature checks a received payload against the signature
// header value using the shared secret.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates an HMAC-SHA256 signature over the payload.
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
