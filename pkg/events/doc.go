// Package events delivers authorization domain events to in-process
// subscribers and external webhook endpoints.
//
// # Overview
//
// The management API publishes an event after every committed mutation
// of the permission model. This package provides the Bus that fans
// those events out to subscribers without blocking the mutation path,
// and a WebhookSink that forwards them to registered HTTP endpoints
// with HMAC-SHA256 signatures and retried delivery.
//
// # Usage Example
//
// Wire the bus into the engine and subscribe a sink:
//
//	bus := events.NewBus(ctx)
//	sink := events.NewWebhookSink(ctx, events.WebhookSinkConfig{}, metrics)
//	defer sink.Close()
//
//	sink.Register(&events.Endpoint{
//		Name:   "billing",
//		URL:    "https://billing.internal/hooks/authz",
//		Secret: secret,
//		Events: []authz.EventType{authz.EventRoleAssigned},
//	})
//	bus.Subscribe("webhooks", sink.HandleEvent)
//
//	engine := authz.NewEngine(repos, authz.Options{Events: bus})
//
// Receivers verify payloads with the same scheme:
//
//	if !events.VerifySignature(body, r.Header.Get("X-Authz-Signature"), secret) {
//		http.Error(w, "bad signature", http.StatusUnauthorized)
//		return
//	}
//
// # Delivery Semantics
//
// Dispatch is at-most-once per subscriber and asynchronous; a slow or
// failing subscriber never delays the mutation that produced the
// event. Webhook deliveries retry with exponential backoff up to the
// configured attempt limit and report success/failure counters.
//
// # Related Packages
//
//   - pkg/authz: defines Event and the EventPublisher interface
//   - pkg/async: supplies the dispatch goroutines and delivery workers
package events
