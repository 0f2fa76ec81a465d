// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "event dispatch", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return sink.Deliver(ctx, event)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "webhook delivery", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return deliverWebhook(ctx, event)
//	})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Event fan-out to subscribers, webhook delivery, cache maintenance
//
// # Related Packages
//
//   - pkg/events: Uses SafeGo for subscriber dispatch and WorkerPool for webhook delivery
//   - pkg/observability: Supplies the panic recovery and structured logging
package async
