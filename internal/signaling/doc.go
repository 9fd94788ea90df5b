// Package signaling serves the broker's WebSocket endpoint: it admits
// connections, walks each one through hello identification, and dispatches
// decoded frames to broker operations. One goroutine per connection; the
// only cross-connection writes are relay deliveries, serialized by the
// per-connection write lock.
package signaling
