// Package admission gates new websocket connections and inbound message
// volume before any broker work happens.
//
// A public signaling endpoint is a cheap amplification target. The two
// limiters here are evaluated at different points in a connection's life:
// ConnLimiter at upgrade time (per remote address), WindowLimiter on every
// message after identity assignment (per peer).
package admission
