// Package flightcache is a cache for expensive results with a distributed
// single-flight lock: for any key at most one computation runs at a time,
// whether the callers are goroutines in one process or processes sharing a
// Redis. Everyone else gets the winner's result or, after a timeout, a
// configured default.
//
// Components:
//   - Backend: stores values and arbitrates renewals. LocalBackend keeps
//     everything in-process; SharedBackend keeps local copies in front of
//     Redis, takes renew locks there (SET NX PX, compare-and-delete release)
//     and refreshes local copies when another process publishes a change.
//   - provider.Provider: the byte store under a backend (LRU by default,
//     Ristretto, BigCache, Redis).
//   - Flight[V]: the get-or-compute entry point, with a key template and a
//     codec.Codec[V].
//   - session.Session: an HTTP client that renews credentials through the
//     same single-flight protocol and replays the failed request.
//
// Keys (SharedBackend, with Prefix p):
//
//	p<key>             - shared value
//	prenew:<key>       - renew lock, value is the holder's identity
//
// Renew protocol:
//
//	granted := b.RequestRenew(ctx, key, id, lease)
//	if granted { v := compute(); b.Save(ctx, key, v, ttl); b.FinishRenew(ctx, key, id) }
//	else       { v, ok := b.Wait(ctx, key, timeout) } // !ok => default
package flightcache
