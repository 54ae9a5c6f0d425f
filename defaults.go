package flightcache

import "time"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// resolveTTL maps the Save ttl convention onto the provider one:
// 0 => def, negative => 0 (no expiry).
func resolveTTL(ttl, def time.Duration) time.Duration {
	switch {
	case ttl == 0:
		return def
	case ttl < 0:
		return 0
	default:
		return ttl
	}
}
