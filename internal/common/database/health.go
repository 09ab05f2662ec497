package database

import "context"

// Pinger is implemented by every client in this package.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingAll returns a map of backend name to ping error, nil entries meaning healthy.
func PingAll(ctx context.Context, backends map[string]Pinger) map[string]error {
	out := make(map[string]error, len(backends))
	for name, b := range backends {
		if b == nil {
			continue
		}
		out[name] = b.Ping(ctx)
	}
	return out
}
