package presence

import (
	"context"
	"time"
)

// StreamInfo describes one live bridge session for operational listing.
type StreamInfo struct {
	ClientID  string    `json:"client_id"`
	Broker    string    `json:"broker"`
	Topic     string    `json:"topic"`
	RemoteIP  string    `json:"remote_ip"`
	StartedAt time.Time `json:"started_at"`
}

// Registry tracks live stream sessions with a TTL. Entries are refreshed
// while the session is open and disappear on their own if the process dies
// without removing them.
type Registry interface {
	Add(ctx context.Context, info StreamInfo, ttl time.Duration) error
	Touch(ctx context.Context, clientID string, ttl time.Duration) error
	Remove(ctx context.Context, clientID string) error
	List(ctx context.Context) ([]StreamInfo, error)
	HealthCheck() error
}

// NewRegistry picks the backend: Redis when a URI is configured, the
// in-process registry otherwise.
func NewRegistry(redisURI string) (Registry, error) {
	if redisURI != "" {
		return NewRedisRegistry(redisURI)
	}
	return NewMemRegistry(), nil
}
