package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/k9trail/bridge/internal/utils"
)

// ConnectionsLimiter caps the number of simultaneous streaming connections
// per client IP. Streams are long-lived, so without the cap a single client
// could pin every worker on the box.
type ConnectionsLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	max         int
	realIP      *utils.RealIPExtractor
}

func NewConnectionLimiter(max int, extractor *utils.RealIPExtractor) *ConnectionsLimiter {
	return &ConnectionsLimiter{
		connections: map[string]int{},
		max:         max,
		realIP:      extractor,
	}
}

// LeaseConnection reserves a connection slot for the request's client IP and
// returns the release function to call when the stream ends. An IP at its
// limit gets an error instead of a slot.
func (l *ConnectionsLimiter) LeaseConnection(request *http.Request) (release func(), err error) {
	key := l.realIP.Extract(request)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[key] >= l.max {
		return nil, fmt.Errorf("you have reached the limit of streaming connections: %v max", l.max)
	}
	l.connections[key]++

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.connections[key]--
		if l.connections[key] <= 0 {
			delete(l.connections, key)
		}
	}, nil
}
