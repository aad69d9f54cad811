package server

import (
	"errors"
	"fmt"
	"net"

	"github.com/migadu/kiri/logger"
)

var (
	ErrMaxConnections      = errors.New("maximum connections reached")
	ErrMaxConnectionsPerIP = errors.New("maximum connections per IP reached")
)

// ConnectionLimiter caps live connections in total and per client IP.
// A zero limit means unlimited. It is not safe for concurrent use: the
// event loop that owns the session table owns the limiter too.
type ConnectionLimiter struct {
	protocol       string
	maxConnections int
	maxPerIP       int
	total          int
	perIP          map[string]int
}

// NewConnectionLimiter creates a new connection limiter
func NewConnectionLimiter(protocol string, maxConnections, maxPerIP int) *ConnectionLimiter {
	return &ConnectionLimiter{
		protocol:       protocol,
		maxConnections: maxConnections,
		maxPerIP:       maxPerIP,
		perIP:          make(map[string]int),
	}
}

// Accept registers a connection from remoteAddr and returns the function
// that releases it. The release function is idempotent.
func (cl *ConnectionLimiter) Accept(remoteAddr net.Addr) (func(), error) {
	ip := clientIP(remoteAddr)

	if cl.maxConnections > 0 && cl.total >= cl.maxConnections {
		return nil, fmt.Errorf("%w (%d/%d)", ErrMaxConnections, cl.total, cl.maxConnections)
	}
	if cl.maxPerIP > 0 && cl.perIP[ip] >= cl.maxPerIP {
		return nil, fmt.Errorf("%w for %s (%d/%d)", ErrMaxConnectionsPerIP, ip, cl.perIP[ip], cl.maxPerIP)
	}

	cl.total++
	cl.perIP[ip]++
	logger.Debug("Connection limiter: Connection accepted", "protocol", cl.protocol, "ip", ip, "total", cl.total, "max_total", cl.maxConnections, "per_ip", cl.perIP[ip], "max_per_ip", cl.maxPerIP)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		cl.total--
		// Drop the entry with its last connection so the map does not grow.
		if cl.perIP[ip]--; cl.perIP[ip] <= 0 {
			delete(cl.perIP, ip)
		}
	}, nil
}

// GetStats returns current connection statistics
func (cl *ConnectionLimiter) GetStats() ConnectionStats {
	stats := ConnectionStats{
		Protocol:         cl.protocol,
		TotalConnections: int64(cl.total),
		MaxConnections:   int64(cl.maxConnections),
		MaxPerIP:         int64(cl.maxPerIP),
		IPConnections:    make(map[string]int64, len(cl.perIP)),
	}
	for ip, n := range cl.perIP {
		stats.IPConnections[ip] = int64(n)
	}
	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	Protocol         string
	TotalConnections int64
	MaxConnections   int64
	MaxPerIP         int64
	IPConnections    map[string]int64
}

func clientIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
