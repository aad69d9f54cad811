package server

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpAddr(ip string, port int) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

func TestConnectionLimiterUnlimited(t *testing.T) {
	cl := NewConnectionLimiter("KIRI", 0, 0)
	for i := 0; i < 100; i++ {
		_, err := cl.Accept(tcpAddr("10.0.0.1", 1000+i))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 100, cl.GetStats().TotalConnections)
}

func TestConnectionLimiterTotal(t *testing.T) {
	cl := NewConnectionLimiter("KIRI", 2, 0)

	r1, err := cl.Accept(tcpAddr("10.0.0.1", 1))
	require.NoError(t, err)
	_, err = cl.Accept(tcpAddr("10.0.0.2", 2))
	require.NoError(t, err)

	_, err = cl.Accept(tcpAddr("10.0.0.3", 3))
	assert.True(t, errors.Is(err, ErrMaxConnections), "got %v", err)

	r1()
	r1()
	assert.EqualValues(t, 1, cl.GetStats().TotalConnections, "release is idempotent")

	_, err = cl.Accept(tcpAddr("10.0.0.3", 3))
	assert.NoError(t, err)
}

func TestConnectionLimiterPerIP(t *testing.T) {
	cl := NewConnectionLimiter("KIRI", 0, 1)

	release, err := cl.Accept(tcpAddr("192.0.2.7", 1))
	require.NoError(t, err)

	_, err = cl.Accept(tcpAddr("192.0.2.7", 2))
	assert.True(t, errors.Is(err, ErrMaxConnectionsPerIP), "got %v", err)

	_, err = cl.Accept(tcpAddr("192.0.2.8", 1))
	assert.NoError(t, err, "other addresses are unaffected")

	release()
	stats := cl.GetStats()
	assert.NotContains(t, stats.IPConnections, "192.0.2.7", "empty entries are dropped")
	assert.EqualValues(t, 1, stats.IPConnections["192.0.2.8"])

	_, err = cl.Accept(tcpAddr("192.0.2.7", 3))
	assert.NoError(t, err)
}
