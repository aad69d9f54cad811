//go:build !unix

package server

import (
	"context"
	"fmt"
	"net"
)

// Listen opens a stream listener with the platform defaults.
func Listen(ctx context.Context, network, address string) (net.Listener, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	return listener, nil
}
