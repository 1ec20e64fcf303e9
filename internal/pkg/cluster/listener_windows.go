//go:build windows

package cluster

import (
	"errors"
	"net"
)

// ListenTCP creates a TCP listener. Port sharing is refused on Windows.
func ListenTCP(addr string, reusePort bool) (net.Listener, error) {
	if reusePort {
		return nil, errors.New("SO_REUSEPORT is not supported on windows")
	}
	return net.Listen("tcp", addr)
}
