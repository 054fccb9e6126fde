package cache

import (
	"fmt"
	"strings"
)

// parseBackendAddr mirrors internal/transport's address scheme parsing for
// the cache's own bind address.
func parseBackendAddr(addr string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://"), nil
	case strings.HasPrefix(addr, "ipc://"):
		return "unix", strings.TrimPrefix(addr, "ipc://"), nil
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	default:
		return "", "", fmt.Errorf("cache: unsupported address scheme %q, want tcp:// or ipc://", addr)
	}
}
