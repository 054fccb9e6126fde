package transport

import (
	"fmt"
	"strings"
)

// parseAddr splits an afspm endpoint address ("tcp://host:port" or
// "ipc:///path/to.sock") into the net.Dial/net.Listen network and address
// arguments. This mirrors the afspm convention of URI-style transport
// addresses rather than inventing a bespoke scheme.
func parseAddr(addr string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://"), nil
	case strings.HasPrefix(addr, "ipc://"):
		return "unix", strings.TrimPrefix(addr, "ipc://"), nil
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	default:
		return "", "", fmt.Errorf("transport: unsupported address scheme %q, want tcp:// or ipc://", addr)
	}
}
