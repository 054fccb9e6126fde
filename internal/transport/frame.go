// Package transport implements the socket-level framing spec §6 requires:
// a multipart, length-prefixed frame over net.Conn (TCP or Unix domain
// socket), plus the Publisher/Subscriber and Control Client/Server
// primitives built on top of it. gRPC's HTTP/2 framing cannot express the
// ROUTER-style identity-tagged frontend spec §6 describes (see DESIGN.md),
// so this package hand-rolls the wire format instead.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const maxFrameParts = 8
const maxPartBytes = 256 << 20 // 256MiB, generous ceiling for a Scan2D payload

// WriteFrame writes parts as a single multipart frame: a part count
// followed by each part's length-prefixed bytes. timeout, if non-zero, is
// applied to the whole write as a deadline.
func WriteFrame(conn net.Conn, parts [][]byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("transport: set write deadline: %w", err)
		}
	}
	if len(parts) > maxFrameParts {
		return fmt.Errorf("transport: frame has %d parts, max is %d", len(parts), maxFrameParts)
	}

	w := bufio.NewWriter(conn)
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(parts)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	for _, p := range parts {
		binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("transport: write part length: %w", err)
		}
		if _, err := w.Write(p); err != nil {
			return fmt.Errorf("transport: write part: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("transport: flush frame: %w", err)
	}
	return nil
}

// ReadFrame reads one multipart frame, honoring timeout as a read deadline.
func ReadFrame(r *bufio.Reader, conn net.Conn, timeout time.Duration) ([][]byte, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameParts {
		return nil, fmt.Errorf("transport: frame claims %d parts, max is %d", n, maxFrameParts)
	}

	parts := make([][]byte, n)
	for i := range parts {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("transport: read part %d length: %w", i, err)
		}
		ln := binary.BigEndian.Uint32(hdr[:])
		if ln > maxPartBytes {
			return nil, fmt.Errorf("transport: part %d claims %d bytes, max is %d", i, ln, maxPartBytes)
		}
		buf := make([]byte, ln)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("transport: read part %d: %w", i, err)
		}
		parts[i] = buf
	}
	return parts, nil
}
