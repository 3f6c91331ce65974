package scan

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"mailcore/pkg/metrics"
)

const instreamChunkSize = 2048

// ClamClient streams bytes to a clamd instance over its INSTREAM protocol:
// `nINSTREAM\n`, then 4-byte big-endian length-prefixed chunks terminated by
// a zero-length chunk. The response is a single line containing OK,
// `<name> FOUND`, or ERROR.
type ClamClient struct {
	addr    string
	timeout time.Duration
}

func NewClamClient(addr string, timeout time.Duration) *ClamClient {
	return &ClamClient{addr: addr, timeout: timeout}
}

// Scan streams r to the scanner. It returns the signature name for a
// positive detection and an empty string for a clean stream. Connection and
// protocol failures are transient: the scanner being down must neither
// silently pass nor permanently reject unscanned mail.
func (c *ClamClient) Scan(ctx context.Context, r io.Reader) (string, error) {
	start := time.Now()

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		metrics.RecordScanLatency("clamav", "error", time.Since(start))
		return "", fmt.Errorf("clamav dial failed: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}

	if _, err := conn.Write([]byte("nINSTREAM\n")); err != nil {
		metrics.RecordScanLatency("clamav", "error", time.Since(start))
		return "", fmt.Errorf("clamav INSTREAM failed: %w", err)
	}

	chunk := make([]byte, instreamChunkSize)
	sizeBuf := make([]byte, 4)
	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			binary.BigEndian.PutUint32(sizeBuf, uint32(n))
			if _, err := conn.Write(sizeBuf); err != nil {
				return "", fmt.Errorf("clamav chunk write failed: %w", err)
			}
			if _, err := conn.Write(chunk[:n]); err != nil {
				return "", fmt.Errorf("clamav chunk write failed: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}

	// Zero-length chunk terminates the stream.
	binary.BigEndian.PutUint32(sizeBuf, 0)
	if _, err := conn.Write(sizeBuf); err != nil {
		return "", fmt.Errorf("clamav terminator write failed: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		metrics.RecordScanLatency("clamav", "error", time.Since(start))
		return "", fmt.Errorf("clamav response read failed: %w", err)
	}
	line = strings.TrimRight(line, "\x00\r\n")

	switch {
	case strings.HasSuffix(line, "OK"):
		metrics.RecordScanLatency("clamav", "clean", time.Since(start))
		return "", nil
	case strings.HasSuffix(line, "FOUND"):
		metrics.RecordScanLatency("clamav", "found", time.Since(start))
		sig := strings.TrimSuffix(line, " FOUND")
		if i := strings.LastIndex(sig, ": "); i >= 0 {
			sig = sig[i+2:]
		}
		return sig, nil
	default:
		metrics.RecordScanLatency("clamav", "error", time.Since(start))
		return "", fmt.Errorf("clamav scan error: %q", line)
	}
}
