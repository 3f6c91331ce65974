package scan

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeClamd accepts one INSTREAM session, records the streamed bytes, and
// answers with the configured response line.
func fakeClamd(t *testing.T, response string) (addr string, streamed *bytes.Buffer) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	streamed = &bytes.Buffer{}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		cmd, err := r.ReadString('\n')
		if err != nil || cmd != "nINSTREAM\n" {
			fmt.Fprintf(conn, "UNKNOWN COMMAND\n")
			return
		}

		sizeBuf := make([]byte, 4)
		for {
			if _, err := io.ReadFull(r, sizeBuf); err != nil {
				return
			}
			size := binary.BigEndian.Uint32(sizeBuf)
			if size == 0 {
				break
			}
			if _, err := io.CopyN(streamed, r, int64(size)); err != nil {
				return
			}
		}
		fmt.Fprintf(conn, "%s\n", response)
	}()

	return ln.Addr().String(), streamed
}

func TestScan_CleanStream(t *testing.T) {
	addr, streamed := fakeClamd(t, "stream: OK")
	client := NewClamClient(addr, 2*time.Second)

	payload := strings.Repeat("x", instreamChunkSize*2+100)
	sig, err := client.Scan(context.Background(), strings.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "" {
		t.Errorf("signature for clean stream: got %q, want empty", sig)
	}
	if streamed.String() != payload {
		t.Errorf("streamed bytes differ: got %d bytes, want %d", streamed.Len(), len(payload))
	}
}

func TestScan_DetectionReturnsSignature(t *testing.T) {
	addr, _ := fakeClamd(t, "stream: Eicar-Test-Signature FOUND")
	client := NewClamClient(addr, 2*time.Second)

	sig, err := client.Scan(context.Background(), strings.NewReader("infected bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "Eicar-Test-Signature" {
		t.Errorf("signature: got %q, want Eicar-Test-Signature", sig)
	}
}

func TestScan_ScannerErrorIsError(t *testing.T) {
	addr, _ := fakeClamd(t, "INSTREAM size limit exceeded. ERROR")
	client := NewClamClient(addr, 2*time.Second)

	if _, err := client.Scan(context.Background(), strings.NewReader("x")); err == nil {
		t.Fatal("expected error for ERROR response")
	}
}

func TestScan_UnreachableScannerIsError(t *testing.T) {
	client := NewClamClient("127.0.0.1:1", 200*time.Millisecond)

	if _, err := client.Scan(context.Background(), strings.NewReader("x")); err == nil {
		t.Fatal("expected error for unreachable scanner")
	}
}

func TestScan_EmptyStream(t *testing.T) {
	addr, streamed := fakeClamd(t, "stream: OK")
	client := NewClamClient(addr, 2*time.Second)

	sig, err := client.Scan(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "" {
		t.Errorf("signature: got %q, want empty", sig)
	}
	if streamed.Len() != 0 {
		t.Errorf("streamed %d bytes for an empty reader", streamed.Len())
	}
}
