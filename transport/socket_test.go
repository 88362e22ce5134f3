package transport

import (
	"bytes"
	"testing"
	"time"
)

func TestSocketRoundTripLoopback(t *testing.T) {
	a, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer a.Close()

	b, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer b.Close()

	payload := []byte("path probe")
	var ctrl ControlBuffer
	ctrl.SetTrafficClass(0x2e)

	if _, err := a.WriteTo(payload, b.LocalAddr(), ctrl); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	buf := make([]byte, 1500)
	b.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, src, _, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}

	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("payload mismatch: got %q, want %q", buf[:n], payload)
	}
	if src.Port != a.LocalAddr().Port {
		t.Errorf("source port mismatch: got %d, want %d", src.Port, a.LocalAddr().Port)
	}
}

func TestSocketFD(t *testing.T) {
	s, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer s.Close()

	fd, err := s.FD()
	if err != nil {
		t.Fatalf("FD failed: %v", err)
	}
	if fd < 0 {
		t.Errorf("expected a valid file descriptor, got %d", fd)
	}
}
