package transport

import (
	"net"
	"testing"
	"time"
)

func TestConnSendRecvRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := &Conn{conn: client}
	defer c.Close()

	go func() {
		buf := make([]byte, 16)
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		server.Write(buf[:n])
	}()

	if err := c.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 16)
	n, err := c.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want \"ping\"", buf[:n])
	}
}

func TestConnCloseUnblocksRecv(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := &Conn{conn: client}

	done := make(chan error, 1)
	go func() {
		_, err := c.Recv(make([]byte, 16))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Recv to fail after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
