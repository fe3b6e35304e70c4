package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	ncerr "netchain/internal/errors"
	"netchain/tunnel"
	"netchain/util"
)

// TestTCPDialer_Connect verifies that TCPDialer can reach a local
// TCP server and exchange data.
func TestTCPDialer_Connect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: accept, send greeting, close.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello from server\n")) //nolint:errcheck
	}()

	d := &TCPDialer{Timeout: 2 * time.Second}
	ctx := context.Background()

	conn, err := d.Dial(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "hello from server\n" {
		t.Errorf("got %q, want %q", got, "hello from server\n")
	}
}

// TestTCPDialer_ContextCancel verifies that a cancelled context stops the dial.
func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := d.Dial(ctx, "tcp", "127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

// TestTCPDialer_SourcePort verifies the local end is pinned.
func TestTCPDialer_SourcePort(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	src, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	d := &TCPDialer{Timeout: 2 * time.Second, SourcePort: src}
	conn, err := d.Dial(context.Background(), "tcp4", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := conn.LocalAddr().(*net.TCPAddr).Port; got != src {
		t.Errorf("local port = %d, want %d", got, src)
	}
}

// TestTCPDialer_RejectsOtherNetworks verifies only IPv4 TCP is dialled.
func TestTCPDialer_RejectsOtherNetworks(t *testing.T) {
	d := &TCPDialer{}
	for _, network := range []string{"tcp6", "udp", "unix"} {
		if _, err := d.Dial(context.Background(), network, "127.0.0.1:1"); !errors.Is(err, ncerr.ErrUnsupported) {
			t.Errorf("%s: err = %v, want ErrUnsupported", network, err)
		}
	}
}

// TestSSHDialer_RejectsNonIPv4 verifies targets are checked before the
// gateway is contacted.
func TestSSHDialer_RejectsNonIPv4(t *testing.T) {
	// Port 1 on loopback refuses; reaching it would be a different error.
	d := NewSSHDialer(&tunnel.SSHConfig{Host: "127.0.0.1", Port: 1}, nil)
	defer d.Close()

	for _, addr := range []string{"example.com:80", "[::1]:80", "127.0.0.1"} {
		if _, err := d.Dial(context.Background(), "tcp", addr); !errors.Is(err, ncerr.ErrInvalidAddress) {
			t.Errorf("%s: err = %v, want ErrInvalidAddress", addr, err)
		}
	}
	if _, err := d.Dial(context.Background(), "udp", "127.0.0.1:53"); !errors.Is(err, ncerr.ErrUnsupported) {
		t.Errorf("udp: err = %v, want ErrUnsupported", err)
	}
}

// TestSSHDialer_DialAfterClose verifies a closed dialer does not bring
// the tunnel back.
func TestSSHDialer_DialAfterClose(t *testing.T) {
	d := NewSSHDialer(&tunnel.SSHConfig{Host: "127.0.0.1", Port: 1}, nil)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dial(context.Background(), "tcp4", "127.0.0.1:80"); !errors.Is(err, ncerr.ErrTunnelClosed) {
		t.Errorf("err = %v, want ErrTunnelClosed", err)
	}
}

// TestTCPDialer_Close verifies Close is a no-op and returns nil.
func TestTCPDialer_Close(t *testing.T) {
	d := &TCPDialer{}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestListenConfig_Listen verifies an IPv4 listener on an ephemeral port.
func TestListenConfig_Listen(t *testing.T) {
	ln, err := ListenConfig{}.Listen(context.Background(), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("addr type %T", ln.Addr())
	}
	if addr.IP.To4() == nil || addr.Port == 0 {
		t.Errorf("unexpected listen address %v", addr)
	}
}

// TestListenConfig_PortInUse verifies binding a taken port fails.
func TestListenConfig_PortInUse(t *testing.T) {
	ln, err := ListenConfig{}.Listen(context.Background(), "127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if _, err := (ListenConfig{}).Listen(context.Background(), "127.0.0.1", port); err == nil {
		t.Fatal("expected bind error for a port already in use")
	}
}
