package protocol

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer speaks just enough boblightd to exercise the client.
type fakeServer struct {
	ln      net.Listener
	version string
	lights  []string

	mu    sync.Mutex
	lines []string
	conns []net.Conn
}

func newFakeServer(t *testing.T, version string, lights ...string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, version: version, lights: lights}
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()

		switch {
		case line == "hello":
			conn.Write([]byte("hello\n"))
		case line == "get version":
			conn.Write([]byte("version " + s.version + "\n"))
		case line == "get lights":
			var b strings.Builder
			b.WriteString("lights ")
			b.WriteString(strconv.Itoa(len(s.lights)))
			b.WriteString("\n")
			for _, name := range s.lights {
				b.WriteString("light " + name + " scan 0.0 100.0 0.0 100.0\n")
			}
			conn.Write([]byte(b.String()))
		}
	}
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// waitFor polls until a received line satisfies match.
func (s *fakeServer) waitFor(t *testing.T, match func(string) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, l := range s.received() {
			if match(l) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("line not received; got %q", s.received())
}

func (s *fakeServer) close() {
	s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

func openClient(t *testing.T, s *fakeServer) *Client {
	t.Helper()
	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Open(ctx, "127.0.0.1", s.port()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Handshake(t *testing.T) {
	s := newFakeServer(t, "5", "left", "top", "right")
	c := openClient(t, s)

	if got := c.LightCount(); got != 3 {
		t.Fatalf("LightCount() = %d, want 3", got)
	}
	lights := c.Lights()
	if lights[1].Name != "top" {
		t.Errorf("Lights()[1].Name = %q, want %q", lights[1].Name, "top")
	}
	if lights[0].Scan != [4]float64{0, 100, 0, 100} {
		t.Errorf("Lights()[0].Scan = %v", lights[0].Scan)
	}
}

func TestClient_VersionMismatch(t *testing.T) {
	s := newFakeServer(t, "4", "left")
	c := NewClient()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Open(ctx, "127.0.0.1", s.port())
	if !errors.Is(err, ErrUnexpectedReply) {
		t.Fatalf("Open() error = %v, want ErrUnexpectedReply", err)
	}
	if c.LastError() == "" {
		t.Error("LastError() should describe the failure")
	}
	if c.LightCount() != 0 {
		t.Errorf("LightCount() = %d after failed open, want 0", c.LightCount())
	}
}

func TestClient_DialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Open(ctx, "127.0.0.1", port); err == nil {
		t.Fatal("Open() on closed port should fail")
	}
	if !strings.Contains(c.LastError(), "dial") {
		t.Errorf("LastError() = %q, want dial error", c.LastError())
	}
}

func TestClient_FlushFrame(t *testing.T) {
	s := newFakeServer(t, "5", "left", "right")
	c := openClient(t, s)

	c.AddPixel(0, [3]int{255, 0, 0})
	c.AddPixel(1, [3]int{0, 300, -5})
	c.AddPixel(7, [3]int{1, 2, 3})

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	s.waitFor(t, func(l string) bool { return l == "sync" })

	lines := s.received()
	want := map[string]bool{
		"set light left rgb 1.000000 0.000000 0.000000":  false,
		"set light right rgb 0.000000 1.000000 0.000000": false,
	}
	for _, l := range lines {
		if _, ok := want[l]; ok {
			want[l] = true
		}
	}
	for l, seen := range want {
		if !seen {
			t.Errorf("missing frame line %q in %q", l, lines)
		}
	}
}

func TestClient_SetPriority(t *testing.T) {
	s := newFakeServer(t, "5", "left")
	c := openClient(t, s)

	if err := c.SetPriority(5); err != nil {
		t.Fatalf("SetPriority() error = %v", err)
	}
	s.waitFor(t, func(l string) bool { return l == "set priority 5" })
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient()

	if err := c.Flush(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Flush() error = %v, want ErrNotConnected", err)
	}
	if err := c.SetPriority(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SetPriority() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on closed client error = %v", err)
	}
}

func TestClient_FlushAfterClose(t *testing.T) {
	s := newFakeServer(t, "5", "left")
	c := openClient(t, s)

	c.Close()
	if err := c.Flush(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Flush() after Close error = %v, want ErrNotConnected", err)
	}
}
