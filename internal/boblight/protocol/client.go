// Package protocol implements the client side of the boblightd line
// protocol over TCP.
package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProtocolVersion is the only server protocol version understood.
const ProtocolVersion = "5"

// DefaultIOTimeout bounds every read and write after the handshake.
const DefaultIOTimeout = 2 * time.Second

var (
	// ErrNotConnected is returned by operations that need an open connection.
	ErrNotConnected = errors.New("not connected")

	// ErrUnexpectedReply is returned when the server answers out of protocol.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Light is one light announced by the server.
type Light struct {
	Name string
	// Scan holds vscan start/end and hscan start/end in percent.
	Scan [4]float64
}

// Client is a boblight protocol client. Pixels set with AddPixel are sent as
// one frame on Flush.
type Client struct {
	IOTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	lights  []Light
	pixels  [][3]int
	lastErr string
}

// NewClient creates a disconnected client.
func NewClient() *Client {
	return &Client{IOTimeout: DefaultIOTimeout}
}

// Open dials host:port and performs the hello/version/lights handshake. The
// whole handshake is bounded by ctx.
func (c *Client) Open(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return c.fail(fmt.Errorf("dial %s: %w", addr, err))
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout()))
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	if err := c.handshake(); err != nil {
		c.closeLocked()
		return c.fail(err)
	}

	conn.SetDeadline(time.Time{})
	return nil
}

func (c *Client) handshake() error {
	if err := c.send("hello\n"); err != nil {
		return err
	}
	if _, err := c.expect("hello"); err != nil {
		return err
	}

	if err := c.send("get version\n"); err != nil {
		return err
	}
	fields, err := c.expect("version")
	if err != nil {
		return err
	}
	if len(fields) < 2 || fields[1] != ProtocolVersion {
		return fmt.Errorf("%w: server version %v, want %s", ErrUnexpectedReply, fields[1:], ProtocolVersion)
	}

	if err := c.send("get lights\n"); err != nil {
		return err
	}
	fields, err = c.expect("lights")
	if err != nil {
		return err
	}
	if len(fields) < 2 {
		return fmt.Errorf("%w: missing light count", ErrUnexpectedReply)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil || count < 0 {
		return fmt.Errorf("%w: bad light count %q", ErrUnexpectedReply, fields[1])
	}

	lights := make([]Light, 0, count)
	for i := 0; i < count; i++ {
		fields, err := c.expect("light")
		if err != nil {
			return err
		}
		light, err := parseLight(fields)
		if err != nil {
			return err
		}
		lights = append(lights, light)
	}

	c.lights = lights
	c.pixels = make([][3]int, count)
	return nil
}

// parseLight parses "light <name> scan <v1> <v2> <h1> <h2>".
func parseLight(fields []string) (Light, error) {
	if len(fields) < 2 {
		return Light{}, fmt.Errorf("%w: light without name", ErrUnexpectedReply)
	}
	light := Light{Name: fields[1]}
	if len(fields) >= 7 && fields[2] == "scan" {
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(fields[3+i], 64)
			if err != nil {
				return Light{}, fmt.Errorf("%w: bad scan value %q", ErrUnexpectedReply, fields[3+i])
			}
			light.Scan[i] = v
		}
	}
	return light, nil
}

// SetPriority sets the client priority on the server (0 highest, 255 lowest).
func (c *Client) SetPriority(priority int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return c.fail(ErrNotConnected)
	}
	if err := c.sendWithDeadline(fmt.Sprintf("set priority %d\n", priority)); err != nil {
		return c.fail(err)
	}
	return nil
}

// LightCount returns the number of lights announced during the handshake.
func (c *Client) LightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lights)
}

// Lights returns the lights announced during the handshake.
func (c *Client) Lights() []Light {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Light(nil), c.lights...)
}

// AddPixel buffers the color for one light. Out of range indices are ignored.
func (c *Client) AddPixel(channel int, rgb [3]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if channel < 0 || channel >= len(c.pixels) {
		return
	}
	for i, v := range rgb {
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		rgb[i] = v
	}
	c.pixels[channel] = rgb
}

// Flush sends the buffered pixels of all lights followed by a sync.
func (c *Client) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return c.fail(ErrNotConnected)
	}

	var b strings.Builder
	for i, light := range c.lights {
		px := c.pixels[i]
		b.WriteString("set light ")
		b.WriteString(light.Name)
		b.WriteString(" rgb ")
		b.WriteString(formatComponent(px[0]))
		b.WriteByte(' ')
		b.WriteString(formatComponent(px[1]))
		b.WriteByte(' ')
		b.WriteString(formatComponent(px[2]))
		b.WriteByte('\n')
	}
	b.WriteString("sync\n")

	if err := c.sendWithDeadline(b.String()); err != nil {
		return c.fail(err)
	}
	return nil
}

// LastError returns the message of the most recent failure.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.lights = nil
	c.pixels = nil
	return err
}

func (c *Client) sendWithDeadline(msg string) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout()))
	defer c.conn.SetWriteDeadline(time.Time{})
	return c.send(msg)
}

func (c *Client) send(msg string) error {
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// expect reads lines until one starts with keyword and returns its fields.
// Empty lines are skipped.
func (c *Client) expect(keyword string) ([]string, error) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", keyword, err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] != keyword {
			return nil, fmt.Errorf("%w: got %q, want %s", ErrUnexpectedReply, strings.TrimSpace(line), keyword)
		}
		return fields, nil
	}
}

func (c *Client) fail(err error) error {
	c.lastErr = err.Error()
	return err
}

func (c *Client) timeout() time.Duration {
	if c.IOTimeout <= 0 {
		return DefaultIOTimeout
	}
	return c.IOTimeout
}

func formatComponent(v int) string {
	return strconv.FormatFloat(float64(v)/255, 'f', 6, 64)
}
