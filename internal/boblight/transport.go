package boblight

import (
	"context"

	"github.com/dokzlo13/boblightd/internal/boblight/protocol"
)

// Transport is the connection to a boblight server. Pixels are buffered by
// AddPixel and only sent on Flush.
type Transport interface {
	Open(ctx context.Context, host string, port int) error
	SetPriority(priority int) error
	LightCount() int
	AddPixel(channel int, rgb [3]int)
	Flush() error
	LastError() string
	Close() error
}

// NewTCPTransport returns a transport speaking the boblight line protocol.
func NewTCPTransport() Transport {
	return protocol.NewClient()
}
