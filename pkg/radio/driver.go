package radio

import (
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("radio closed")

// Driver is the transceiver boundary. Read never blocks: it returns 0 bytes
// when nothing has arrived.
type Driver interface {
	Listen(pipe entities.PipeAddress) error
	Transmit(pipe entities.PipeAddress, frame []byte) error
	Read(p []byte) (int, error)
	Close() error
}
