package radio

import (
	"sync"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
)

// Transmission is one frame sent through a MockDriver.
type Transmission struct {
	Pipe  entities.PipeAddress
	Frame string
}

// MockDriver records what a node sends and serves injected bytes. Drivers
// attached to the same Air hear each other's transmissions on the pipes they
// listen on.
type MockDriver struct {
	mu        sync.Mutex
	air       *Air
	listening map[entities.PipeAddress]bool
	rx        []byte
	txLog     []Transmission
	closed    bool
}

func NewMockDriver() *MockDriver {
	return &MockDriver{listening: make(map[entities.PipeAddress]bool)}
}

func (d *MockDriver) Listen(pipe entities.PipeAddress) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.listening[pipe] = true
	return nil
}

func (d *MockDriver) Transmit(pipe entities.PipeAddress, frame []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.txLog = append(d.txLog, Transmission{Pipe: pipe, Frame: string(frame)})
	air := d.air
	d.mu.Unlock()
	if air != nil {
		air.carry(d, pipe, frame)
	}
	return nil
}

func (d *MockDriver) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	n := copy(p, d.rx)
	d.rx = d.rx[n:]
	return n, nil
}

func (d *MockDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Inject queues bytes as if they had been received.
func (d *MockDriver) Inject(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = append(d.rx, data...)
}

func (d *MockDriver) Listening(pipe entities.PipeAddress) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening[pipe]
}

// Sent returns a copy of every transmission so far.
func (d *MockDriver) Sent() []Transmission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Transmission, len(d.txLog))
	copy(out, d.txLog)
	return out
}

// Air connects mock drivers into one shared channel.
type Air struct {
	mu      sync.Mutex
	drivers []*MockDriver
}

func NewAir() *Air {
	return &Air{}
}

// Attach returns a new driver on this channel.
func (a *Air) Attach() *MockDriver {
	d := NewMockDriver()
	d.air = a
	a.mu.Lock()
	a.drivers = append(a.drivers, d)
	a.mu.Unlock()
	return d
}

func (a *Air) carry(from *MockDriver, pipe entities.PipeAddress, frame []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.drivers {
		if d == from || !d.Listening(pipe) {
			continue
		}
		d.Inject(frame)
	}
}
