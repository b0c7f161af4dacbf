package radio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// pollTimeout keeps reads from stalling the main loop.
const pollTimeout = time.Millisecond

// Port is the part of serial.Port the driver uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialDriver talks to a radio modem bridged over a serial line. Commands
// are text lines: "L<pipe>" adds a reading pipe and "T<pipe>:<frame>"
// transmits. Everything the modem sends back is raw frame bytes.
type SerialDriver struct {
	mu        sync.Mutex
	port      Port
	listening map[entities.PipeAddress]bool
	closed    bool
	log       *logrus.Entry
}

// OpenSerial opens the configured port at 8N1.
func OpenSerial(conf entities.SerialConfig, log *logrus.Entry) (*SerialDriver, error) {
	mode := &serial.Mode{
		BaudRate: conf.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(conf.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", conf.Port)
	}
	driver, err := NewSerialDriver(port, log)
	if err != nil {
		port.Close()
		return nil, err
	}
	log.Infof("radio modem on %s at %d baud", conf.Port, conf.BaudRate)
	return driver, nil
}

func NewSerialDriver(port Port, log *logrus.Entry) (*SerialDriver, error) {
	if err := port.SetReadTimeout(pollTimeout); err != nil {
		return nil, errors.Wrap(err, "set read timeout")
	}
	return &SerialDriver{
		port:      port,
		listening: make(map[entities.PipeAddress]bool),
		log:       log,
	}, nil
}

func (d *SerialDriver) Listen(pipe entities.PipeAddress) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listening[pipe] {
		return nil
	}
	if err := d.command(fmt.Sprintf("L%010X\n", uint64(pipe))); err != nil {
		return err
	}
	d.listening[pipe] = true
	d.log.Debugf("listening on %s", pipe)
	return nil
}

func (d *SerialDriver) Transmit(pipe entities.PipeAddress, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command(fmt.Sprintf("T%010X:%s\n", uint64(pipe), frame))
}

func (d *SerialDriver) command(line string) error {
	if d.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(d.port, line); err != nil {
		return errors.Wrap(err, "write to radio modem")
	}
	return nil
}

func (d *SerialDriver) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	n, err := d.port.Read(p)
	if err == io.EOF {
		return n, nil
	}
	return n, errors.Wrap(err, "read from radio modem")
}

func (d *SerialDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.port.Close()
}
