package serialmux

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is a byte stream to the board: a serial device in the car, a fake in
// tests.
type Port interface {
	io.ReadWriteCloser
}

// DefaultBaudRate is the board firmware's line rate.
const DefaultBaudRate = 115200

var baudRates = map[int]bool{
	9600: true, 19200: true, 38400: true, 57600: true, 115200: true, 230400: true,
}

// PortOptions configures the serial device. The board always frames 8N1;
// only the rate is negotiable.
type PortOptions struct {
	BaudRate int `json:"baud_rate"`
}

// Mode returns the serial mode for o, defaulting an unset rate.
func (o PortOptions) Mode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if !baudRates[baud] {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, nil
}

// Open opens the board's serial device at path.
func Open(path string, opts PortOptions) (*Mux, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open board port %s: %w", path, err)
	}
	diagf("opened %s at %d baud", path, mode.BaudRate)
	return New(port), nil
}
