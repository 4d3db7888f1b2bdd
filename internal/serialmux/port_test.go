package serialmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptionsMode(t *testing.T) {
	m, err := PortOptions{}.Mode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}, m)

	m, err = PortOptions{BaudRate: 57600}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 57600, m.BaudRate)

	_, err = PortOptions{BaudRate: 12345}.Mode()
	assert.Error(t, err)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open("/dev/lanepilot-no-such-board", PortOptions{})
	assert.Error(t, err)

	_, err = Open("/dev/null", PortOptions{BaudRate: 7})
	assert.ErrorContains(t, err, "unsupported baud rate")
}
