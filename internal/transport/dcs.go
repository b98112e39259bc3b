package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/smazurov/decon/internal/geom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// MIPI DCS address window commands.
const (
	dcsSetColumnAddress byte = 0x2A
	dcsSetPageAddress   byte = 0x2B
)

// dcPin is the Data/Command select line.
type dcPin interface {
	Out(l gpio.Level) error
}

// SPIOptions selects the panel command bus.
type SPIOptions struct {
	// Port is the spireg name, empty for the first bus.
	Port string
	// DC is the gpioreg name of the Data/Command pin.
	DC string
	Hz int64
}

// DCS sends MIPI DCS address window commands over a 4-wire SPI link.
type DCS struct {
	mu     sync.Mutex
	c      conn.Conn
	dc     dcPin
	closer io.Closer
}

// NewDCS wraps an established connection and DC pin.
func NewDCS(c conn.Conn, dc dcPin) *DCS {
	return &DCS{c: c, dc: dc}
}

// OpenSPI initializes the host drivers and connects to the panel.
func OpenSPI(opts SPIOptions) (*DCS, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("dcs: periph host init failed: %w", err)
	}

	port, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("dcs: failed to open SPI port %q: %w", opts.Port, err)
	}

	pin := gpioreg.ByName(opts.DC)
	if pin == nil {
		port.Close()
		return nil, fmt.Errorf("dcs: GPIO pin %q not found", opts.DC)
	}

	hz := opts.Hz
	if hz <= 0 {
		hz = 10_000_000
	}
	c, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("dcs: failed to connect: %w", err)
	}

	d := NewDCS(c, pin)
	d.closer = port
	return d, nil
}

// SetScanRegion programs the column and page address window to r.
func (d *DCS) SetScanRegion(_ context.Context, r geom.Rect) error {
	if r.Empty() {
		return errors.New("dcs: empty scan region")
	}
	if r.Right() > 0x10000 || r.Bottom() > 0x10000 {
		return fmt.Errorf("dcs: scan region %v exceeds 16-bit addressing", r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.send(dcsSetColumnAddress, addressWindow(r.X, r.Right()-1)); err != nil {
		return err
	}
	return d.send(dcsSetPageAddress, addressWindow(r.Y, r.Bottom()-1))
}

// send writes one command byte followed by its parameters.
func (d *DCS) send(cmd byte, params []byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("dcs: failed to select command mode: %w", err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("dcs: command 0x%02X: %w", cmd, err)
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("dcs: failed to select data mode: %w", err)
	}
	if err := d.c.Tx(params, nil); err != nil {
		return fmt.Errorf("dcs: parameters of 0x%02X: %w", cmd, err)
	}
	return nil
}

// addressWindow encodes an inclusive start/end pair big endian.
func addressWindow(start, end int) []byte {
	return []byte{byte(start >> 8), byte(start), byte(end >> 8), byte(end)}
}

func (d *DCS) Name() string {
	return "dcs:" + d.c.String()
}

func (d *DCS) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

var _ ScanRegionSetter = (*DCS)(nil)
var _ ScanRegionSetter = (*Noop)(nil)
