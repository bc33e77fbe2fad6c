package periph

import (
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"mpu_telemetry/internal/bus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// periphBus drives one device through the periph.io I2C registry (Linux /dev/i2c-*).
type periphBus struct {
	name   string
	closer i2c.BusCloser
	dev    *i2c.Dev
}

var _ bus.Bus = (*periphBus)(nil)

// Open initializes the periph host drivers and opens the named bus for the device at addr.
// A zero frequency keeps the bus speed chosen by the host.
func Open(name string, addr uint16, frequencyHz int64) (bus.Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init failed")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "i2c open failed on bus %s", name)
	}
	if frequencyHz > 0 {
		if err := b.SetSpeed(physic.Frequency(frequencyHz) * physic.Hertz); err != nil {
			log.Warnf("i2c bus %s: cannot set speed to %d Hz: %v", name, frequencyHz, err)
		}
	}
	log.Debugf("opened i2c bus %s for device 0x%02X", name, addr)
	return &periphBus{
		name:   name,
		closer: b,
		dev:    &i2c.Dev{Bus: b, Addr: addr},
	}, nil
}

func (p *periphBus) Read(reg byte, length int) ([]byte, error) {
	r := make([]byte, length)
	if err := p.dev.Tx([]byte{reg}, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *periphBus) Write(reg byte, value byte) error {
	return p.dev.Tx([]byte{reg, value}, nil)
}

func (p *periphBus) Close() error {
	return p.closer.Close()
}

func (p *periphBus) String() string {
	return fmt.Sprintf("periph:%s@0x%02X", p.name, p.dev.Addr)
}
