package embd

import (
	"fmt"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	"github.com/pkg/errors"
	"mpu_telemetry/internal/bus"
	"strconv"
)

// embdBus drives one device through the embd I2C host abstraction (Raspberry Pi, BeagleBone).
type embdBus struct {
	num  byte
	addr byte
	i2c  embd.I2CBus
}

var _ bus.Bus = (*embdBus)(nil)

// Open initializes embd's I2C driver and binds the device at addr on the numbered bus.
func Open(name string, addr uint16) (bus.Bus, error) {
	num, err := strconv.ParseUint(name, 10, 8)
	if err != nil {
		return nil, errors.Wrapf(err, "embd needs a numeric bus, got %q", name)
	}
	if addr > 0x7f {
		return nil, fmt.Errorf("invalid i2c address 0x%X", addr)
	}
	if err := embd.InitI2C(); err != nil {
		return nil, errors.Wrap(err, "embd i2c init failed")
	}
	return &embdBus{
		num:  byte(num),
		addr: byte(addr),
		i2c:  embd.NewI2CBus(byte(num)),
	}, nil
}

func (e *embdBus) Read(reg byte, length int) ([]byte, error) {
	buf := make([]byte, length)
	if err := e.i2c.ReadFromReg(e.addr, reg, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *embdBus) Write(reg byte, value byte) error {
	return e.i2c.WriteByteToReg(e.addr, reg, value)
}

func (e *embdBus) Close() error {
	if err := e.i2c.Close(); err != nil {
		return err
	}
	return embd.CloseI2C()
}

func (e *embdBus) String() string {
	return fmt.Sprintf("embd:%d@0x%02X", e.num, e.addr)
}
