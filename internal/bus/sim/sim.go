package sim

import (
	"encoding/binary"
	"fmt"
	"github.com/pkg/errors"
	"math/rand"
	"mpu_telemetry/internal/bus"
	"mpu_telemetry/internal/sensor/mpu6050"
	"sync"
	"time"
)

// Opt describes the simulated device at rest: per-axis raw bias (accel x/y/z, gyro x/y/z),
// uniform noise amplitude in counts and the raw temperature word.
type Opt struct {
	Bias    [6]int16
	Noise   int16
	TempRaw int16
}

// Device simulates the MPU6050 register file, lying flat with Z up.
type Device struct {
	opt Opt
	rnd *rand.Rand

	mu     sync.Mutex
	regs   [128]byte
	closed bool
}

var _ bus.Bus = (*Device)(nil)

func New(opt Opt) *Device {
	d := &Device{
		opt: opt,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	d.regs[mpu6050.RegWhoAmI] = mpu6050.WhoAmIValue
	d.regs[mpu6050.RegPwrMgmt1] = mpu6050.PwrMgmt1Sleep
	return d
}

func (d *Device) oneG() int16 {
	// ACCEL_CONFIG bits 4:3 select ±2/4/8/16g
	return int16(16384 >> ((d.regs[mpu6050.RegAccelConfig] >> 3) & 0x03))
}

func (d *Device) noise() int16 {
	if d.opt.Noise <= 0 {
		return 0
	}
	n := int(d.opt.Noise)
	return int16(d.rnd.Intn(2*n+1) - n)
}

func (d *Device) burst() []byte {
	words := []int16{
		d.opt.Bias[0] + d.noise(),
		d.opt.Bias[1] + d.noise(),
		d.oneG() + d.opt.Bias[2] + d.noise(),
		d.opt.TempRaw,
		d.opt.Bias[3] + d.noise(),
		d.opt.Bias[4] + d.noise(),
		d.opt.Bias[5] + d.noise(),
	}
	out := make([]byte, mpu6050.BurstLength)
	for i, w := range words {
		binary.BigEndian.PutUint16(out[2*i:], uint16(w))
	}
	return out
}

func (d *Device) Read(reg byte, length int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, bus.ErrClosed
	}
	if int(reg)+length > len(d.regs) {
		return nil, fmt.Errorf("read past register 0x7F")
	}
	if reg == mpu6050.RegAccelXoutH && length <= mpu6050.BurstLength {
		if d.regs[mpu6050.RegPwrMgmt1]&mpu6050.PwrMgmt1Sleep != 0 {
			// asleep: the data registers hold zeros
			return make([]byte, length), nil
		}
		return d.burst()[:length], nil
	}
	out := make([]byte, length)
	copy(out, d.regs[reg:int(reg)+length])
	return out, nil
}

func (d *Device) Write(reg byte, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return bus.ErrClosed
	}
	if reg == mpu6050.RegWhoAmI {
		return errors.New("WHO_AM_I is read-only")
	}
	if int(reg) >= len(d.regs) {
		return fmt.Errorf("no register 0x%02X", reg)
	}
	d.regs[reg] = value
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) String() string {
	return "sim:mpu6050"
}
