package mpu6050

import (
	"context"
	"encoding/binary"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"mpu_telemetry/internal/bus"
	"mpu_telemetry/internal/sensor"
	"sync"
	"time"
)

const wakeSettle = 100 * time.Millisecond

var (
	ErrNotOpen = errors.New("sensor not open")
	ErrWhoAmI  = errors.New("unexpected WHO_AM_I")
)

type Opt struct {
	Name               string
	AccelRangeG        int
	GyroRangeDPS       int
	CalibrationSamples int
	CalibrationDelay   time.Duration
}

// device owns the bus exclusively; offsets are written once by Calibrate and read by Read.
type device struct {
	name  string
	bus   bus.Bus
	accel sensor.AccelRange
	gyro  sensor.GyroRange
	cal   sensor.Calibration
	now   func() time.Time
	sleep func(time.Duration)

	lock       sync.RWMutex
	open       bool
	calibrated bool
	offsets    sensor.CalibrationOffsets
	whoAmI     byte
}

var _ sensor.Sensor = (*device)(nil)

func NewSensor(b bus.Bus, opt Opt) (sensor.Sensor, error) {
	accel, err := sensor.AccelRangeFor(opt.AccelRangeG)
	if err != nil {
		return nil, err
	}
	gyro, err := sensor.GyroRangeFor(opt.GyroRangeDPS)
	if err != nil {
		return nil, err
	}
	name := opt.Name
	if name == "" {
		name = "MPU6050"
	}
	return &device{
		name:  name,
		bus:   b,
		accel: accel,
		gyro:  gyro,
		cal:   sensor.NewCalibration(opt.CalibrationSamples, opt.CalibrationDelay, accel),
		now:   time.Now,
		sleep: time.Sleep,
	}, nil
}

func (d *device) Name() string {
	return d.name
}

// Probe reads WHO_AM_I.
func Probe(b bus.Bus) (byte, error) {
	data, err := b.Read(RegWhoAmI, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// Open wakes the device and programs the measurement ranges.
func (d *device) Open() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.open {
		return nil
	}

	who, err := Probe(d.bus)
	if err != nil {
		return errors.Wrap(err, "WHO_AM_I read failed, check that the sensor is connected")
	}
	d.whoAmI = who
	if who != WhoAmIValue {
		log.Warnf("%s WHO_AM_I = 0x%02X, expected 0x%02X", d.name, who, WhoAmIValue)
	} else {
		log.Infof("%s WHO_AM_I = 0x%02X", d.name, who)
	}

	if err := d.bus.Write(RegPwrMgmt1, 0x00); err != nil {
		return errors.Wrap(err, "wake failed")
	}
	d.sleep(wakeSettle)

	if err := d.bus.Write(RegAccelConfig, d.accel.Config); err != nil {
		return errors.Wrap(err, "accelerometer range setup failed")
	}
	if err := d.bus.Write(RegGyroConfig, d.gyro.Config); err != nil {
		return errors.Wrap(err, "gyroscope range setup failed")
	}

	log.Infof("%s initialized (±%dg, ±%d°/s) on %s", d.name, d.accel.G, d.gyro.DPS, d.bus)
	d.open = true
	return nil
}

// ReadRaw performs one 14-byte burst read starting at ACCEL_XOUT_H.
func (d *device) ReadRaw() (sensor.RawSample, error) {
	data, err := d.bus.Read(RegAccelXoutH, BurstLength)
	if err != nil {
		return sensor.RawSample{}, err
	}
	return DecodeBurst(data)
}

// DecodeBurst splits a burst read into signed words.
func DecodeBurst(data []byte) (sensor.RawSample, error) {
	if len(data) < BurstLength {
		return sensor.RawSample{}, fmt.Errorf("burst too short: %d bytes", len(data))
	}
	word := func(i int) int16 { return int16(binary.BigEndian.Uint16(data[i:])) }
	return sensor.RawSample{
		AccelX: word(0),
		AccelY: word(2),
		AccelZ: word(4),
		Temp:   word(6),
		GyroX:  word(8),
		GyroY:  word(10),
		GyroZ:  word(12),
	}, nil
}

// Calibrate runs the calibration window once. Later calls return the stored offsets.
func (d *device) Calibrate(ctx context.Context) (sensor.CalibrationOffsets, error) {
	d.lock.RLock()
	open, calibrated, offsets := d.open, d.calibrated, d.offsets
	d.lock.RUnlock()
	if !open {
		return sensor.CalibrationOffsets{}, ErrNotOpen
	}
	if calibrated {
		return offsets, nil
	}

	offsets, err := d.cal.Run(ctx, d)
	if err != nil {
		return sensor.CalibrationOffsets{}, err
	}

	d.lock.Lock()
	d.offsets = offsets
	d.calibrated = true
	d.lock.Unlock()
	return offsets, nil
}

func (d *device) Offsets() (sensor.CalibrationOffsets, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.offsets, d.calibrated
}

// Read returns a calibrated, scaled reading. It refuses to run before calibration.
func (d *device) Read() (sensor.ScaledReading, error) {
	offsets, ok := d.Offsets()
	if !ok {
		return sensor.ScaledReading{}, sensor.ErrNotCalibrated
	}
	raw, err := d.ReadRaw()
	if err != nil {
		return sensor.ScaledReading{}, err
	}
	return sensor.Scale(sensor.ApplyCalibration(raw, offsets), d.accel, d.gyro, d.now()), nil
}

// Close puts the device to sleep and releases the bus.
func (d *device) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.open {
		if err := d.bus.Write(RegPwrMgmt1, PwrMgmt1Sleep); err != nil {
			log.Warnln("cannot put sensor to sleep:", err)
		}
		d.open = false
	}
	log.Infof("%s closed", d.name)
	return d.bus.Close()
}
