package sensor

import (
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"time"
)

const DefaultCalibrationSamples = 200
const DefaultCalibrationDelay = 5 * time.Millisecond

var ErrNotCalibrated = errors.New("sensor not calibrated")

// Calibration averages a window of raw samples taken with the device at rest, Z axis up.
type Calibration struct {
	Samples int
	Delay   time.Duration
	OneG    int16
}

func NewCalibration(samples int, delay time.Duration, accel AccelRange) Calibration {
	if samples <= 0 {
		samples = DefaultCalibrationSamples
	}
	return Calibration{Samples: samples, Delay: delay, OneG: accel.OneG()}
}

// Run collects c.Samples readings from src, waiting c.Delay after each one, and returns
// the truncated per-axis mean. The first read error aborts the whole window.
func (c Calibration) Run(ctx context.Context, src RawSource) (CalibrationOffsets, error) {
	log.Infof("calibrating over %d samples, keep the sensor level and still", c.Samples)

	var sum [6]int64
	for i := 0; i < c.Samples; i++ {
		raw, err := src.ReadRaw()
		if err != nil {
			return CalibrationOffsets{}, errors.Wrapf(err, "calibration sample %d", i)
		}
		sum[0] += int64(raw.AccelX)
		sum[1] += int64(raw.AccelY)
		sum[2] += int64(raw.AccelZ)
		sum[3] += int64(raw.GyroX)
		sum[4] += int64(raw.GyroY)
		sum[5] += int64(raw.GyroZ)

		if c.Delay > 0 {
			timer := time.NewTimer(c.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return CalibrationOffsets{}, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return CalibrationOffsets{}, err
		}
	}

	n := int64(c.Samples)
	off := CalibrationOffsets{
		AccelX: int16(sum[0] / n),
		AccelY: int16(sum[1] / n),
		AccelZ: int16(sum[2]/n - int64(c.OneG)),
		GyroX:  int16(sum[3] / n),
		GyroY:  int16(sum[4] / n),
		GyroZ:  int16(sum[5] / n),
	}
	log.Infof("accel offsets: X=%d Y=%d Z=%d", off.AccelX, off.AccelY, off.AccelZ)
	log.Infof("gyro offsets: X=%d Y=%d Z=%d", off.GyroX, off.GyroY, off.GyroZ)
	return off, nil
}
