package sensor

import (
	"context"
	"time"
)

// RawSample is one atomic burst read of the measurement registers, in device counts.
type RawSample struct {
	AccelX, AccelY, AccelZ int16
	GyroX, GyroY, GyroZ    int16
	Temp                   int16
}

// CalibrationOffsets is the per-axis bias captured at rest. The vertical
// accelerometer offset excludes the gravity component.
type CalibrationOffsets struct {
	AccelX int16 `yaml:"accel_x" json:"accel_x"`
	AccelY int16 `yaml:"accel_y" json:"accel_y"`
	AccelZ int16 `yaml:"accel_z" json:"accel_z"`
	GyroX  int16 `yaml:"gyro_x" json:"gyro_x"`
	GyroY  int16 `yaml:"gyro_y" json:"gyro_y"`
	GyroZ  int16 `yaml:"gyro_z" json:"gyro_z"`
}

// ScaledReading holds physical units: g, degrees/second and degrees Celsius.
type ScaledReading struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
	Temp                   float64
	Timestamp              time.Time
}

// RawSource produces raw samples; the calibration engine only needs this much of a device.
type RawSource interface {
	ReadRaw() (RawSample, error)
}

type Sensor interface {
	RawSource
	Open() error
	Calibrate(ctx context.Context) (CalibrationOffsets, error)
	Read() (ScaledReading, error)
	Offsets() (CalibrationOffsets, bool)
	Close() error
	Name() string
}
