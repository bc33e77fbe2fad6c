package sensor

import (
	"fmt"
	"time"
)

// AccelRange is a full-scale accelerometer setting and its register code.
type AccelRange struct {
	G           int
	Config      byte
	Sensitivity float64 // LSB per g
}

// GyroRange is a full-scale gyroscope setting and its register code.
type GyroRange struct {
	DPS         int
	Config      byte
	Sensitivity float64 // LSB per degree/second
}

var accelRanges = []AccelRange{
	{G: 2, Config: 0x00, Sensitivity: 16384},
	{G: 4, Config: 0x08, Sensitivity: 8192},
	{G: 8, Config: 0x10, Sensitivity: 4096},
	{G: 16, Config: 0x18, Sensitivity: 2048},
}

var gyroRanges = []GyroRange{
	{DPS: 250, Config: 0x00, Sensitivity: 131},
	{DPS: 500, Config: 0x08, Sensitivity: 65.5},
	{DPS: 1000, Config: 0x10, Sensitivity: 32.8},
	{DPS: 2000, Config: 0x18, Sensitivity: 16.4},
}

func AccelRangeFor(g int) (AccelRange, error) {
	for _, r := range accelRanges {
		if r.G == g {
			return r, nil
		}
	}
	return AccelRange{}, fmt.Errorf("unsupported accelerometer range ±%dg", g)
}

func GyroRangeFor(dps int) (GyroRange, error) {
	for _, r := range gyroRanges {
		if r.DPS == dps {
			return r, nil
		}
	}
	return GyroRange{}, fmt.Errorf("unsupported gyroscope range ±%d°/s", dps)
}

// OneG is the raw reading of 1g at rest for the range.
func (r AccelRange) OneG() int16 {
	return int16(r.Sensitivity)
}

// ApplyCalibration subtracts the offsets per axis with 16-bit wraparound. Temperature is untouched.
func ApplyCalibration(raw RawSample, off CalibrationOffsets) RawSample {
	raw.AccelX -= off.AccelX
	raw.AccelY -= off.AccelY
	raw.AccelZ -= off.AccelZ
	raw.GyroX -= off.GyroX
	raw.GyroY -= off.GyroY
	raw.GyroZ -= off.GyroZ
	return raw
}

// TemperatureC converts the raw die temperature register.
func TemperatureC(raw int16) float64 {
	return float64(raw)/340.0 + 36.53
}

// Scale converts a calibrated sample to physical units.
func Scale(raw RawSample, accel AccelRange, gyro GyroRange, ts time.Time) ScaledReading {
	return ScaledReading{
		AccelX:    float64(raw.AccelX) / accel.Sensitivity,
		AccelY:    float64(raw.AccelY) / accel.Sensitivity,
		AccelZ:    float64(raw.AccelZ) / accel.Sensitivity,
		GyroX:     float64(raw.GyroX) / gyro.Sensitivity,
		GyroY:     float64(raw.GyroY) / gyro.Sensitivity,
		GyroZ:     float64(raw.GyroZ) / gyro.Sensitivity,
		Temp:      TemperatureC(raw.Temp),
		Timestamp: ts,
	}
}
