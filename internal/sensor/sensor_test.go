package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sequenceSource struct {
	samples []RawSample
	idx     int
	failAt  int
	err     error
}

func (s *sequenceSource) ReadRaw() (RawSample, error) {
	if s.err != nil && s.idx == s.failAt {
		return RawSample{}, s.err
	}
	r := s.samples[s.idx%len(s.samples)]
	s.idx++
	return r, nil
}

func accel2g(t *testing.T) AccelRange {
	r, err := AccelRangeFor(2)
	require.NoError(t, err)
	return r
}

func gyro250(t *testing.T) GyroRange {
	r, err := GyroRangeFor(250)
	require.NoError(t, err)
	return r
}

func TestCalibration_ConstantBias(t *testing.T) {
	cases := []RawSample{
		{AccelX: 12, AccelY: -40, AccelZ: 16500, GyroX: -7, GyroY: 3, GyroZ: 250},
		{AccelX: 0, AccelY: 0, AccelZ: 16384, GyroX: 0, GyroY: 0, GyroZ: 0},
		{AccelX: -300, AccelY: 1000, AccelZ: 16000, GyroX: 32767, GyroY: -32768, GyroZ: 1},
	}
	for _, bias := range cases {
		src := &sequenceSource{samples: []RawSample{bias}}
		cal := NewCalibration(200, 0, accel2g(t))

		off, err := cal.Run(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, 200, src.idx)
		assert.Equal(t, CalibrationOffsets{
			AccelX: bias.AccelX,
			AccelY: bias.AccelY,
			AccelZ: bias.AccelZ - 16384,
			GyroX:  bias.GyroX,
			GyroY:  bias.GyroY,
			GyroZ:  bias.GyroZ,
		}, off)
	}
}

func TestCalibration_TruncatesTowardZero(t *testing.T) {
	// mean of {1, 2} is 1.5 and of {-1, -2} is -1.5; both truncate
	src := &sequenceSource{samples: []RawSample{
		{AccelX: 1, GyroX: -1, AccelZ: 16384},
		{AccelX: 2, GyroX: -2, AccelZ: 16385},
	}}
	off, err := NewCalibration(2, 0, accel2g(t)).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int16(1), off.AccelX)
	assert.Equal(t, int16(-1), off.GyroX)
	assert.Equal(t, int16(0), off.AccelZ)
}

func TestCalibration_Idempotent(t *testing.T) {
	samples := []RawSample{
		{AccelX: 10, AccelY: 20, AccelZ: 16400, GyroX: 1, GyroY: 2, GyroZ: 3},
		{AccelX: 14, AccelY: 18, AccelZ: 16410, GyroX: 3, GyroY: 0, GyroZ: 5},
	}
	cal := NewCalibration(200, 0, accel2g(t))
	first, err := cal.Run(context.Background(), &sequenceSource{samples: samples})
	require.NoError(t, err)
	second, err := cal.Run(context.Background(), &sequenceSource{samples: samples})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalibration_FailsFast(t *testing.T) {
	busErr := errors.New("no ack")
	src := &sequenceSource{samples: []RawSample{{}}, failAt: 17, err: busErr}

	_, err := NewCalibration(200, 0, accel2g(t)).Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, busErr))
	assert.Contains(t, err.Error(), "calibration sample 17")
	assert.Equal(t, 17, src.idx)
}

func TestCalibration_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &sequenceSource{samples: []RawSample{{}}}

	_, err := NewCalibration(200, time.Millisecond, accel2g(t)).Run(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.idx)
}

func TestScale_Linear(t *testing.T) {
	accel, gyro := accel2g(t), gyro250(t)
	base := RawSample{AccelX: 100, AccelY: -50, AccelZ: 16000, GyroX: 10, GyroY: -20, GyroZ: 30}

	for _, off := range []CalibrationOffsets{{}, {AccelX: 33, AccelZ: 116, GyroY: -12}} {
		for _, delta := range []int16{1, 131, -500, 4096} {
			moved := base
			moved.AccelX += delta
			moved.GyroY += delta

			a := Scale(ApplyCalibration(base, off), accel, gyro, time.Time{})
			b := Scale(ApplyCalibration(moved, off), accel, gyro, time.Time{})
			assert.InDelta(t, float64(delta)/16384, b.AccelX-a.AccelX, 1e-12)
			assert.InDelta(t, float64(delta)/131, b.GyroY-a.GyroY, 1e-12)
			assert.Equal(t, a.AccelY, b.AccelY)
		}
	}
}

func TestScale_RestingZ(t *testing.T) {
	// calibrated at raw z = 16500 at rest, offset z = 116
	src := &sequenceSource{samples: []RawSample{{AccelZ: 16500}}}
	off, err := NewCalibration(200, 0, accel2g(t)).Run(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, int16(116), off.AccelZ)

	r := Scale(ApplyCalibration(RawSample{AccelZ: 16600}, off), accel2g(t), gyro250(t), time.Time{})
	assert.InDelta(t, 16484.0/16384.0, r.AccelZ, 1e-9)
}

func TestTemperatureC(t *testing.T) {
	assert.InDelta(t, 36.53, TemperatureC(0), 1e-9)
	assert.InDelta(t, 36.53+340.0/340.0, TemperatureC(340), 1e-9)
	assert.InDelta(t, 29.1770588, TemperatureC(-2500), 1e-6)
}

func TestRanges(t *testing.T) {
	r, err := AccelRangeFor(16)
	require.NoError(t, err)
	assert.Equal(t, byte(0x18), r.Config)
	assert.Equal(t, int16(2048), r.OneG())

	g, err := GyroRangeFor(500)
	require.NoError(t, err)
	assert.Equal(t, 65.5, g.Sensitivity)

	_, err = AccelRangeFor(3)
	assert.Error(t, err)
	_, err = GyroRangeFor(125)
	assert.Error(t, err)
}

func TestApplyCalibration_Wraps(t *testing.T) {
	raw := ApplyCalibration(RawSample{AccelX: -32768, Temp: 77}, CalibrationOffsets{AccelX: 1})
	assert.Equal(t, int16(32767), raw.AccelX)
	assert.Equal(t, int16(77), raw.Temp)
}
