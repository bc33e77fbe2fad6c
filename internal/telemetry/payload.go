package telemetry

import (
	"encoding/json"
	"mpu_telemetry/internal/sensor"
	"strconv"
)

type Axes struct {
	X json.Number `json:"x"`
	Y json.Number `json:"y"`
	Z json.Number `json:"z"`
}

// Payload is the wire schema of one published reading. Numbers are pre-rounded:
// acceleration to 3 decimals, angular rate and temperature to 2.
type Payload struct {
	Sensor    string      `json:"sensor"`
	Accel     Axes        `json:"accel"`
	Gyro      Axes        `json:"gyro"`
	Temp      json.Number `json:"temp"`
	Timestamp int64       `json:"timestamp"`
}

type Ack struct {
	Status   string `json:"status"`
	Interval uint32 `json:"interval"`
}

func fixed(v float64, prec int) json.Number {
	return json.Number(strconv.FormatFloat(v, 'f', prec, 64))
}

func NewPayload(name string, r sensor.ScaledReading) Payload {
	return Payload{
		Sensor:    name,
		Accel:     Axes{X: fixed(r.AccelX, 3), Y: fixed(r.AccelY, 3), Z: fixed(r.AccelZ, 3)},
		Gyro:      Axes{X: fixed(r.GyroX, 2), Y: fixed(r.GyroY, 2), Z: fixed(r.GyroZ, 2)},
		Temp:      fixed(r.Temp, 2),
		Timestamp: r.Timestamp.Unix(),
	}
}

func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func MarshalAck(interval uint32) ([]byte, error) {
	return json.Marshal(Ack{Status: "ok", Interval: interval})
}
