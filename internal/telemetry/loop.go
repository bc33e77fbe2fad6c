package telemetry

import (
	"context"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"mpu_telemetry/internal/publisher"
	"mpu_telemetry/internal/sensor"
	"sync"
	"time"
)

var (
	ErrCalibration = errors.New("calibration failed")
	ErrRead        = errors.New("sensor read failed")
)

type Opt struct {
	DataTopic     string
	CommandTopic  string
	ResponseTopic string
	QoS           byte
	Retain        bool
}

// Status is a point-in-time view of the loop for the control API.
type Status struct {
	Connection  string                     `json:"connection"`
	IntervalMs  uint32                     `json:"interval"`
	Calibrated  bool                       `json:"calibrated"`
	Offsets     *sensor.CalibrationOffsets `json:"offsets,omitempty"`
	Cycles      uint64                     `json:"cycles"`
	Published   uint64                     `json:"published"`
	Skipped     uint64                     `json:"skipped"`
	ReadErrors  uint64                     `json:"read_errors"`
	Commands    uint64                     `json:"commands"`
	LastReading *Payload                   `json:"last_reading,omitempty"`
}

// Loop reads the sensor and publishes one payload per period. Inbound commands are handled
// on a separate goroutine and only touch the shared Interval.
type Loop struct {
	opt      Opt
	sensor   sensor.Sensor
	client   publisher.Client
	interval *Interval
	log      *log.Entry

	lock      sync.RWMutex
	stats     Status
	observers []func([]byte)
}

func NewLoop(s sensor.Sensor, c publisher.Client, interval *Interval, opt Opt) *Loop {
	return &Loop{
		opt:      opt,
		sensor:   s,
		client:   c,
		interval: interval,
		log:      log.WithField("component", "telemetry"),
	}
}

func (l *Loop) Interval() *Interval {
	return l.interval
}

// OnPublish registers fn to receive every payload handed to the client.
func (l *Loop) OnPublish(fn func([]byte)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.observers = append(l.observers, fn)
}

// Run brings the sensor up, calibrates it once and then cycles until ctx is cancelled.
// A calibration failure ends Run with ErrCalibration; read failures only skip a cycle.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.processEvents(ctx)
	}()
	defer wg.Wait()

	if err := l.sensor.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrCalibration, err)
	}
	if _, err := l.sensor.Calibrate(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.log.Errorln("calibration failed, halting telemetry:", err)
		return fmt.Errorf("%w: %w", ErrCalibration, err)
	}

	l.log.Infof("telemetry started with interval: %d ms", l.interval.Get())
	for {
		l.cycle()

		// a new interval takes effect from the next sleep
		timer := time.NewTimer(l.interval.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			l.log.Infoln("telemetry stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) cycle() {
	l.lock.Lock()
	l.stats.Cycles++
	l.lock.Unlock()

	reading, err := l.sensor.Read()
	if err != nil {
		l.log.Errorln(fmt.Errorf("%w: %w", ErrRead, err))
		l.lock.Lock()
		l.stats.ReadErrors++
		l.lock.Unlock()
		return
	}

	p := NewPayload(l.sensor.Name(), reading)
	data, err := p.Marshal()
	if err != nil {
		l.log.Errorln("cannot encode payload:", err)
		return
	}

	id := l.client.Publish(l.opt.DataTopic, data, l.opt.QoS, l.opt.Retain)

	l.lock.Lock()
	l.stats.LastReading = &p
	if id == publisher.PublishFailed {
		l.stats.Skipped++
	} else {
		l.stats.Published++
	}
	observers := l.observers
	l.lock.Unlock()

	if id == publisher.PublishFailed {
		return
	}
	l.log.Debugf("published %s data (msg_id=%d)", l.sensor.Name(), id)
	l.log.Debugf("accel(g): X=%s Y=%s Z=%s | gyro(°/s): X=%s Y=%s Z=%s | temp: %s°C",
		p.Accel.X, p.Accel.Y, p.Accel.Z, p.Gyro.X, p.Gyro.Y, p.Gyro.Z, p.Temp)
	for _, fn := range observers {
		fn(data)
	}
}

func (l *Loop) processEvents(ctx context.Context) {
	events := l.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			l.handleEvent(ev)
		}
	}
}

func (l *Loop) handleEvent(ev publisher.Event) {
	switch ev.Kind {
	case publisher.EventConnected:
		if err := l.client.Subscribe(l.opt.CommandTopic, l.opt.QoS); err != nil {
			l.log.Errorf("cannot subscribe to %s: %v", l.opt.CommandTopic, err)
		}
	case publisher.EventDisconnected:
		l.log.Warnln("broker disconnected, readings are dropped until reconnect")
	case publisher.EventSubscribed:
		l.log.Debugln("subscription acknowledged:", ev.Topic)
	case publisher.EventError:
		l.log.Errorf("client error (%s): %v", ev.ErrorKind, ev.Err)
	case publisher.EventData:
		if ev.Topic != l.opt.CommandTopic {
			l.log.Debugln("ignoring message on", ev.Topic)
			return
		}
		l.HandleCommand(ev.Payload)
	}
}

// HandleCommand applies an inbound command payload. Malformed commands are logged and not acknowledged.
func (l *Loop) HandleCommand(payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			l.log.Debugf("ignoring command %q", payload)
		} else {
			l.log.Warnln("command rejected:", err)
		}
		return
	}
	l.lock.Lock()
	l.stats.Commands++
	l.lock.Unlock()
	l.SetInterval(cmd.Ms)
}

// SetInterval clamps and stores ms, publishes the acknowledgement and returns the effective interval.
func (l *Loop) SetInterval(ms uint32) uint32 {
	effective := l.interval.Set(ms)
	if effective != ms {
		l.log.Warnf("interval %d ms too short, using minimum %d ms", ms, effective)
	} else {
		l.log.Infof("publish interval changed to %d ms", effective)
	}

	ack, err := MarshalAck(effective)
	if err != nil {
		l.log.Errorln("cannot encode acknowledgement:", err)
		return effective
	}
	l.client.Publish(l.opt.ResponseTopic, ack, l.opt.QoS, false)
	return effective
}

func (l *Loop) Status() Status {
	l.lock.RLock()
	s := l.stats
	l.lock.RUnlock()

	s.Connection = l.client.State().String()
	s.IntervalMs = l.interval.Get()
	if off, ok := l.sensor.Offsets(); ok {
		s.Calibrated = true
		s.Offsets = &off
	}
	return s
}

// Shutdown drops the command subscription, stops the client and then releases the sensor bus.
func (l *Loop) Shutdown() {
	if err := l.client.Unsubscribe(l.opt.CommandTopic); err != nil {
		l.log.Debugln("unsubscribe skipped:", err)
	}
	l.client.Stop()
	if err := l.sensor.Close(); err != nil {
		l.log.Errorln("cannot close sensor:", err)
	}
}
