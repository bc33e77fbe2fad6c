package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"mpu_telemetry/internal/bus"
	embdbus "mpu_telemetry/internal/bus/embd"
	periphbus "mpu_telemetry/internal/bus/periph"
	"mpu_telemetry/internal/bus/sim"
	"mpu_telemetry/internal/config"
	httpctl "mpu_telemetry/internal/controller/http"
	"mpu_telemetry/internal/publisher"
	"mpu_telemetry/internal/publisher/mqtt"
	"mpu_telemetry/internal/sensor"
	"mpu_telemetry/internal/sensor/mpu6050"
	"mpu_telemetry/internal/telemetry"
	"mpu_telemetry/pkg/version"
)

type mainApp struct {
	name string
	cmd  *cobra.Command
	args []string
	opt  *config.TelemetryAppOpt
}

func (a *mainApp) GetOpt() *config.TelemetryAppOpt {
	return a.opt
}

func (a *mainApp) SetOpt(opt *config.TelemetryAppOpt) { a.opt = opt }

// OpenBus opens the configured I2C backend behind a serializing, time-bounded transport.
func OpenBus(opt *config.TelemetryAppOpt) (bus.Bus, error) {
	var (
		b   bus.Bus
		err error
	)
	switch opt.I2C.Driver {
	case "periph":
		b, err = periphbus.Open(opt.I2C.Bus, opt.I2C.Address, opt.I2C.FrequencyHz)
	case "embd":
		b, err = embdbus.Open(opt.I2C.Bus, opt.I2C.Address)
	case "sim":
		b = sim.New(sim.Opt{Bias: opt.Sim.Bias, Noise: opt.Sim.Noise, TempRaw: opt.Sim.TempRaw})
	default:
		err = fmt.Errorf("unknown i2c driver %q", opt.I2C.Driver)
	}
	if err != nil {
		return nil, err
	}
	return bus.NewTransport(b, time.Duration(opt.I2C.TimeoutMs)*time.Millisecond), nil
}

func NewSensor(b bus.Bus, opt *config.TelemetryAppOpt) (sensor.Sensor, error) {
	return mpu6050.NewSensor(b, mpu6050.Opt{
		Name:               opt.Sensor.Name,
		AccelRangeG:        opt.Sensor.AccelRangeG,
		GyroRangeDPS:       opt.Sensor.GyroRangeDPS,
		CalibrationSamples: opt.Sensor.CalibrationSamples,
		CalibrationDelay:   time.Duration(opt.Sensor.CalibrationDelayMs) * time.Millisecond,
	})
}

func NewClient(opt *config.TelemetryAppOpt) publisher.Client {
	return mqtt.NewClient(mqtt.Opt{
		Broker:      opt.MQTT.Broker,
		ClientID:    opt.MQTT.ClientID,
		Username:    opt.MQTT.Username,
		Password:    opt.MQTT.Password,
		KeepAlive:   time.Duration(opt.MQTT.KeepAliveS) * time.Second,
		EventBuffer: opt.MQTT.EventBuffer,
	})
}

func NewLoop(s sensor.Sensor, c publisher.Client, opt *config.TelemetryAppOpt) *telemetry.Loop {
	return telemetry.NewLoop(s, c, telemetry.NewInterval(opt.Telemetry.IntervalMs), telemetry.Opt{
		DataTopic:     opt.MQTT.DataTopic,
		CommandTopic:  opt.MQTT.CommandTopic,
		ResponseTopic: opt.MQTT.ResponseTopic,
		QoS:           opt.MQTT.QoS,
		Retain:        opt.MQTT.Retain,
	})
}

func (a *mainApp) ProbeSensor() error {
	b, err := OpenBus(a.opt)
	if err != nil {
		log.Errorln(err)
		return err
	}
	defer func() { _ = b.Close() }()

	log.Infof("Probing %s at 0x%02X on %s...", a.opt.Sensor.Name, a.opt.I2C.Address, b)
	who, err := mpu6050.Probe(b)
	if err != nil {
		log.Errorln(err)
		return err
	}
	if who != mpu6050.WhoAmIValue {
		err = errors.Wrapf(mpu6050.ErrWhoAmI, "got 0x%02X, expected 0x%02X", who, mpu6050.WhoAmIValue)
		log.Errorln(err)
		return err
	}
	fmt.Printf("- %s WHO_AM_I=0x%02X on %s\n", a.opt.Sensor.Name, who, b)
	return nil
}

// Calibrate brings the sensor up, runs one calibration window and prints the offsets as yaml.
func (a *mainApp) Calibrate() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := OpenBus(a.opt)
	if err != nil {
		log.Errorln(err)
		return err
	}
	s, err := NewSensor(b, a.opt)
	if err != nil {
		_ = b.Close()
		log.Errorln(err)
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.Open(); err != nil {
		log.Errorln(err)
		return err
	}
	offsets, err := s.Calibrate(ctx)
	if err != nil {
		log.Errorln(err)
		return err
	}
	out, _ := yaml.Marshal(offsets)
	fmt.Print(string(out))
	return nil
}

var app MainApp = nil

func (a *mainApp) Run() error {
	var once sync.Once
	once.Do(func() {
		app = a
	})

	log.Infoln("version:", version.GitVersion)
	log.Infoln("i2c.driver:", a.opt.I2C.Driver)
	log.Infoln("i2c.bus:", a.opt.I2C.Bus)
	log.Infoln("mqtt.broker:", a.opt.MQTT.Broker)
	log.Infoln("telemetry.interval_ms:", a.opt.Telemetry.IntervalMs)
	log.Infoln("api.enabled:", a.opt.API.Enabled)
	log.Infoln("debug:", a.opt.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := OpenBus(a.opt)
	if err != nil {
		log.Errorln("cannot open i2c bus:", err)
		return err
	}
	s, err := NewSensor(b, a.opt)
	if err != nil {
		_ = b.Close()
		log.Errorln(err)
		return err
	}
	client := NewClient(a.opt)
	loop := NewLoop(s, client, a.opt)
	defer loop.Shutdown()

	var wg sync.WaitGroup
	defer wg.Wait()
	apiCtx, cancelAPI := context.WithCancel(ctx)
	defer cancelAPI()
	if a.opt.API.Enabled {
		room := httpctl.NewRoom()
		loop.OnPublish(room.Forward)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpctl.Serve(apiCtx, a.opt.API.Interface, a.opt.API.Port, loop, room); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorln("control api stopped:", err)
			}
		}()
	}

	if err := client.Start(); err != nil {
		log.Errorln("cannot start mqtt client:", err)
		return err
	}

	err = telemetry.Daemon(ctx, loop, telemetry.DaemonOpt{
		RestartOnFailure: a.opt.Telemetry.RestartOnFailure,
		RestartDelay:     time.Duration(a.opt.Telemetry.RestartDelayMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	log.Infoln("shutting down")
	return nil
}

func (a *mainApp) PrepareRun() MainApp {
	desc := config.NewTelemetryAppDesc()
	err := desc.Parse(a.cmd)
	if err != nil {
		log.Errorln(err)
		os.Exit(1)
		return nil
	}
	desc.PostParse()
	a.opt = &desc.Opt
	a.name = config.DefaultAppName

	return a
}

type MainApp interface {
	Run() error
	PrepareRun() MainApp
	GetOpt() *config.TelemetryAppOpt
	SetOpt(*config.TelemetryAppOpt)
	ProbeSensor() error
	Calibrate() error
}

func NewMainApp(cmd *cobra.Command, args []string) MainApp {
	return &mainApp{
		cmd:  cmd,
		args: args,
	}
}
