package config

import (
	"bufio"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"mpu_telemetry/internal/utils"
	"os"
	"path"
	"strings"
)

const DefaultAppName = "mpu_telemetry"
const DefaultConfigName = "config"
const DefaultEnvPrefix = "MPUTELEMETRY"

const DefaultI2CDriver = "periph"
const DefaultI2CBus = "1"
const DefaultI2CAddress = 0x68
const DefaultI2CFrequencyHz = 400000
const DefaultI2CTimeoutMs = 1000

const DefaultSensorName = "MPU6050"
const DefaultCalibrationSamples = 200
const DefaultCalibrationDelayMs = 5
const DefaultAccelRangeG = 2
const DefaultGyroRangeDPS = 250

const DefaultMQTTBroker = "tcp://127.0.0.1:1883"
const DefaultMQTTClientID = "mpu_telemetry"
const DefaultDataTopic = "esp32/sensor/data"
const DefaultCommandTopic = "esp32/command"
const DefaultResponseTopic = "esp32/response"
const DefaultQoS = 1
const DefaultKeepAliveS = 60
const DefaultEventBuffer = 16

const DefaultIntervalMs = 5000
const DefaultRestartDelayMs = 1000

const DefaultAPIInterface = "0.0.0.0"
const DefaultAPIPort = 18889

const DefaultSimTempRaw = -2500

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config/"+DefaultAppName+"/"+DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"
const DefaultConfigSearchPath3 = "/config"

type I2COpt struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Bus         string `yaml:"bus" mapstructure:"bus"`
	Address     uint16 `yaml:"address" mapstructure:"address"`
	FrequencyHz int64  `yaml:"frequency_hz" mapstructure:"frequency_hz"`
	TimeoutMs   int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

type SensorOpt struct {
	Name               string `yaml:"name" mapstructure:"name"`
	CalibrationSamples int    `yaml:"calibration_samples" mapstructure:"calibration_samples"`
	CalibrationDelayMs int    `yaml:"calibration_delay_ms" mapstructure:"calibration_delay_ms"`
	AccelRangeG        int    `yaml:"accel_range_g" mapstructure:"accel_range_g"`
	GyroRangeDPS       int    `yaml:"gyro_range_dps" mapstructure:"gyro_range_dps"`
}

type MQTTOpt struct {
	Broker        string `yaml:"broker" mapstructure:"broker"`
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	DataTopic     string `yaml:"data_topic" mapstructure:"data_topic"`
	CommandTopic  string `yaml:"command_topic" mapstructure:"command_topic"`
	ResponseTopic string `yaml:"response_topic" mapstructure:"response_topic"`
	QoS           byte   `yaml:"qos" mapstructure:"qos"`
	Retain        bool   `yaml:"retain" mapstructure:"retain"`
	KeepAliveS    int    `yaml:"keep_alive_s" mapstructure:"keep_alive_s"`
	EventBuffer   int    `yaml:"event_buffer" mapstructure:"event_buffer"`
}

type TelemetryOpt struct {
	IntervalMs       uint32 `yaml:"interval_ms" mapstructure:"interval_ms"`
	RestartOnFailure bool   `yaml:"restart_on_failure" mapstructure:"restart_on_failure"`
	RestartDelayMs   int    `yaml:"restart_delay_ms" mapstructure:"restart_delay_ms"`
}

type APIOpt struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

// SimOpt configures the simulated register file used by the "sim" driver.
type SimOpt struct {
	Bias    [6]int16 `yaml:"bias" mapstructure:"bias"`
	Noise   int16    `yaml:"noise" mapstructure:"noise"`
	TempRaw int16    `yaml:"temp_raw" mapstructure:"temp_raw"`
}

type TelemetryAppOpt struct {
	I2C       I2COpt       `yaml:"i2c" mapstructure:"i2c"`
	Sensor    SensorOpt    `yaml:"sensor" mapstructure:"sensor"`
	MQTT      MQTTOpt      `yaml:"mqtt" mapstructure:"mqtt"`
	Telemetry TelemetryOpt `yaml:"telemetry" mapstructure:"telemetry"`
	API       APIOpt       `yaml:"api" mapstructure:"api"`
	Sim       SimOpt       `yaml:"sim" mapstructure:"sim"`
	Debug     bool         `yaml:"debug" mapstructure:"debug"`
}

type TelemetryAppDesc struct {
	Opt   TelemetryAppOpt
	Viper *viper.Viper
}

func NewTelemetryAppDesc() TelemetryAppDesc {
	return TelemetryAppDesc{
		Opt:   NewTelemetryAppOpt(),
		Viper: nil,
	}
}

func NewTelemetryAppOpt() TelemetryAppOpt {
	return TelemetryAppOpt{
		I2C: I2COpt{
			Driver:      DefaultI2CDriver,
			Bus:         DefaultI2CBus,
			Address:     DefaultI2CAddress,
			FrequencyHz: DefaultI2CFrequencyHz,
			TimeoutMs:   DefaultI2CTimeoutMs,
		},
		Sensor: SensorOpt{
			Name:               DefaultSensorName,
			CalibrationSamples: DefaultCalibrationSamples,
			CalibrationDelayMs: DefaultCalibrationDelayMs,
			AccelRangeG:        DefaultAccelRangeG,
			GyroRangeDPS:       DefaultGyroRangeDPS,
		},
		MQTT: MQTTOpt{
			Broker:        DefaultMQTTBroker,
			ClientID:      DefaultMQTTClientID,
			DataTopic:     DefaultDataTopic,
			CommandTopic:  DefaultCommandTopic,
			ResponseTopic: DefaultResponseTopic,
			QoS:           DefaultQoS,
			Retain:        false,
			KeepAliveS:    DefaultKeepAliveS,
			EventBuffer:   DefaultEventBuffer,
		},
		Telemetry: TelemetryOpt{
			IntervalMs:       DefaultIntervalMs,
			RestartOnFailure: false,
			RestartDelayMs:   DefaultRestartDelayMs,
		},
		API: APIOpt{
			Enabled:   true,
			Port:      DefaultAPIPort,
			Interface: DefaultAPIInterface,
		},
		Sim: SimOpt{
			TempRaw: DefaultSimTempRaw,
		},
		Debug: false,
	}
}

func setDefaults(vipCfg *viper.Viper) {
	def := NewTelemetryAppOpt()
	vipCfg.SetDefault("i2c.driver", def.I2C.Driver)
	vipCfg.SetDefault("i2c.bus", def.I2C.Bus)
	vipCfg.SetDefault("i2c.address", def.I2C.Address)
	vipCfg.SetDefault("i2c.frequency_hz", def.I2C.FrequencyHz)
	vipCfg.SetDefault("i2c.timeout_ms", def.I2C.TimeoutMs)
	vipCfg.SetDefault("sensor.name", def.Sensor.Name)
	vipCfg.SetDefault("sensor.calibration_samples", def.Sensor.CalibrationSamples)
	vipCfg.SetDefault("sensor.calibration_delay_ms", def.Sensor.CalibrationDelayMs)
	vipCfg.SetDefault("sensor.accel_range_g", def.Sensor.AccelRangeG)
	vipCfg.SetDefault("sensor.gyro_range_dps", def.Sensor.GyroRangeDPS)
	vipCfg.SetDefault("mqtt.broker", def.MQTT.Broker)
	vipCfg.SetDefault("mqtt.client_id", def.MQTT.ClientID)
	vipCfg.SetDefault("mqtt.username", "")
	vipCfg.SetDefault("mqtt.password", "")
	vipCfg.SetDefault("mqtt.data_topic", def.MQTT.DataTopic)
	vipCfg.SetDefault("mqtt.command_topic", def.MQTT.CommandTopic)
	vipCfg.SetDefault("mqtt.response_topic", def.MQTT.ResponseTopic)
	vipCfg.SetDefault("mqtt.qos", def.MQTT.QoS)
	vipCfg.SetDefault("mqtt.retain", def.MQTT.Retain)
	vipCfg.SetDefault("mqtt.keep_alive_s", def.MQTT.KeepAliveS)
	vipCfg.SetDefault("mqtt.event_buffer", def.MQTT.EventBuffer)
	vipCfg.SetDefault("telemetry.interval_ms", def.Telemetry.IntervalMs)
	vipCfg.SetDefault("telemetry.restart_on_failure", def.Telemetry.RestartOnFailure)
	vipCfg.SetDefault("telemetry.restart_delay_ms", def.Telemetry.RestartDelayMs)
	vipCfg.SetDefault("api.enabled", def.API.Enabled)
	vipCfg.SetDefault("api.port", def.API.Port)
	vipCfg.SetDefault("api.interface", def.API.Interface)
	vipCfg.SetDefault("sim.noise", def.Sim.Noise)
	vipCfg.SetDefault("sim.temp_raw", def.Sim.TempRaw)
	vipCfg.SetDefault("debug", false)
}

// bindFlag binds a flag only when the command defines it; not every subcommand carries every flag.
func bindFlag(vipCfg *viper.Viper, cmd *cobra.Command, key string, name string) {
	if f := cmd.Flags().Lookup(name); f != nil {
		_ = vipCfg.BindPFlag(key, f)
	}
}

func (o *TelemetryAppDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv(DefaultEnvPrefix + "_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
			vipCfg.AddConfigPath(DefaultConfigSearchPath3)
		}
	}

	vipCfg.SetEnvPrefix(DefaultEnvPrefix)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	bindFlag(vipCfg, cmd, "api.port", "port")
	bindFlag(vipCfg, cmd, "api.interface", "interface")
	bindFlag(vipCfg, cmd, "i2c.driver", "driver")
	bindFlag(vipCfg, cmd, "i2c.bus", "bus")
	bindFlag(vipCfg, cmd, "mqtt.broker", "broker")
	bindFlag(vipCfg, cmd, "telemetry.interval_ms", "interval")
	bindFlag(vipCfg, cmd, "debug", "debug")

	// If a config file is found, read it in.
	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		log.Warnln(err)
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	o.Viper = vipCfg
	return o.Opt.Validate()
}

// Validate rejects options that cannot describe a working pipeline.
func (o *TelemetryAppOpt) Validate() error {
	switch o.I2C.Driver {
	case "periph", "embd", "sim":
	default:
		return fmt.Errorf("unknown i2c driver %q", o.I2C.Driver)
	}
	if o.I2C.Address == 0 || o.I2C.Address > 0x7f {
		return fmt.Errorf("invalid i2c address 0x%X", o.I2C.Address)
	}
	if o.I2C.TimeoutMs <= 0 {
		return errors.New("i2c.timeout_ms must be positive")
	}
	if o.Sensor.CalibrationSamples <= 0 {
		return errors.New("sensor.calibration_samples must be positive")
	}
	if o.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", o.MQTT.QoS)
	}
	if o.MQTT.DataTopic == "" || o.MQTT.CommandTopic == "" || o.MQTT.ResponseTopic == "" {
		return errors.New("mqtt topics must not be empty")
	}
	return nil
}

func (o *TelemetryAppDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func (o *TelemetryAppDesc) SaveConfig() error {
	if o.Viper == nil {
		return errors.New("viper is nil")
	}
	f, err := os.OpenFile(o.Viper.ConfigFileUsed(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w := bufio.NewWriter(f)
	s, _ := yaml.Marshal(o.Opt)
	_, err = w.Write(s)
	if err != nil {
		return err
	}
	return w.Flush()
}

// InitCfg prepares a configuration template for the application
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewTelemetryAppDesc()
	err := desc.Parse(cmd)
	if err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, _ := yaml.Marshal(desc.Opt)
		fmt.Println(string(configBuffer))
		return nil
	}
	return utils.DumpOption(desc.Opt, outputPath, overwriteFlag)
}
