package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"mpu_telemetry/internal/config"
	"mpu_telemetry/internal/server"
)

var RootCmd = &cobra.Command{
	Use:   "mpu_telemetry",
	Short: "MPU6050 telemetry publisher",
	Long:  "mpu_telemetry reads an MPU6050 over I2C and publishes calibrated readings to an MQTT broker",
}

func ServeCmdRunE(cmd *cobra.Command, args []string) error {
	return server.NewMainApp(cmd, args).PrepareRun().Run()
}

// SensorCmdFlags are shared by every command that talks to the device.
func SensorCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().String("driver", config.DefaultI2CDriver, "i2c backend: periph, embd or sim")
	cmd.Flags().String("bus", config.DefaultI2CBus, "i2c bus name or number")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

func ServeCmdFlags(cmd *cobra.Command) {
	SensorCmdFlags(cmd)
	cmd.Flags().IntP("port", "p", config.DefaultAPIPort, "port that the control api listens on")
	cmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface that the control api listens on, default to 0.0.0.0")
	cmd.Flags().StringP("broker", "b", config.DefaultMQTTBroker, "mqtt broker url")
	cmd.Flags().Uint32("interval", config.DefaultIntervalMs, "publish interval in milliseconds (minimum 100)")
}

var ServeCmd = &cobra.Command{
	Use: "serve",
	SuggestFor: []string{
		"ru", "ser",
	},
	Short:        "serve starts publishing sensor readings using predefined configs.",
	SilenceUsage: true,
	Long: `serve starts publishing sensor readings using predefined configs, by the following order:
1. path specified in --config flag
2. path defined MPUTELEMETRY_CONFIG environment variable
3. default location $HOME/.config/mpu_telemetry/config.yaml, /etc/mpu_telemetry/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
	Example: `  mpu_telemetry serve --config=/path/to/config
  mpu_telemetry serve --driver sim --broker tcp://localhost:1883 --interval 1000`,
	RunE: ServeCmdRunE,
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output directory")
}

var InitCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/mpu_telemetry/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
	Example: `  mpu_telemetry init --print
  mpu_telemetry init --output /path/to/config.yaml
  mpu_telemetry init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

var ProbeCmd = &cobra.Command{
	Use: "probe",
	SuggestFor: []string{
		"pro", "pr", "prob",
	},
	Short:        "probe the sensor",
	SilenceUsage: true,
	Long: `probe the sensor.
The probe command opens the configured i2c bus and reads the WHO_AM_I register of the MPU6050.
`,
	Example: `  mpu_telemetry probe --bus 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.NewMainApp(cmd, args).PrepareRun().ProbeSensor()
	},
}

var CalibrateCmd = &cobra.Command{
	Use: "calibrate",
	SuggestFor: []string{
		"cal", "calib",
	},
	Short:        "calibrate the sensor once and print the offsets",
	SilenceUsage: true,
	Long: `calibrate the sensor once and print the offsets.
Keep the sensor level and still, Z axis up, for the whole sampling window.
`,
	Example: `  mpu_telemetry calibrate --driver periph --bus 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.NewMainApp(cmd, args).PrepareRun().Calibrate()
	},
}

func getRootCmd() *cobra.Command {

	ServeCmdFlags(ServeCmd)
	RootCmd.AddCommand(ServeCmd)

	InitCmdFlags(InitCmd)
	RootCmd.AddCommand(InitCmd)

	SensorCmdFlags(ProbeCmd)
	RootCmd.AddCommand(ProbeCmd)

	SensorCmdFlags(CalibrateCmd)
	RootCmd.AddCommand(CalibrateCmd)

	return RootCmd
}

func Execute() {
	rootCmd := getRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
