package cmd

import (
	"os"
	"path"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"mpu_telemetry/internal/config"
)

func TestRootCmdTree(t *testing.T) {
	root := getRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, n := range []string{"serve", "init", "probe", "calibrate"} {
		assert.True(t, names[n], n)
	}
	for _, f := range []string{"config", "driver", "bus", "broker", "interval", "port", "interface", "debug"} {
		assert.NotNil(t, ServeCmd.Flags().Lookup(f), f)
	}
}

func TestInitWritesTemplate(t *testing.T) {
	t.Setenv(config.DefaultEnvPrefix+"_CONFIG", "")
	out := path.Join(t.TempDir(), "config.yaml")

	c := &cobra.Command{Use: "init", RunE: config.InitCfg}
	InitCmdFlags(c)
	c.SetArgs([]string{"-o", out, "-y"})
	require.NoError(t, c.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	opt := config.TelemetryAppOpt{}
	require.NoError(t, yaml.Unmarshal(data, &opt))
	assert.Equal(t, config.NewTelemetryAppOpt(), opt)
}
