package main

import (
	"encoding/json"
	"fmt"
	paho "github.com/eclipse/paho.mqtt.golang"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"mpu_telemetry/internal/config"
	"mpu_telemetry/internal/telemetry"
	"os"
	"sync"
	"time"
)

var defaultTableValue = [][]string{{"Sensor", "Axis", "Accel (g)", "Gyro (°/s)"}}

type monitor struct {
	lock     sync.Mutex
	table    *widgets.Table
	status   *widgets.Paragraph
	received int
	lastAck  string
}

func getTable() *widgets.Table {
	table := widgets.NewTable()
	table.Rows = defaultTableValue
	table.ColumnWidths = []int{12, 8, 16, 16}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.TextAlignment = ui.AlignRight
	table.SetRect(0, 0, 56, 9)
	return table
}

func getStatus() *widgets.Paragraph {
	p := widgets.NewParagraph()
	p.Title = "status"
	p.SetRect(0, 9, 56, 16)
	return p
}

func (m *monitor) onReading(_ paho.Client, msg paho.Message) {
	p := telemetry.Payload{}
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Debugln("malformed payload:", err)
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.received++
	m.table.Rows = [][]string{
		defaultTableValue[0],
		{p.Sensor, "X", p.Accel.X.String(), p.Gyro.X.String()},
		{"", "Y", p.Accel.Y.String(), p.Gyro.Y.String()},
		{"", "Z", p.Accel.Z.String(), p.Gyro.Z.String()},
		{"", "Temp", p.Temp.String() + " °C", ""},
		{"", "Time", time.Unix(p.Timestamp, 0).Format(time.TimeOnly), ""},
	}
	m.render()
}

func (m *monitor) onAck(_ paho.Client, msg paho.Message) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.lastAck = string(msg.Payload())
	m.render()
}

func (m *monitor) render() {
	m.status.Text = fmt.Sprintf("received: %d\nlast ack: %s\n\n[i] send interval  [q] quit", m.received, m.lastAck)
	ui.Render(m.table, m.status)
}

func _main(cmd *cobra.Command, _ []string) error {
	broker, _ := cmd.Flags().GetString("broker")
	dataTopic, _ := cmd.Flags().GetString("data_topic")
	commandTopic, _ := cmd.Flags().GetString("command_topic")
	responseTopic, _ := cmd.Flags().GetString("response_topic")
	interval, _ := cmd.Flags().GetUint32("interval")

	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	m := &monitor{table: getTable(), status: getStatus()}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("telemetry_monitor_%d", os.Getpid())).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c paho.Client) {
			c.Subscribe(dataTopic, 0, m.onReading)
			c.Subscribe(responseTopic, 0, m.onAck)
		})
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out connecting to %s", broker)
	}
	if err := token.Error(); err != nil {
		return err
	}
	defer client.Disconnect(250)

	m.lock.Lock()
	m.render()
	m.lock.Unlock()

	uiEvents := ui.PollEvents()
	for {
		e := <-uiEvents
		switch e.ID {
		case "q", "<C-c>":
			return nil
		case "i":
			client.Publish(commandTopic, 1, false, telemetry.FormatIntervalCommand(interval))
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "telemetry_monitor",
	Short: "terminal dashboard for published sensor readings",
	Long:  "telemetry_monitor subscribes to the sensor data topic and renders the latest reading; press i to send the --interval command",
	Run: func(cmd *cobra.Command, args []string) {
		if err := _main(cmd, args); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func main() {
	rootCmd.Flags().StringP("broker", "b", config.DefaultMQTTBroker, "mqtt broker url")
	rootCmd.Flags().String("data_topic", config.DefaultDataTopic, "sensor data topic")
	rootCmd.Flags().String("command_topic", config.DefaultCommandTopic, "command topic")
	rootCmd.Flags().String("response_topic", config.DefaultResponseTopic, "command response topic")
	rootCmd.Flags().Uint32("interval", config.DefaultIntervalMs, "interval in milliseconds sent when pressing i")

	err := rootCmd.Execute()
	if err != nil {
		return
	}
}
