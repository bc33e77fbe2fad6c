package main

import "mpu_telemetry/internal/cmd"

func main() {
	cmd.Execute()
}
