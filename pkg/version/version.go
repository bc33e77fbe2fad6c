package version

// GitVersion is set at build time with -ldflags "-X mpu_telemetry/pkg/version.GitVersion=...".
var GitVersion = "dev"
