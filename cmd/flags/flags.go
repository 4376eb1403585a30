// Package flags holds the flag definitions and setup helpers shared by the
// gateway commands.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/storage-policy-backend/common"
	"github.com/ruteri/storage-policy-backend/httpserver"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the process logger from the logging flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		JSON:    cCtx.Bool("log-json"),
		Service: cCtx.String("log-service"),
		Version: common.Version,
	})

	if cCtx.Bool("log-uid") {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the operational HTTP server config from flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String("listen-addr"),
		Log:                      logger,
		EnablePprof:              cCtx.Bool("pprof"),
		DrainDuration:            time.Duration(cCtx.Int64("drain-seconds")) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var BackendURIFlag = &cli.StringFlag{
	Name:    "backend-uri",
	Value:   "file:///var/lib/storage-gateway/data",
	Usage:   "storage backend location URI (file:// or s3://)",
	EnvVars: []string{"GATEWAY_BACKEND_URI"},
}

var RedisAddrFlag = &cli.StringFlag{
	Name:    "redis-addr",
	Value:   "127.0.0.1:6379",
	Usage:   "address of the redis counter store for rate limiting",
	EnvVars: []string{"GATEWAY_REDIS_ADDR"},
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the operational API",
}

var EncryptionSecretFlag = &cli.StringFlag{
	Name:    "encryption-secret",
	Value:   "",
	Usage:   "hex-encoded secret for the payload encryption envelope; empty disables encryption",
	EnvVars: []string{"GATEWAY_ENCRYPTION_SECRET"},
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Value:   "",
	Usage:   "Vault address to fetch the encryption secret from (takes precedence over encryption-secret)",
	EnvVars: []string{"VAULT_ADDR"},
}

var VaultSecretPathFlag = &cli.StringFlag{
	Name:  "vault-secret-path",
	Value: "storage-gateway/encryption",
	Usage: "KV v2 path of the encryption secret in Vault",
}

var MaxFileSizeFlag = &cli.Int64Flag{
	Name:  "max-file-size",
	Value: 100 << 20,
	Usage: "maximum upload size in bytes",
}

var AllowedExtensionsFlag = &cli.StringSliceFlag{
	Name:  "allowed-extensions",
	Usage: "extensions accepted for upload; empty allows all not blocked",
}

var BlockedExtensionsFlag = &cli.StringSliceFlag{
	Name:  "blocked-extensions",
	Value: cli.NewStringSlice(".exe", ".dll", ".bat", ".cmd", ".scr"),
	Usage: "extensions rejected for upload",
}

var BlockedIPsFlag = &cli.StringSliceFlag{
	Name:  "blocked-ips",
	Usage: "client IPs denied download access",
}

var AllowedIPsFlag = &cli.StringSliceFlag{
	Name:  "allowed-ips",
	Usage: "client IPs granted download access; empty allows all not blocked",
}

var MaxDownloadsPerHourFlag = &cli.Int64Flag{
	Name:  "max-downloads-per-hour",
	Value: 1000,
	Usage: "per-client download attempts allowed per hour",
}

var ContainersFlag = &cli.StringSliceFlag{
	Name:  "containers",
	Usage: "container names covered by scheduled lifecycle and backup passes",
}

var PoliciesFileFlag = &cli.StringFlag{
	Name:  "policies-file",
	Value: "",
	Usage: "JSON file with lifecycle policies",
}

var LifecycleIntervalFlag = &cli.DurationFlag{
	Name:  "lifecycle-interval",
	Value: 24 * time.Hour,
	Usage: "period between lifecycle passes; 0 disables them",
}

var BackupIntervalFlag = &cli.DurationFlag{
	Name:  "backup-interval",
	Value: 24 * time.Hour,
	Usage: "period between backup passes; 0 disables them",
}

var BackupContainerFlag = &cli.StringFlag{
	Name:  "backup-container",
	Value: "backups",
	Usage: "container receiving backup snapshots",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
