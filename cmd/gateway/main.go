package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/storage-policy-backend/backup"
	"github.com/ruteri/storage-policy-backend/cmd/flags"
	"github.com/ruteri/storage-policy-backend/httpserver"
	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/ruteri/storage-policy-backend/lifecycle"
	"github.com/ruteri/storage-policy-backend/monitoring"
	"github.com/ruteri/storage-policy-backend/scheduler"
	"github.com/ruteri/storage-policy-backend/security"
	"github.com/ruteri/storage-policy-backend/storage"
	"github.com/urfave/cli/v2"
)

var appFlags = []cli.Flag{
	flags.BackendURIFlag,
	flags.RedisAddrFlag,
	flags.ListenAddrFlag,
	flags.EncryptionSecretFlag,
	flags.VaultAddrFlag,
	flags.VaultSecretPathFlag,
	flags.MaxFileSizeFlag,
	flags.AllowedExtensionsFlag,
	flags.BlockedExtensionsFlag,
	flags.AllowedIPsFlag,
	flags.BlockedIPsFlag,
	flags.MaxDownloadsPerHourFlag,
	flags.ContainersFlag,
	flags.PoliciesFileFlag,
	flags.LifecycleIntervalFlag,
	flags.BackupIntervalFlag,
	flags.BackupContainerFlag,
	flags.LogJSONFlag,
	flags.LogDebugFlag,
	flags.LogUIDFlag,
	flags.LogServiceFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
}

func main() {
	app := &cli.App{
		Name:   "storage-gateway",
		Usage:  "Serve the storage policy gateway with scheduled lifecycle and backup passes",
		Flags:  appFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := context.Background()

	// Storage backend and gateway
	location, err := interfaces.ParseLocation(cCtx.String("backend-uri"))
	if err != nil {
		logger.Error("Invalid backend URI", "err", err)
		return err
	}
	factory := storage.NewFactory(logger)
	backend, err := factory.BackendFor(location)
	if err != nil {
		logger.Error("Failed to create storage backend", "err", err)
		return err
	}
	gateway := storage.NewGateway(backend, logger)

	// Monitoring filter
	monitor := monitoring.NewFilter(gateway, monitoring.FilterConfig{}, logger)

	// Encryption secret: Vault takes precedence over the static flag
	var encryptor *security.Encryptor
	var keySource security.KeySource
	if vaultAddr := cCtx.String("vault-addr"); vaultAddr != "" {
		keySource, err = security.NewVaultKeySource(vaultAddr, os.Getenv("VAULT_TOKEN"), "secret", cCtx.String("vault-secret-path"), "key", logger)
		if err != nil {
			logger.Error("Failed to create vault key source", "err", err)
			return err
		}
	} else if secretHex := cCtx.String("encryption-secret"); secretHex != "" {
		keySource = security.NewStaticKeySource(secretHex)
	}
	if keySource != nil {
		secret, err := keySource.Secret(ctx)
		if err != nil {
			logger.Error("Failed to load encryption secret", "err", err)
			return err
		}
		encryptor, err = security.NewEncryptor(secret)
		if err != nil {
			logger.Error("Failed to create encryptor", "err", err)
			return err
		}
		logger.Info("Payload encryption enabled")
	} else {
		logger.Warn("Payload encryption disabled, no secret configured")
	}

	// Rate limiter on the redis counter store
	redisClient := redis.NewClient(&redis.Options{Addr: cCtx.String("redis-addr")})
	limiter := security.NewRateLimiter(
		security.NewRedisCounterStore(redisClient),
		cCtx.Int64("max-downloads-per-hour"),
		security.DefaultRateWindow,
		logger,
	)

	// Security filter, outermost layer of the chain
	secFilter := security.NewFilter(monitor, security.FilterConfig{
		AllowedExtensions: cCtx.StringSlice("allowed-extensions"),
		BlockedExtensions: cCtx.StringSlice("blocked-extensions"),
		MaxFileSize:       cCtx.Int64("max-file-size"),
		AllowedIPs:        cCtx.StringSlice("allowed-ips"),
		BlockedIPs:        cCtx.StringSlice("blocked-ips"),
	}, security.NewScanner(), limiter, encryptor, security.NewSlogEventSink(logger), logger)

	// Startup probe through the full chain, so a broken backend or a bad
	// encryption secret fails fast instead of on the first client call.
	if err := selfCheck(ctx, secFilter); err != nil {
		logger.Error("Storage chain self-check failed", "err", err)
		return err
	}
	logger.Info("Storage chain self-check passed")

	// Lifecycle and backup passes run against the gateway directly, below
	// the filters.
	policies, err := loadPolicies(cCtx.String("policies-file"))
	if err != nil {
		logger.Error("Failed to load lifecycle policies", "err", err)
		return err
	}
	engine := lifecycle.NewEngine(gateway, lifecycle.EngineConfig{}, logger)
	orchestrator := backup.NewOrchestrator(gateway, backup.Config{
		BackupContainer: cCtx.String("backup-container"),
	}, logger)

	sched := scheduler.New(scheduler.Config{
		Containers:        cCtx.StringSlice("containers"),
		Policies:          policies,
		LifecycleInterval: cCtx.Duration("lifecycle-interval"),
		BackupInterval:    cCtx.Duration("backup-interval"),
	}, engine, orchestrator, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", "err", err)
		return err
	}
	defer sched.Stop()

	// Operational HTTP surface
	srv := httpserver.New(flags.ConfigureServer(cCtx, logger), monitor.GetHealthStatus)
	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit

	logger.Info("Shutting down")
	srv.Shutdown()
	return nil
}

// selfCheck round-trips a small payload through the filter chain.
func selfCheck(ctx context.Context, svc interfaces.StorageService) error {
	const container = "system-healthcheck"
	const name = "probe.txt"
	payload := []byte("storage gateway self-check")

	if err := svc.CreateContainer(ctx, container); err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if _, err := svc.Upload(ctx, container, name, payload, "text/plain", nil); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	got, err := svc.Download(ctx, container, name)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("payload mismatch after round trip")
	}
	return svc.Delete(ctx, container, name)
}

func loadPolicies(path string) ([]interfaces.LifecyclePolicy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var policies []interfaces.LifecyclePolicy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, err
	}
	return policies, nil
}
