package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"

	"github.com/forkline/forkline/internal/engine"
	"github.com/forkline/forkline/internal/tables"
	"github.com/forkline/forkline/internal/terminal"
	"github.com/forkline/forkline/pkg"
)

const (
	appNamespace = "FORKLINE"
	appName      = "terminal"
	appVersion   = "0.1.0"
)

func main() {
	config, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	terminalID := config.GetStringOrDef("terminal.id", "terminal-1")

	natsURL := config.GetStringOrDef("nats.url", "nats://localhost:4222")
	sub, err := pkg.NewNATSSubscriber(natsURL)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS subscriber: %v", appName, appVersion, err)
	}

	storeURL := config.GetStringOrDef("services.orderstore.url", "http://localhost:8084")
	client := engine.NewHTTPStoreClient(storeURL, terminalID)

	directoryURL := config.GetStringOrDef("services.table.url", "http://localhost:8081")
	directory := tables.NewHTTPDirectory(directoryURL)

	changes := engine.NewChangeSubscription(sub, logger)

	sessionCfg := engine.SessionConfig{
		Debounce:      durationOrDef(config, "reconciler.debounce", engine.DefaultDebounce),
		WaiterPoll:    durationOrDef(config, "waiter.poll", engine.DefaultWaiterPoll),
		WaiterTimeout: durationOrDef(config, "waiter.timeout", engine.DefaultWaiterTimeout),
	}
	registry := terminal.NewSessionRegistry(ctx, client, changes, sessionCfg, logger)

	hd := terminal.HandlerDeps{
		Registry:  registry,
		Directory: directory,
		Reader:    client,
	}
	handler := terminal.NewHandler(hd, config, logger)

	subLifecycle := apt.LifecycleHooks{
		OnStop: func(context.Context) error {
			return sub.Close()
		},
	}

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger: logger,
	})

	options := []apt.Option{
		apt.WithConfig(config),
		apt.WithLogger(logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(
			apt.LifecycleHooks{OnStop: registry.Stop},
			subLifecycle,
		),
		apt.WithHealthChecks(appName),
	}

	ms := apt.NewMicro(options...)
	logger.Infof("Starting %s(%s)", appName, appVersion)

	err = ms.Run(ctx)
	if err != nil {
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

func durationOrDef(config *apt.Config, key string, def time.Duration) time.Duration {
	raw := config.GetStringOrDef(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid duration for %s: %q, using default %s", key, raw, def)
		return def
	}
	return d
}
