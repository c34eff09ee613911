package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tw-tick-api/src/config"
	"tw-tick-api/src/governor"
	"tw-tick-api/src/grpc_control"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/server"
	"tw-tick-api/src/service"
	"tw-tick-api/src/telemetry"
	"tw-tick-api/src/utils"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "", "path to an optional YAML config file")
	seedCSV := flag.String("seed-csv", "", "import a tick CSV into the configured SQL store and exit")
	writeConfig := flag.String("write-config", "", "write the effective config as YAML to this path and exit")
	flag.Parse()

	// 1. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := conf.Save(*writeConfig); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// 2. Setup logger
	if err := logger.Setup(conf.MConfig); err != nil {
		fmt.Printf("Error setting up logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	appLogger := logger.NewLogger(conf.MConfig, conf.Name)

	if err := run(conf, *seedCSV, appLogger); err != nil {
		appLogger.Error("%v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func run(conf *config.Config, seedCSV string, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seedCSV != "" {
		return seedFromCSV(ctx, conf.MConfig, seedCSV, appLogger)
	}

	// 3. Tracing
	shutdownTracing, err := telemetry.Setup(ctx, conf.MConfig, logger.NewLogger(conf.MConfig, "Telemetry"))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			appLogger.Warning("Tracing shutdown failed: %v", err)
		}
	}()

	// 4. Sources
	cal := utils.GetCalendar()
	comp, err := setupDataSources(conf.MConfig, cal, appLogger)
	if err != nil {
		return err
	}
	defer comp.Close(appLogger)

	// 5. Query path and limits
	query, err := service.NewQueryService(conf.MConfig, comp.manager, cal, logger.NewLogger(conf.MConfig, "QueryService"))
	if err != nil {
		return err
	}
	gov := governor.NewConnectionGovernor(&conf.Limits, logger.NewLogger(conf.MConfig, "Governor"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		gov.Run(ctx, sweepInterval)
	}()

	// 6. Servers
	servers := []namedServer{{
		name:   "HTTP API",
		server: server.NewFastAPIServer(conf.MConfig, query, gov, comp.manager.SourceNames(), logger.NewLogger(conf.MConfig, "FastAPIServer")),
	}}
	if conf.Grpc.Enabled {
		servers = append(servers, namedServer{
			name:   "gRPC Control Server",
			server: grpc_control.NewControlService(conf.MConfig, comp.manager, logger.NewLogger(conf.MConfig, "ControlService")),
		})
	}
	failed := startServers(servers, appLogger, &wg)

	// 7. Wait for a signal or a failed server
	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case runErr = <-failed:
	}
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopServers(sctx, servers, appLogger)
	wg.Wait()

	appLogger.Info("Shutdown complete.")
	return runErr
}
