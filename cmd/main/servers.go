package main

import (
	"context"
	"sync"

	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
)

// -----------------------------------------------------------------------------

// namedServer pairs a server with the name used in logs.
type namedServer struct {
	name   string
	server interfaces.IServer
}

// -----------------------------------------------------------------------------

// startServers runs every server in its own goroutine. The first failure is
// reported on the returned channel; a clean stop reports nothing.
func startServers(servers []namedServer, appLogger *logger.Logger, wg *sync.WaitGroup) <-chan error {
	failed := make(chan error, len(servers))

	for _, s := range servers {
		wg.Add(1)
		go func(s namedServer) {
			defer wg.Done()
			appLogger.Info("Starting %s", s.name)
			if err := s.server.Start(); err != nil {
				appLogger.Error("%s failed: %v", s.name, err)
				failed <- err
			}
		}(s)
	}
	return failed
}

// -----------------------------------------------------------------------------

// stopServers stops in reverse start order.
func stopServers(ctx context.Context, servers []namedServer, appLogger *logger.Logger) {
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].server.Stop(ctx); err != nil {
			appLogger.Warning("Failed to stop %s: %v", servers[i].name, err)
		}
	}
}
