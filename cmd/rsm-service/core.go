package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"rsm-agent/internal/catalog"
	"rsm-agent/internal/command"
	"rsm-agent/internal/config"
	"rsm-agent/internal/ipc"
	"rsm-agent/internal/listener"
	"rsm-agent/internal/protocol"
	"rsm-agent/internal/stats"
	"rsm-agent/pkg/utils"
)

const (
	serviceName  = "RsmAgent"
	agentVersion = "1.2.0"
)

func runService(ctx context.Context, cfgPath string) error {
	if err := config.EnsureExists(cfgPath); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	provider, err := config.NewProvider(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := provider.Current()

	logger, logCloser, err := utils.NewLogger(logPathOrFallback(cfg.Logging.File))
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logCloser.Close()

	store := catalog.NewStore(cfg.Catalog.Path)
	statusProvider := stats.NewProvider(agentVersion, time.Now().UTC())
	runner := command.NewRunner(logger, func() string {
		return provider.Current().Listener.WolMAC
	})
	engine := listener.New(provider, command.NewCatalog(), runner, logger)

	ipcServer, ipcErr := ipc.StartChannelServer(
		buildDispatcher(provider, store, statusProvider, engine),
		logger,
	)
	if ipcErr != nil {
		logger.Printf("local channel server not started: %v", ipcErr)
	} else {
		defer ipcServer.Close()
		logger.Printf("local channel server started: %s", ipc.ChannelName)
	}

	logger.Println("service loop started")
	if err := engine.Run(ctx); err != nil {
		logger.Printf("listener fatal: %v", err)
		return err
	}
	logger.Println("service loop stopped")
	return nil
}

// buildDispatcher routes each IPC request variant to its local collaborator.
// Returned errors become Error envelopes on the wire; the connection stays up.
func buildDispatcher(
	provider *config.Provider,
	store *catalog.Store,
	status *stats.Provider,
	engine *listener.Engine,
) ipc.Handler {
	return func(_ context.Context, req protocol.Message) (protocol.Message, error) {
		switch r := req.(type) {
		case *protocol.GetStatsRequest:
			snap := status.Collect()
			return &protocol.GetStatsResponse{
				Hostname:  snap.Hostname,
				UptimeSec: snap.UptimeSec,
				Addresses: snap.Addresses,
				Version:   snap.Version,
			}, nil

		case *protocol.GetAppsRequest:
			apps, err := store.List()
			if err != nil {
				return nil, err
			}
			return &protocol.GetAppsResponse{Apps: apps}, nil

		case *protocol.SaveAppRequest:
			if err := store.Save(r.App); err != nil {
				return nil, err
			}
			return &protocol.SaveAppResponse{Saved: true}, nil

		case *protocol.ServiceStatusRequest:
			return &protocol.ServiceStatusResponse{
				Running:       true,
				StartedAt:     status.StartedAt(),
				Version:       status.Version(),
				ListenerState: engine.State(),
			}, nil

		case *protocol.LaunchAppRequest:
			if err := store.Launch(r.Slot); err != nil {
				return nil, err
			}
			return &protocol.LaunchAppResponse{Launched: true}, nil

		case *protocol.SaveRsmConfigRequest:
			if err := provider.SetListener(r.Settings); err != nil {
				return nil, err
			}
			return &protocol.SaveRsmConfigResponse{}, nil

		default:
			return nil, fmt.Errorf("unsupported request %s", req.Kind())
		}
	}
}

func resolveConfigPath() string {
	if p := os.Getenv("RSM_CONFIG"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\RsmAgent\config.yaml`
	}
	return "config.yaml"
}

func logPathOrFallback(path string) string {
	if path == "" {
		return "agent.log"
	}
	return path
}
