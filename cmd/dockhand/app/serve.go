package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dockhand-sh/dockhand/pkg/approval"
	"github.com/dockhand-sh/dockhand/pkg/bridge"
	"github.com/dockhand-sh/dockhand/pkg/config"
	"github.com/dockhand-sh/dockhand/pkg/discovery"
	"github.com/dockhand-sh/dockhand/pkg/executor"
	"github.com/dockhand-sh/dockhand/pkg/logger"
	"github.com/dockhand-sh/dockhand/pkg/networking"
	"github.com/dockhand-sh/dockhand/pkg/server"
	"github.com/dockhand-sh/dockhand/pkg/tools"
)

// serverName is the key this process registers under in the discovery
// file. One dockhand per workspace is the expected deployment.
const serverName = "dockhand"

// readyProbeTimeout bounds how long the discovery registration waits for
// the HTTP endpoint to answer after the listener is bound.
const readyProbeTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the editor tool server",
		Long: `Start the dockhand server for the current workspace.

The server binds the preferred port or, when it is taken, walks forward
through the retry range. Once the endpoint is reachable it registers
itself in the discovery file so editor clients can connect.`,
		RunE: runServe,
	}

	cmd.Flags().String("host", "", "Interface to bind (default 127.0.0.1)")
	cmd.Flags().Int("port", 0, fmt.Sprintf("Preferred listen port (default %d)", config.DefaultPort))
	cmd.Flags().Int("port-retries", 0, "How many successor ports to try when the preferred one is taken")
	cmd.Flags().String("workspace", "", "Workspace root directory (default current directory)")
	cmd.Flags().String("approval", "", "Approval mode: auto, ask, or yolo (default auto)")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")

	for _, name := range []string{"host", "port", "port-retries", "workspace", "approval", "metrics"} {
		key := name
		if key == "port-retries" {
			key = "port_retries"
		}
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	mode, err := cfg.ApprovalMode()
	if err != nil {
		return err
	}

	files, err := executor.NewWorkspaceFiles(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	terminal := executor.NewShellTerminal(files.Root())
	logger.Infow("Starting dockhand", "workspace", files.Root(), "approval", mode.String())

	gate := approval.NewGate(approval.LogNotifier{})

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, tools.BuiltinConfig{
		Bridge: bridge.New(files, terminal),
		Gate:   gate,
		Mode:   mode,
	})

	srv := server.New(server.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		PortRetries:    cfg.PortRetries,
		SessionTTL:     cfg.SessionTTL,
		MetricsEnabled: cfg.Metrics,
		ServerName:     serverName,
		Version:        Version,
	}, registry, gate)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Start(groupCtx)
	})

	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-srv.Ready():
		}
		return registerDiscovery(groupCtx, srv)
	})

	return group.Wait()
}

// registerDiscovery waits for the endpoint to answer, then publishes it in
// the discovery file. The entry is removed again on shutdown.
func registerDiscovery(ctx context.Context, srv *server.Server) error {
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", srv.BoundPort())
	if err := networking.WaitForReady(ctx, healthURL, readyProbeTimeout); err != nil {
		return fmt.Errorf("server did not become ready: %w", err)
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	file := discovery.NewFile(filepath.Join(dir, discovery.FileName))

	entry := discovery.Entry{
		URL:          srv.URL(),
		ContainerURL: fmt.Sprintf("http://%s:%d/mcp", discovery.HostGatewayAlias, srv.BoundPort()),
		Type:         "http",
		PID:          os.Getpid(),
	}
	if err := file.Upsert(serverName, entry); err != nil {
		return fmt.Errorf("failed to register in discovery file: %w", err)
	}
	logger.Infof("Registered %s at %s in %s", serverName, entry.URL, file.Path())

	<-ctx.Done()

	if err := file.Remove(serverName); err != nil {
		logger.Warnf("Failed to remove discovery entry: %v", err)
	}
	return nil
}
