package cmd

import (
	"fmt"

	"github.com/schovi/termtools/internal/daemon"
	"github.com/schovi/termtools/internal/executor"
	"github.com/schovi/termtools/internal/host"
	"github.com/schovi/termtools/internal/metrics"
	"github.com/schovi/termtools/internal/session"
	"github.com/schovi/termtools/internal/tools"
)

// localStack owns the in-process host, registry and tool service.
type localStack struct {
	host     *host.PTYHost
	registry *session.Registry
	service  *tools.Service
	metrics  *metrics.Metrics
}

func newLocalStack() (*localStack, error) {
	storage, err := newStorage()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	h := host.NewPTYHost(
		host.WithStorage(storage),
		host.WithShellIntegration(cfg.ShellIntegration),
		host.WithDefaultShell(cfg.Shell),
		host.WithLogger(logger.Named("host")),
	)
	reg := session.NewRegistry(h,
		session.WithLogger(logger.Named("registry")),
		session.WithMetrics(m),
	)
	exec := executor.New(h,
		executor.WithTimeout(cfg.CommandTimeout),
		executor.WithLogger(logger.Named("executor")),
		executor.WithMetrics(m),
	)
	svc := tools.NewService(reg, exec,
		tools.WithDefaults(cfg.Shell, cfg.WorkingDir),
		tools.WithLogger(logger.Named("tools")),
	)

	return &localStack{host: h, registry: reg, service: svc, metrics: m}, nil
}

func newStorage() (host.TranscriptStorage, error) {
	if cfg.TranscriptDir != "" {
		storage, err := host.NewFileStorage(cfg.TranscriptDir)
		if err != nil {
			return nil, fmt.Errorf("transcript storage: %w", err)
		}
		return storage, nil
	}
	maxSize, err := cfg.MaxOutputBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid max_output: %w", err)
	}
	return host.NewMemoryStorage(maxSize), nil
}

func (s *localStack) Close() {
	s.registry.Close()
	s.host.Close()
}

// daemonClient returns a client for the shared daemon, starting it if needed.
func daemonClient() (*daemon.Client, error) {
	client := daemon.NewClient(cfg.SocketDir,
		daemon.WithCommandTimeout(cfg.CommandTimeout),
		daemon.WithDaemonArgs("--socket-dir", cfg.SocketDir),
	)
	if err := client.EnsureDaemon(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	return client, nil
}
