package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/daemon"
)

var (
	daemonMaxOutputFlag   string
	daemonMetricsAddrFlag string
)

var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Short:  "Run the termtools daemon (internal)",
	Hidden: true,
	RunE:   runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonMaxOutputFlag, "max-output", "",
		"Maximum transcript size per terminal (e.g., 10MB, 1GB)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddrFlag, "metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g., 127.0.0.1:9464)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonMaxOutputFlag != "" {
		cfg.MaxOutput = daemonMaxOutputFlag
	}
	if daemonMetricsAddrFlag != "" {
		cfg.MetricsAddr = daemonMetricsAddrFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	stack, err := newLocalStack()
	if err != nil {
		return err
	}
	defer stack.Close()

	server, err := daemon.NewServer(stack.service,
		daemon.WithSocketDir(cfg.SocketDir),
		daemon.WithLogger(logger.Named("daemon")),
	)
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", stack.metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		logger.Info("shutting down daemon")
		if metricsSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metricsSrv.Shutdown(ctx) //nolint:errcheck
		}
		server.Shutdown()
	}()

	return server.Start()
}
