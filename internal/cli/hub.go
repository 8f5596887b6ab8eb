package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bwkimmel/jdcp-go/internal/config"
	"github.com/bwkimmel/jdcp-go/internal/hubhost"
	"github.com/bwkimmel/jdcp-go/internal/httpapi"
)

const hubPIDFile = "jdcp-hub.pid"

// BuildHubCLI builds the hub host's command tree: `start`/`stop` for the
// daemon. The upstream set a hub fans out to is configured once at start,
// from the YAML config's `upstreams` list, and connected in Router FIFO
// order as the process comes up.
func BuildHubCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "jdcp-hub",
		Short: "Job distributed compute platform hub",
	}

	var (
		listenAddr  string
		configPath  string
		metricsAddr string
		pidFile     string
		idleSeconds int
	)
	root.PersistentFlags().StringVar(&pidFile, "pidfile", hubPIDFile, "pid file for start/stop")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the hub, fanning out to upstreams configured in --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Hub
			if configPath != "" {
				loaded, err := config.LoadHub(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			if cfg.ListenAddr == "" {
				cfg.ListenAddr = ":5327"
			}
			if idleSeconds > 0 {
				cfg.IdleSeconds = idleSeconds
			}
			return runHub(cfg, metricsAddr, pidFile)
		},
	}
	start.Flags().StringVar(&listenAddr, "listen", "", "address to listen on for downstream workers")
	start.Flags().StringVar(&configPath, "config", "", "YAML config file naming the upstream set")
	start.Flags().StringVar(&metricsAddr, "metrics-addr", ":9092", "address for /healthz, /metrics, /status")
	start.Flags().IntVar(&idleSeconds, "idle-seconds", 5, "idle directive when every upstream is idle")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running hub started with `start`",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopByPIDFile(pidFile)
		},
	}

	root.AddCommand(start, stop)
	return root
}

// runHub assembles a hubhost.Host from cfg, connects every configured
// upstream, and serves until interrupted.
func runHub(cfg config.Hub, metricsAddr, pidFile string) error {
	host := hubhost.New(hubhost.Config{
		ListenAddr:        cfg.ListenAddr,
		IdleSeconds:       cfg.IdleSeconds,
		PollInterval:      cfg.PollInterval,
		ReconnectInterval: cfg.ReconnectInterval,
	})
	defer host.Stop()

	for _, up := range cfg.Upstreams {
		host.Connect(up.Name, up.Addr)
		log.Printf("hub: connected upstream %s (%s)", up.Name, up.Addr)
	}

	if err := writePID(pidFile); err != nil {
		log.Printf("hub: could not write pidfile %s: %v", pidFile, err)
	}
	defer removePID(pidFile)

	if metricsAddr != "" {
		go func() {
			if err := httpapi.Serve(metricsAddr, hubStatus{}); err != nil {
				log.Printf("hub: http admin surface stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("hub: listening on %s", cfg.ListenAddr)
	err := host.Serve(ctx)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("hub: serve: %w", err)
	}
	return nil
}

type hubStatus struct{}

func (hubStatus) Status() any {
	return map[string]any{"role": "hub"}
}
