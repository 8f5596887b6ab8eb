package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bwkimmel/jdcp-go/internal/config"
	"github.com/bwkimmel/jdcp-go/internal/courtesy"
	"github.com/bwkimmel/jdcp-go/internal/httpapi"
	"github.com/bwkimmel/jdcp-go/internal/workerhost"
	"github.com/bwkimmel/jdcp-go/internal/workerpool"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

const workerPIDFile = "jdcp-worker.pid"

// echoExecutor is the CLI's stand-in TaskExecutor: task computation itself
// is opaque to this platform, so a host that wants real work done links
// its own executor in; this one exists so `jdcp-worker start` is a
// runnable binary on its own, echoing each task's payload back as its
// result after a single courtesy checkpoint.
type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, monitor *workerpool.ProgressMonitor, task types.TaskDescription) ([]byte, error) {
	if err := monitor.CheckPoint(ctx); err != nil {
		return nil, err
	}
	return task.Payload, nil
}

// BuildWorkerCLI builds the worker host's command tree.
func BuildWorkerCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "jdcp-worker",
		Short: "Job distributed compute platform worker",
	}

	var (
		upstreamAddr   string
		configPath     string
		metricsAddr    string
		pidFile        string
		initialWorkers int
		courtesyMode   string
	)
	root.PersistentFlags().StringVar(&pidFile, "pidfile", workerPIDFile, "pid file for start/stop")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the worker host, requesting tasks from --upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Worker{UpstreamAddr: upstreamAddr, InitialWorkers: initialWorkers}
			if configPath != "" {
				loaded, err := config.LoadWorker(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
				if upstreamAddr != "" {
					cfg.UpstreamAddr = upstreamAddr
				}
			}
			if cfg.UpstreamAddr == "" {
				return fmt.Errorf("worker: --upstream is required")
			}
			return runWorker(cfg, metricsAddr, pidFile, courtesyMode)
		},
	}
	start.Flags().StringVar(&upstreamAddr, "upstream", "", "server or hub address to request tasks from")
	start.Flags().StringVar(&configPath, "config", "", "YAML config file (replaces the other flags' values when set; an explicit --upstream still takes precedence)")
	start.Flags().StringVar(&metricsAddr, "metrics-addr", ":9091", "address for /healthz, /metrics, /status")
	start.Flags().IntVar(&initialWorkers, "workers", 4, "number of worker goroutines")
	start.Flags().StringVar(&courtesyMode, "courtesy", "unconditional", "courtesy policy: unconditional, suspended")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running worker started with `start`",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopByPIDFile(pidFile)
		},
	}

	root.AddCommand(start, stop)
	return root
}

// runWorker assembles and runs a workerhost.Host until interrupted.
func runWorker(cfg config.Worker, metricsAddr, pidFile, courtesyMode string) error {
	mon := courtesy.New(courtesyMode != "suspended")

	host := workerhost.New(workerhost.Config{
		UpstreamAddr:      cfg.UpstreamAddr,
		ReconnectInterval: cfg.ReconnectInterval,
		PollInterval:      cfg.PollInterval,
		InitialWorkers:    cfg.InitialWorkers,
		Executor:          echoExecutor{},
		Courtesy:          mon,
	})
	defer host.Stop()

	if err := writePID(pidFile); err != nil {
		log.Printf("worker: could not write pidfile %s: %v", pidFile, err)
	}
	defer removePID(pidFile)

	if metricsAddr != "" {
		go func() {
			if err := httpapi.Serve(metricsAddr, workerStatus{}); err != nil {
				log.Printf("worker: http admin surface stopped: %v", err)
			}
		}()
	}

	log.Printf("worker: requesting tasks from %s", cfg.UpstreamAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("worker: shutting down")
	time.Sleep(100 * time.Millisecond)
	return nil
}

type workerStatus struct{}

func (workerStatus) Status() any {
	return map[string]any{"role": "worker"}
}
