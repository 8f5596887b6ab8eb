package cli

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/bwkimmel/jdcp-go/api/computepb"
	"github.com/bwkimmel/jdcp-go/internal/auth"
	"github.com/bwkimmel/jdcp-go/internal/classmanager"
	"github.com/bwkimmel/jdcp-go/internal/codecache"
	"github.com/bwkimmel/jdcp-go/internal/config"
	"github.com/bwkimmel/jdcp-go/internal/httpapi"
	"github.com/bwkimmel/jdcp-go/internal/jobmanager"
	"github.com/bwkimmel/jdcp-go/internal/scheduler"
	"github.com/bwkimmel/jdcp-go/internal/server"
)

const serverPIDFile = "jdcp-server.pid"

// BuildServerCLI builds the server host's command tree: `start`, `stop`,
// `stat`, `clean`, `cancel`, `idle`, and `sync` commands realized against
// the Job Manager / Task Scheduler / Versioned Class Manager this process
// owns, with one cobra.Command per subcommand.
func BuildServerCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "jdcp-server",
		Short: "Job distributed compute platform server",
	}

	var (
		listenAddr  string
		cacheDir    string
		configPath  string
		metricsAddr string
		pidFile     string
		remoteAddr  string
	)
	root.PersistentFlags().StringVar(&remoteAddr, "addr", "localhost:5327", "server address for admin commands")
	root.PersistentFlags().StringVar(&pidFile, "pidfile", serverPIDFile, "pid file for start/stop")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the server, listening for clients and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Server{ListenAddr: listenAddr}
			if configPath != "" {
				loaded, err := config.LoadServer(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
				if listenAddr != "" {
					cfg.ListenAddr = listenAddr
				}
			}
			if cfg.ListenAddr == "" {
				cfg.ListenAddr = ":5327"
			}
			if cacheDir == "" {
				cacheDir = "data/classcache"
			}
			return runServer(cfg, cacheDir, metricsAddr, pidFile)
		},
	}
	start.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (default \":5327\")")
	start.Flags().StringVar(&cacheDir, "cache-dir", "data/classcache", "directory for the Code Cache's WAL and snapshot files")
	start.Flags().StringVar(&configPath, "config", "", "YAML config file supplying the listen address and auth accounts (an explicit --listen takes precedence)")
	start.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address for /healthz, /metrics, /status")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running server started with `start`",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopByPIDFile(pidFile)
		},
	}

	stat := &cobra.Command{
		Use:   "stat <jobId>",
		Short: "Print a job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return statJob(remoteAddr, args[0])
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <jobId>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cancelJob(remoteAddr, args[0])
		},
	}

	idle := &cobra.Command{
		Use:   "idle <seconds>",
		Short: "Set the idle directive worker hosts receive when no task is ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seconds int
			if _, err := fmt.Sscanf(args[0], "%d", &seconds); err != nil {
				return fmt.Errorf("invalid seconds %q", args[0])
			}
			return setIdleSeconds(remoteAddr, seconds)
		},
	}

	sync := &cobra.Command{
		Use:   "sync <dir>",
		Short: "Upload every file in dir as a class definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return syncDir(remoteAddr, args[0])
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify connectivity to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := verify(remoteAddr); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	clean := &cobra.Command{
		Use:   "clean",
		Short: "Explain that deprecated class entries are purged automatically; performs no action",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("clean: deprecated class entries are purged automatically as their last referencing snapshot releases; nothing pending")
			return nil
		},
	}

	root.AddCommand(start, stop, stat, cancel, idle, sync, verifyCmd, clean)
	return root
}

// runServer assembles the Code Cache, Versioned Class Manager, Task
// Scheduler, Job Manager, and authentication handshake into a gRPC server:
// load/construct, serve, wait for SIGINT/SIGTERM, stop gracefully.
func runServer(cfg config.Server, cacheDir, metricsAddr, pidFile string) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	cache, err := codecache.Open(cacheDir+"/cache.wal", cacheDir+"/cache.snapshot")
	if err != nil {
		return fmt.Errorf("server: open code cache: %w", err)
	}
	defer cache.Close()

	classes := classmanager.New(cache)
	sched := scheduler.New()
	jobs := jobmanager.New(sched, classes)
	defer jobs.Close()

	accounts := cfg.Auth.Accounts
	if len(accounts) == 0 {
		accounts = map[string]string{"guest": "guest"}
	}
	auther := auth.NewStaticAuthenticator(accounts)

	srv := server.New(jobs, sched, classes, auther)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.ListenAddr, err)
	}

	gs := grpc.NewServer()
	computepb.RegisterComputeServiceServer(gs, srv)
	computepb.RegisterAuthenticationServiceServer(gs, srv)

	if err := writePID(pidFile); err != nil {
		log.Printf("server: could not write pidfile %s: %v", pidFile, err)
	}
	defer removePID(pidFile)

	if metricsAddr != "" {
		go func() {
			if err := httpapi.Serve(metricsAddr, statusProvider{jobs: jobs, sched: sched}); err != nil {
				log.Printf("server: http admin surface stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	log.Printf("server: listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("server: shutting down")
		done := make(chan struct{})
		go func() { gs.GracefulStop(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			gs.Stop()
		}
		return nil
	}
}

type statusProvider struct {
	jobs  *jobmanager.Manager
	sched *scheduler.Scheduler
}

func (s statusProvider) Status() any {
	return map[string]any{
		"role": "server",
	}
}
