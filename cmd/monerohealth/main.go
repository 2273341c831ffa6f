package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/monero-ecosystem/monerohealth/internal/alert"
	"github.com/monero-ecosystem/monerohealth/internal/config"
	"github.com/monero-ecosystem/monerohealth/internal/health"
	"github.com/monero-ecosystem/monerohealth/internal/logging"
	"github.com/monero-ecosystem/monerohealth/internal/metrics"
	"github.com/monero-ecosystem/monerohealth/internal/probe"
	"github.com/monero-ecosystem/monerohealth/internal/scheduler"
	"github.com/monero-ecosystem/monerohealth/internal/server"
	"github.com/monero-ecosystem/monerohealth/internal/storage"
	"github.com/monero-ecosystem/monerohealth/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what the persistent pre-run resolved for the subcommands.
type app struct {
	cfgFile string
	envFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "monerohealth",
		Short:        "Health checks for a Monero daemon",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file path (optional)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.String("host", "", "daemon host, overrides MONEROD_URL")
	pf.Int("rpc-port", 0, "daemon RPC port, overrides MONEROD_RPC_PORT")
	pf.Int("p2p-port", 0, "daemon P2P port, overrides MONEROD_P2P_PORT")
	pf.Int("offset", 0, "maximum age of the last block, overrides OFFSET")
	pf.String("offset-unit", "", "unit of --offset, overrides OFFSET_UNIT")
	pf.Bool("consider-p2p", false, "let the P2P check affect the daemon status, overrides CONSIDER_P2P")

	root.AddCommand(versionCmd())
	root.AddCommand(checkCmd(a))
	root.AddCommand(singleCmds(a)...)
	root.AddCommand(serveCmd(a))
	root.AddCommand(statusCmd(a))

	return root
}

// setup loads .env, the configuration and the logger, then applies flag
// overrides on top of the configuration.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	a.logger = logger
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("host") {
		cfg.Daemon.Host, err = f.GetString("host")
	}
	if err == nil && f.Changed("rpc-port") {
		cfg.Daemon.RPCPort, err = f.GetInt("rpc-port")
	}
	if err == nil && f.Changed("p2p-port") {
		cfg.Daemon.P2PPort, err = f.GetInt("p2p-port")
	}
	if err == nil && f.Changed("offset") {
		cfg.Offset.Amount, err = f.GetInt("offset")
	}
	if err == nil && f.Changed("offset-unit") {
		cfg.Offset.Unit, err = f.GetString("offset-unit")
	}
	if err == nil && f.Changed("consider-p2p") {
		cfg.ConsiderP2P, err = f.GetBool("consider-p2p")
	}
	return err
}

// checker builds the health checker for the resolved configuration.
func (a *app) checker() *health.Checker {
	timeout := a.cfg.Daemon.Timeout.Duration
	return health.NewChecker(health.DefaultDialer(timeout), probe.NewTCPProber(timeout), a.logger)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Check the daemon periodically and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	req := cfg.Request()
	logger.Info("config loaded",
		zap.String("host", req.Host),
		zap.Int("rpc_port", req.RPCPort),
		zap.Int("p2p_port", req.P2PPort),
		zap.Stringer("offset", req.Offset),
		zap.Bool("consider_p2p", req.ConsiderP2P),
	)

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	checker := a.checker()

	var alerter *alert.Alerter
	if cfg.Alerts.Webhook.URL != "" {
		alerter = alert.New(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Cooldown.Duration, logger)
	}

	sched := scheduler.New(scheduler.Options{
		Request:   req,
		Interval:  cfg.Schedule.Interval.Duration,
		Retention: cfg.Storage.Retention.Duration,
	}, checker, db, logger)
	sched.SetRecorder(recorder)
	if alerter != nil {
		sched.SetOnResult(alerter.Notify)
	}

	apiServer := server.New(checker, req, db, registry, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gctx)
		logger.Info("scheduler started", zap.Duration("interval", cfg.Schedule.Interval.Duration))
		sched.Wait()
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if alerter != nil {
		alerter.Wait()
	}
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func statusCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print recent runs from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.Open(a.cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			return executeStatus(cmd, db, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
