package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/internal/httpapi"
	"github.com/rmacdonaldsmith/quasar-go/internal/logging"
	"github.com/rmacdonaldsmith/quasar-go/internal/node"
)

const (
	// Application info
	appName    = "Quasar"
	appVersion = "0.1.0"

	shutdownTimeout = 30 * time.Second
)

// flags overrides the config file for a single run
type flags struct {
	dataDir     string
	listen      string
	advertise   string
	bootstrap   []string
	testnet     bool
	controlPort string
	noControl   bool
	noAuth      bool
	logLevel    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:     "quasard",
		Short:   "Quasar overlay node",
		Version: appVersion,
		Long: `quasard runs a Quasar publish/subscribe overlay node. On first run it
generates a node key, solves the identity proof of work and writes a default
config.yaml into the data directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := ensureControlSecret(&cfg); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			setupGracefulShutdown(cancel, logger)

			d := &daemon{
				config:     cfg,
				noAuth:     f.noAuth,
				logger:     logger,
				registerer: prometheus.DefaultRegisterer,
				gatherer:   prometheus.DefaultGatherer,
				out:        cmd.OutOrStdout(),
			}
			return d.run(ctx)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.dataDir, "data-dir", node.DefaultDataDir(), "Directory holding config.yaml, the node key and identity")
	pf.BoolVar(&f.testnet, "testnet", false, "Use the reduced test network proof-of-work difficulty")

	fl := rootCmd.Flags()
	fl.StringVar(&f.listen, "listen", "", "Peer transport listen address (overrides listen_address)")
	fl.StringVar(&f.advertise, "advertise", "", "Address advertised to peers (overrides advertise_address)")
	fl.StringSliceVar(&f.bootstrap, "bootstrap", nil, "Seed peers as host:port or quasar:// URLs (added to bootstrap)")
	fl.StringVar(&f.controlPort, "control-port", "", "Control API port (overrides control_port)")
	fl.BoolVar(&f.noControl, "no-control", false, "Disable the control API")
	fl.BoolVar(&f.noAuth, "no-auth", false, "Serve the control API without authentication (development only)")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newIdentityCommand(f))
	rootCmd.AddCommand(newTokenCommand(f))

	return rootCmd
}

// load reads the config file and applies the flags that were set
func (f *flags) load(cmd *cobra.Command) (node.FileConfig, error) {
	cfg, created, err := node.LoadFileConfig(f.dataDir)
	if err != nil {
		return node.FileConfig{}, err
	}
	if created {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote default configuration to %s\n", filepath.Join(f.dataDir, node.ConfigFileName))
	}

	changed := cmd.Flags().Changed
	if changed("testnet") {
		cfg.TestNetworkEnabled = f.testnet
	}
	if changed("listen") {
		cfg.ListenAddress = f.listen
	}
	if changed("advertise") {
		cfg.AdvertiseAddress = f.advertise
	}
	if changed("bootstrap") {
		cfg.Bootstrap = append(cfg.Bootstrap, f.bootstrap...)
	}
	if changed("control-port") {
		cfg.ControlPort = f.controlPort
	}
	if changed("no-control") {
		cfg.ControlEnabled = !f.noControl
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

// ensureControlSecret generates and persists a signing secret so issued
// tokens survive restarts
func ensureControlSecret(cfg *node.FileConfig) error {
	if !cfg.ControlEnabled || cfg.ControlSecret != "" {
		return nil
	}
	cfg.ControlSecret = httpapi.GenerateSecret()

	// Persist only the secret, not this run's flag overrides
	onDisk, _, err := node.LoadFileConfig(cfg.DataDir)
	if err != nil {
		return err
	}
	onDisk.ControlSecret = cfg.ControlSecret
	return onDisk.Save(filepath.Join(cfg.DataDir, node.ConfigFileName))
}

// daemon runs one node and its control API until the context ends
type daemon struct {
	config node.FileConfig
	noAuth bool
	logger *zap.Logger

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	// controlListener, when set, is served instead of the control port
	controlListener net.Listener

	out io.Writer
}

func (d *daemon) run(ctx context.Context) error {
	d.logger.Info("starting "+appName, zap.String("version", appVersion), zap.String("data_dir", d.config.DataDir))

	key, id, err := loadIdentity(ctx, d.config, d.logger)
	if err != nil {
		return err
	}

	config := node.NewConfig(key, id, d.config.ListenAddress).
		WithSeeds(d.config.Bootstrap...).
		WithTestnet(d.config.TestNetworkEnabled).
		WithAdvertiseAddress(d.config.AdvertiseAddress).
		WithRegisterer(d.registerer).
		WithLogger(d.logger)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	n, err := node.NewNode(config)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	defer func() {
		if err := n.Close(); err != nil {
			d.logger.Warn("error closing node", zap.Error(err))
		}
	}()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	d.showStartupInfo(ctx, n)

	serveErr := make(chan error, 1)
	var server *httpapi.Server
	if d.config.ControlEnabled {
		server = httpapi.NewServer(n, httpapi.Config{
			Port:      d.config.ControlPort,
			SecretKey: d.config.ControlSecret,
			NoAuth:    d.noAuth,
			Gatherer:  d.gatherer,
			Logger:    d.logger,
		})
		go func() {
			if d.controlListener != nil {
				serveErr <- server.Serve(d.controlListener)
				return
			}
			serveErr <- server.Start()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("control api: %w", err)
		}
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			d.logger.Warn("error stopping control api", zap.Error(err))
		}
	}
	if err := n.Stop(shutdownCtx); err != nil {
		d.logger.Warn("error during graceful stop", zap.Error(err))
	}
	fmt.Fprintf(d.out, "%s node %s stopped\n", appName, n.GetNodeID())
	return nil
}

// showStartupInfo prints the contact URL peers bootstrap from
func (d *daemon) showStartupInfo(ctx context.Context, n *node.Node) {
	fmt.Fprintf(d.out, "%s node started\n", appName)
	fmt.Fprintf(d.out, "  Contact: %s\n", n.GetContact().URL())

	health, err := n.GetHealth(ctx)
	if err != nil {
		d.logger.Warn("could not get health status", zap.Error(err))
		return
	}
	fmt.Fprintf(d.out, "  Health: %s\n", healthStatus(health.Healthy))
	fmt.Fprintf(d.out, "  Known Peers: %d\n", health.KnownPeers)
	if d.config.ControlEnabled {
		fmt.Fprintf(d.out, "  Control API: port %s\n", d.config.ControlPort)
	}
}

// setupGracefulShutdown cancels the run on SIGINT, SIGTERM or SIGHUP
func setupGracefulShutdown(cancel context.CancelFunc, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
		cancel()
	}()
}

func healthStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
