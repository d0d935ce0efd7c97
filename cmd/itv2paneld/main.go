// itv2paneld accepts ITv2 panel connections, drives the handshake and
// session lifecycle from pkg/session/pkg/panelsrv, and logs every
// notification a connected panel reports. Configuration is a YAML file;
// listen_addr and log_level can also be overridden from the command
// line (-listen-addr, -log-level).
//
// Usage:
//
//	itv2paneld -config /etc/itv2paneld/config.yaml
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"net/http"

	"github.com/halvardtech/itv2link/pkg/panelmsg"
	"github.com/halvardtech/itv2link/pkg/panelsrv"
	"github.com/halvardtech/itv2link/pkg/session"
)

// config is the YAML-file shape loaded with -config, mirrored 1:1 onto
// session.Settings and panelsrv.Config.
type config struct {
	ListenAddr          string        `yaml:"listen_addr"`
	MetricsAddr         string        `yaml:"metrics_addr"`
	MaxConcurrentHShake int64         `yaml:"max_concurrent_handshakes"`
	Type1AccessCodeHex  string        `yaml:"type1_access_code"`
	Type2AccessCodeHex  string        `yaml:"type2_access_code"`
	QuietGate           time.Duration `yaml:"quiet_gate"`
	Heartbeat           time.Duration `yaml:"heartbeat"`
	CommandTimeout      time.Duration `yaml:"command_response_timeout"`
	LogLevel            string        `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		ListenAddr:  ":4370",
		MetricsAddr: ":9370",
		LogLevel:    "info",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("itv2paneld: reading config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("itv2paneld: parsing config: %w", err)
	}
	return cfg, nil
}

var (
	configPath string
	listenAddr string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "itv2paneld",
		Short: "Accept ITv2 panel connections and keep their sessions alive",
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&listenAddr, "listen-addr", "", "override listen_addr from the config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override log_level from the config file (trace|debug|info|warn|error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = parseLogLevel(cfg.LogLevel)
	log := loggerFactory.NewLogger("itv2paneld")

	registerer := prometheus.NewRegistry()
	metrics := panelsrv.NewMetrics(registerer)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("itv2paneld: metrics server stopped: %v", err)
			}
		}()
		defer metricsSrv.Close()
	}

	srv, err := panelsrv.NewServer(panelsrv.Config{
		ListenAddr:              cfg.ListenAddr,
		Registry:                panelmsg.NewRegistry(),
		MaxConcurrentHandshakes: cfg.MaxConcurrentHShake,
		LoggerFactory:           loggerFactory,
		Metrics:                 metrics,
		OnNotification:          logNotification(log),
		Settings: session.Settings{
			Type1AccessCode:        decodeAccessCode(cfg.Type1AccessCodeHex),
			Type2AccessCode:        decodeAccessCode(cfg.Type2AccessCodeHex),
			QuietGate:              cfg.QuietGate,
			Heartbeat:              cfg.Heartbeat,
			CommandResponseTimeout: cfg.CommandTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("itv2paneld: starting server: %w", err)
	}

	srv.Start()
	log.Infof("itv2paneld listening on %s", srv.LocalAddr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("itv2paneld received %v, shutting down", sig)

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("itv2paneld: shutdown: %w", err)
	}
	return nil
}

// logNotification is the default panelsrv.NotificationHandler: it logs
// every unmatched inbound message a connected panel reports, keyed by
// session_id.
func logNotification(log logging.LeveledLogger) panelsrv.NotificationHandler {
	return func(sessionID string, msg interface{}) {
		log.Infof("itv2paneld: session %s notification: %T %+v", sessionID, msg, msg)
	}
}

func decodeAccessCode(hexOrPlain string) []byte {
	if hexOrPlain == "" {
		return nil
	}
	return []byte(hexOrPlain)
}

func parseLogLevel(level string) logging.LogLevel {
	switch level {
	case "trace":
		return logging.LogLevelTrace
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
