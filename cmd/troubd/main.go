package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/adapters/mqttserver"
	"github.com/troubadour-audio/troubadour/internal/broker"
	"github.com/troubadour-audio/troubadour/internal/ipc"
	"github.com/troubadour-audio/troubadour/internal/player"
	"github.com/troubadour-audio/troubadour/internal/playerd"
	"github.com/troubadour-audio/troubadour/internal/resolver"
	"github.com/troubadour-audio/troubadour/internal/sink"
	"github.com/troubadour-audio/troubadour/internal/voice"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

func main() {
	var (
		configPath  string
		brokerURL   string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		logColor    bool
		daemonize   bool
		printConfig bool
		dryRun      bool
	)

	defaultConfig, err := playerd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&brokerURL, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include source file in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&logColor, "log-color", false, "enable colored log output (text only)")
	flag.BoolVar(&daemonize, "daemonize", false, "run as daemon")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := playerd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, brokerURL, identity, topicBase, logLevel, logFormat, logOutput, logSource, logUTC, logColor, daemonize)

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logger := playerd.NewLogger(playerd.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
		Source: cfg.Server.LogSource,
		UTC:    cfg.Server.LogUTC,
		Color:  cfg.Server.LogColor,
	})
	if cfg.Server.Daemonize {
		logger.Warn("daemonize is set; running in foreground (not implemented)")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embeddedURL := embeddedBrokerURL(cfg)
	skipEmbedded := false

	if cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedURL {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" {
		logger.Error("broker is required")
		os.Exit(1)
	}
	logger.Info("troubd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.String("sink", cfg.Sink.Driver),
	)

	client, err := mqttserver.NewClient(mqttserver.Options{
		BrokerURL: cfg.Server.Broker,
		ClientID:  fmt.Sprintf("troubd-%d", time.Now().UnixNano()),
		Username:  cfg.Server.Auth.User,
		Password:  cfg.Server.Auth.Pass,
		TLSCA:     cfg.Server.TLS.CA,
		TLSCert:   cfg.Server.TLS.Cert,
		TLSKey:    cfg.Server.TLS.Key,
		Timeout:   2 * time.Second,
		Logger:    logger.With(zap.String("module", "mqtt")),
		Debug:     cfg.Server.LogLevel == "debug",
	})
	if err != nil {
		logger.Error("mqtt connection failed", zap.Error(err))
		os.Exit(1)
	}

	snk, err := buildSink(cfg.Sink)
	if err != nil {
		logger.Error("sink init failed", zap.Error(err))
		os.Exit(1)
	}

	voiceMgr := voice.NewManager(voice.LoopbackTransport{}, cfg.Voice.ManagerConfig(), logger.With(zap.String("module", "voice")))
	resolverSvc := resolver.NewService(cfg.Resolver.ServiceConfig(), logger.With(zap.String("module", "resolver")))

	server := ipc.NewServer(logger.With(zap.String("module", "ipc")), client, ipc.Config{TopicBase: cfg.Server.TopicBase})
	registry := player.NewRegistry(cfg.Player.EngineConfig(), resolverSvc, voiceMgr, snk, server, logger.With(zap.String("module", "player")))
	server.SetSessions(registry)

	modules := []playerd.ModuleRunner{
		{Name: "ipc", Run: server.Run},
		{Name: "voice", Run: func(ctx context.Context) error {
			voiceMgr.Run(ctx)
			return nil
		}},
	}
	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		mod, err := buildEmbeddedBroker(cfg, logger)
		if err != nil {
			logger.Error("embedded mqtt init failed", zap.Error(err))
			os.Exit(1)
		}
		modules = append(modules, playerd.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	supervisor := playerd.Supervisor{Logger: logger}
	err = supervisor.Run(ctx, modules)
	registry.Close()
	client.Close()
	if err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *playerd.Config, brokerURL, identity, topicBase, logLevel, logFormat, logOutput string, logSource, logUTC, logColor, daemonize bool) {
	if brokerURL != "" {
		cfg.Server.Broker = brokerURL
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if logSource {
		cfg.Server.LogSource = true
	}
	if logUTC {
		cfg.Server.LogUTC = true
	}
	if logColor {
		cfg.Server.LogColor = true
	}
	if daemonize {
		cfg.Server.Daemonize = true
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = trb.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildSink(cfg playerd.SinkConfig) (sink.Sink, error) {
	switch cfg.Driver {
	case "gstreamer":
		return sink.NewGstSink(cfg.Pipeline, cfg.Device)
	case "", "null":
		return &sink.NullSink{}, nil
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Driver)
	}
}

func buildEmbeddedBroker(cfg playerd.Config, logger *zap.Logger) (*broker.Broker, error) {
	return broker.New(logger.With(zap.String("module", "embedded_mqtt")), broker.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
}

func embeddedBrokerURL(cfg playerd.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != "" || cfg.Modules.EmbeddedMQTT.TLSCA != ""
	return broker.URL(listen, tlsEnabled)
}

func startEmbeddedBroker(ctx context.Context, cfg playerd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := buildEmbeddedBroker(cfg, logger)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}

func printResolvedConfig(cfg playerd.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s log_level=%s sink=%s embedded_mqtt=%t daemonize=%t\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Sink.Driver,
		cfg.Modules.EmbeddedMQTT.Enabled,
		cfg.Server.Daemonize,
	)
}
