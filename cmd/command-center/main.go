package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"stage-command-center/internal/ai"
	"stage-command-center/internal/relay"
	"stage-command-center/internal/show"
	"stage-command-center/internal/store"
	"stage-command-center/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Path string `yaml:"path"` // empty keeps everything in memory
	} `yaml:"store"`
	Dispatcher struct {
		Type string `yaml:"type"` // "loopback", "mqtt" or "serial"
	} `yaml:"dispatcher"`
	MQTT struct {
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
		Discovery   bool   `yaml:"discovery"`
	} `yaml:"mqtt"`
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	AI struct {
		APIKey      string `yaml:"api_key"`
		Model       string `yaml:"model"`
		SpeechModel string `yaml:"speech_model"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"ai"`
	Show struct {
		SeedFile          string `yaml:"seed_file"`
		SimulatorInterval string `yaml:"simulator_interval"` // empty disables random failures
	} `yaml:"show"`
	Telegram struct {
		BotToken string   `yaml:"bot_token"`
		ChatIDs  []string `yaml:"chat_ids"`
	} `yaml:"telegram"`
	Exec struct {
		Allowlist []string `yaml:"allowlist"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"exec"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	switch c.Dispatcher.Type {
	case "loopback":
	case "mqtt":
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required for the mqtt dispatcher")
		}
	case "serial":
		if c.Serial.Port == "" {
			return fmt.Errorf("serial.port is required for the serial dispatcher")
		}
	default:
		return fmt.Errorf("unknown dispatcher type: %q (supported: loopback, mqtt, serial)", c.Dispatcher.Type)
	}
	for name, v := range map[string]string{
		"ai.timeout":              c.AI.Timeout,
		"show.simulator_interval": c.Show.SimulatorInterval,
		"exec.timeout":            c.Exec.Timeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func main() {
	listPorts := flag.Bool("list-ports", false, "print available serial ports and exit")
	flag.Parse()

	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *listPorts {
		ports, err := relay.ListPorts()
		if err != nil {
			bootLogger.Error("list serial ports", "err", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfgPath := "config.yaml"
	if flag.NArg() > 0 {
		cfgPath = flag.Arg(0)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("stage-command-center starting", "version", version)

	seed := show.DefaultSeed()
	if cfg.Show.SeedFile != "" {
		if seed, err = show.LoadSeed(cfg.Show.SeedFile); err != nil {
			logger.Error("load show seed", "err", err)
			os.Exit(1)
		}
	}

	var persister show.Persister
	if cfg.Store.Path != "" {
		db, err := store.NewBoltStore(cfg.Store.Path)
		if err != nil {
			logger.Error("open store", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := store.Restore(db, &seed); err != nil {
			logger.Error("restore saved show data", "err", err)
			os.Exit(1)
		}
		persister = db
	}

	var assistant show.Assistant
	if cfg.AI.APIKey != "" {
		client, err := ai.New(context.Background(), ai.Config{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			SpeechModel: cfg.AI.SpeechModel,
			Timeout:     parseDuration(cfg.AI.Timeout),
			Retry:       ai.DefaultRetryConfig(),
		}, logger)
		if err != nil {
			logger.Error("create ai assistant", "err", err)
			os.Exit(1)
		}
		assistant = client
	} else {
		logger.Warn("ai.api_key not set, assistant features disabled")
	}

	// The MQTT dispatcher publishes the rig, which the show owns, so it reads
	// equipment through current once it exists.
	var current atomic.Pointer[show.Show]
	events := show.NewEventBus(logger)
	equipment := func() []show.EquipmentItem {
		if sh := current.Load(); sh != nil {
			return sh.Equipment()
		}
		return nil
	}

	dispatcher, closeDispatcher, err := createDispatcher(cfg, events, equipment, logger)
	if err != nil {
		logger.Error("create dispatcher", "err", err)
		os.Exit(1)
	}

	sh := show.New(seed, show.Options{
		Dispatcher: dispatcher,
		Assistant:  assistant,
		Persister:  persister,
		Events:     events,
		Logger:     logger.With("component", "show"),
	})
	current.Store(sh)
	sh.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if d := parseDuration(cfg.Show.SimulatorInterval); d > 0 {
		logger.Info("failure simulator enabled", "interval", d)
		go sh.RunFailureSimulator(ctx, d)
	}

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(sh, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)

	webServer := web.NewServer(sh, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // AI generation can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	sh.Stop()
	closeDispatcher()

	logger.Info("goodbye")
}

// createDispatcher builds the configured command transport and a func that
// releases it.
func createDispatcher(cfg *Config, events *show.EventBus, equipment func() []show.EquipmentItem, logger *slog.Logger) (show.Dispatcher, func(), error) {
	switch cfg.Dispatcher.Type {
	case "mqtt":
		return initMQTT(cfg, events, equipment, logger)
	case "serial":
		logger.Info("using serial relay dispatcher", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)
		d, err := relay.Open(relay.Config{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud}, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {
			if err := d.Close(); err != nil {
				logger.Warn("close relay", "err", err)
			}
		}, nil
	default:
		logger.Info("using loopback dispatcher")
		return show.NewLoopback(), func() {}, nil
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Dispatcher.Type == "" {
		cfg.Dispatcher.Type = "loopback"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "stage"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

// parseDuration returns zero for empty or invalid values; validate has
// already rejected the invalid ones.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
