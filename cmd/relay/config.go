package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hubenschmidt/realtime-relay/internal/audio"
	"github.com/hubenschmidt/realtime-relay/internal/env"
	"github.com/hubenschmidt/realtime-relay/internal/relay"
	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

type config struct {
	port             string
	apiKey           string
	realtimeURL      string
	baseURL          string
	model            string
	voice            string
	instructions     string
	language         string
	preflight        bool
	engine           string
	queueSize        int
	maxConcurrent    int
	connectTimeout   time.Duration
	configureTimeout time.Duration
	sendTimeout      time.Duration
	queueWait        time.Duration
	recvTimeout      time.Duration
	traceDatabaseURL string
	staticDir        string
	logLevel         string
	vad              relay.VADConfig
}

// fileConfig is the optional YAML file. Every field may be omitted.
type fileConfig struct {
	Model           string           `yaml:"model"`
	Voice           string           `yaml:"voice"`
	Instructions    string           `yaml:"instructions"`
	Language        string           `yaml:"language"`
	ResamplerEngine string           `yaml:"resampler_engine"`
	MaxConcurrent   int              `yaml:"max_concurrent_clients"`
	VAD             *relay.VADConfig `yaml:"vad"`
}

func defaultConfig() config {
	return config{
		port:             "8000",
		model:            upstream.DefaultModel,
		engine:           audio.EngineSinc,
		queueSize:        256,
		maxConcurrent:    100,
		connectTimeout:   10 * time.Second,
		configureTimeout: 5 * time.Second,
		sendTimeout:      5 * time.Second,
		queueWait:        10 * time.Second,
		recvTimeout:      60 * time.Second,
		logLevel:         "info",
		vad:              relay.DefaultVAD(),
	}
}

// loadConfig layers defaults, the YAML file at path (if any) and the environment.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	if !audio.HasEngine(cfg.engine) {
		return cfg, fmt.Errorf("unknown resampler engine %q (have %v)", cfg.engine, audio.Engines())
	}
	return cfg, nil
}

func (c *config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err = yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.model = orDefault(fc.Model, c.model)
	c.voice = orDefault(fc.Voice, c.voice)
	c.instructions = orDefault(fc.Instructions, c.instructions)
	c.language = orDefault(fc.Language, c.language)
	c.engine = orDefault(fc.ResamplerEngine, c.engine)
	if fc.MaxConcurrent > 0 {
		c.maxConcurrent = fc.MaxConcurrent
	}
	if fc.VAD != nil {
		if err = fc.VAD.Validate(); err != nil {
			return fmt.Errorf("config %s: vad: %w", path, err)
		}
		c.vad = *fc.VAD
	}
	return nil
}

func (c *config) applyEnv() {
	c.port = env.Str("RELAY_PORT", c.port)
	c.apiKey = env.Str("OPENAI_API_KEY", c.apiKey)
	c.realtimeURL = env.Str("OPENAI_REALTIME_URL", c.realtimeURL)
	c.baseURL = env.Str("OPENAI_BASE_URL", c.baseURL)
	c.model = env.Str("OPENAI_REALTIME_MODEL", c.model)
	c.voice = env.Str("OPENAI_VOICE", c.voice)
	c.instructions = env.Str("RELAY_INSTRUCTIONS", c.instructions)
	c.language = env.Str("RELAY_LANGUAGE", c.language)
	c.preflight = env.Bool("RELAY_PREFLIGHT", c.preflight)
	c.engine = env.Str("RESAMPLER_ENGINE", c.engine)
	c.queueSize = env.Int("AUDIO_QUEUE_CAPACITY", c.queueSize)
	c.maxConcurrent = env.Int("MAX_CONCURRENT_CLIENTS", c.maxConcurrent)
	c.connectTimeout = env.Duration("UPSTREAM_CONNECT_TIMEOUT", c.connectTimeout)
	c.configureTimeout = env.Duration("UPSTREAM_CONFIGURE_TIMEOUT", c.configureTimeout)
	c.sendTimeout = env.Duration("UPSTREAM_SEND_TIMEOUT", c.sendTimeout)
	c.queueWait = env.Duration("AUDIO_QUEUE_WAIT", c.queueWait)
	c.recvTimeout = env.Duration("UPSTREAM_RECV_TIMEOUT", c.recvTimeout)
	c.traceDatabaseURL = env.Str("TRACE_DATABASE_URL", c.traceDatabaseURL)
	c.staticDir = env.Str("STATIC_DIR", c.staticDir)
	c.logLevel = env.Str("LOG_LEVEL", c.logLevel)
}

// applyFlags overrides with flags the user set explicitly.
func (c *config) applyFlags(flags *pflag.FlagSet) {
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("port", &c.port)
	str("model", &c.model)
	str("static-dir", &c.staticDir)
	str("log-level", &c.logLevel)
	str("resampler", &c.engine)
	if flags.Changed("preflight") {
		c.preflight, _ = flags.GetBool("preflight")
	}
}

func (c config) validate() error {
	if c.apiKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if !audio.HasEngine(c.engine) {
		return fmt.Errorf("unknown resampler engine %q", c.engine)
	}
	return nil
}

func (c config) relayConfig() relay.Config {
	return relay.Config{
		Instructions:     c.instructions,
		Language:         c.language,
		Voice:            c.voice,
		DefaultVAD:       c.vad,
		Engine:           c.engine,
		QueueSize:        c.queueSize,
		ConnectTimeout:   c.connectTimeout,
		ConfigureTimeout: c.configureTimeout,
		SendTimeout:      c.sendTimeout,
		QueueWait:        c.queueWait,
		RecvTimeout:      c.recvTimeout,
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
