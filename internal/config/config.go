package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	WorkerModeListen = "listen"
	WorkerModeDial   = "dial"

	SystemLoadCPU = "cpu"
)

// Config - coordinator settings.
type Config struct {
	LogLevel      string  `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort      string  `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort    string  `yaml:"socket-port" env:"SOCKET_PORT" env-default:"5000"`
	WebSocketPort string  `yaml:"websocket-port" env:"WEBSOCKET_PORT" env-default:"8080"`
	Redis         Redis   `yaml:"redis"`
	Workers       Workers `yaml:"workers"`
	Load          Load    `yaml:"load"`
	Rooms         Rooms   `yaml:"rooms"`
	Search        Search  `yaml:"search"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port    string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// Workers - remote worker pool. Addresses are dialed at startup; ListenPort, when set, accepts workers that dial in.
type Workers struct {
	Addresses            []string      `yaml:"addresses" env:"WORKER_ADDRESSES" env-separator:","`
	ListenPort           string        `yaml:"listen-port" env:"WORKER_LISTEN_PORT"`
	AIMoveTimeout        time.Duration `yaml:"ai-move-timeout" env-default:"7s"`
	ValidationTimeout    time.Duration `yaml:"validation-timeout" env-default:"5s"`
	HealthCheckTimeout   time.Duration `yaml:"health-check-timeout" env-default:"3s"`
	HealthCheckInterval  time.Duration `yaml:"health-check-interval" env-default:"30s"`
	HealthCheckStaleness time.Duration `yaml:"health-check-staleness" env-default:"1m"`
	RegistrationTimeout  time.Duration `yaml:"registration-timeout" env-default:"5s"`
	MaxReconnectAttempts int           `yaml:"max-reconnect-attempts" env-default:"5"`
}

// Load - dispatch policy. SystemLoad is "cpu" to sample the host, or a fixed percentage.
type Load struct {
	MaxConcurrentGames int           `yaml:"max-concurrent-games" env-default:"100"`
	MediumThreshold    int           `yaml:"medium-threshold" env-default:"50"`
	HighThreshold      int           `yaml:"high-threshold" env-default:"80"`
	SystemLoad         string        `yaml:"system-load" env:"SYSTEM_LOAD" env-default:"cpu"`
	MonitorInterval    time.Duration `yaml:"monitor-interval" env-default:"30s"`
}

type Rooms struct {
	IdleTimeout     time.Duration `yaml:"idle-timeout" env-default:"10m"`
	CleanupInterval time.Duration `yaml:"cleanup-interval" env-default:"1m"`
	AIMoveDelay     time.Duration `yaml:"ai-move-delay" env-default:"1s"`
	AISymbol        string        `yaml:"ai-symbol" env-default:"O"`
}

type Search struct {
	Depth         int           `yaml:"depth" env:"SEARCH_DEPTH" env-default:"3"`
	Budget        time.Duration `yaml:"budget" env-default:"5s"`
	MaxCandidates int           `yaml:"max-candidates" env-default:"20"`
}

// WorkerConfig - worker process settings.
type WorkerConfig struct {
	LogLevel           string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	Mode               string        `yaml:"mode" env:"WORKER_MODE" env-default:"listen"`
	ListenPort         string        `yaml:"listen-port" env:"WORKER_PORT" env-default:"6000"`
	CoordinatorAddress string        `yaml:"coordinator-address" env:"COORDINATOR_ADDRESS" env-default:"localhost:7000"`
	WorkerID           string        `yaml:"worker-id" env:"WORKER_ID"`
	ReconnectDelay     time.Duration `yaml:"reconnect-delay" env-default:"5s"`
	Search             Search        `yaml:"search"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

// MustLoadWorker - same as MustLoad for the worker process.
func MustLoadWorker(path string) *WorkerConfig {
	config := &WorkerConfig{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load worker config file: %w", err))
	}

	if config.Mode != WorkerModeListen && config.Mode != WorkerModeDial {
		panic(fmt.Errorf("unknown worker mode %q", config.Mode))
	}

	return config
}

// StaticSystemLoad - the fixed percentage, false when the host CPU should be sampled.
func (that *Load) StaticSystemLoad() (int, bool) {
	if strings.EqualFold(that.SystemLoad, SystemLoadCPU) {
		return 0, false
	}

	load, err := strconv.Atoi(that.SystemLoad)
	if err != nil {
		return 0, false
	}

	return min(max(load, 0), 100), true
}

func (that *Redis) GetRedisAddr() string {
	return net.JoinHostPort(that.Host, that.Port)
}

// ParseLogLevel - maps a config level name to slog; unknown names mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
