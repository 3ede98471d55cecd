package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	pkgconfig "github.com/ga-techcraft/Online-Chat-Messenger/pkg/config"
	pkglog "github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	Control   ControlConfig
	Data      DataConfig
	Admin     AdminConfig
	GRPC      GRPCConfig
	Token     TokenConfig
	Password  PasswordConfig
	Events    EventsConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Directory DirectoryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	InstanceID      string        `mapstructure:"instance_id"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ControlConfig struct {
	Port             int
	AdvertiseAddress string        `mapstructure:"advertise_address"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MaxPayloadBytes  int           `mapstructure:"max_payload_bytes"`
}

type DataConfig struct {
	Port           int
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type AdminConfig struct {
	Enabled bool
	Port    int
	Token   string
}

type GRPCConfig struct {
	Enabled bool
	Port    int
}

type TokenConfig struct {
	Size int
}

type PasswordConfig struct {
	Cost int
}

type EventsConfig struct {
	Driver     string
	BufferSize int `mapstructure:"buffer_size"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Brokers    string
	Partitions int
}

type DirectoryConfig struct {
	Enabled           bool
	Prefix            string
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config", "config")
}

// WatchLogLevel re-reads log.level from the config file whenever it changes
// and passes it to apply. It reports whether a file is being watched.
func WatchLogLevel(configPath, configName string, apply func(level string)) (bool, error) {
	v, err := pkgconfig.Load(configPath, configName)
	if err != nil {
		return false, err
	}
	v.SetDefault("log.level", "info")
	v.BindEnv("log.level", "LOG_LEVEL")

	return pkgconfig.Watch(v, func(e fsnotify.Event) {
		apply(v.GetString("log.level"))
	}), nil
}

// LoadFrom is Load with an explicit config location.
func LoadFrom(configPath, configName string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, configName)
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	// Pods get a unique HOSTNAME; fall back to a fixed id elsewhere.
	v.SetDefault("server.instance_id", pkgconfig.GetEnv("HOSTNAME", "relay-1"))
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("control.port", 6058)
	v.SetDefault("control.advertise_address", "localhost:6058")
	v.SetDefault("control.idle_timeout", "0s")
	v.SetDefault("control.max_payload_bytes", 1<<20)
	v.SetDefault("data.port", 7018)
	v.SetDefault("data.read_buffer_size", 4096)
	v.SetDefault("data.session_timeout", "15s")
	v.SetDefault("data.sweep_interval", "5s")
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.port", 8095)
	v.SetDefault("admin.token", "")
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.port", 50060)
	v.SetDefault("token.size", 43)
	v.SetDefault("password.cost", 10)
	v.SetDefault("events.driver", pubsub.DriverNone)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("directory.enabled", false)
	v.SetDefault("directory.prefix", "relay:directory")
	v.SetDefault("directory.key_ttl", "30s")
	v.SetDefault("directory.heartbeat_interval", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("control.port", "CONTROL_PORT")
	v.BindEnv("control.advertise_address", "CONTROL_ADVERTISE_ADDRESS")
	v.BindEnv("data.port", "DATA_PORT")
	v.BindEnv("data.session_timeout", "SESSION_TIMEOUT")
	v.BindEnv("data.sweep_interval", "SWEEP_INTERVAL")
	v.BindEnv("admin.port", "ADMIN_PORT")
	v.BindEnv("admin.token", "ADMIN_TOKEN")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("directory.enabled", "DIRECTORY_ENABLED")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 15*time.Second)
	cfg.Control.IdleTimeout = parseDuration(v, "control.idle_timeout", 0)
	cfg.Data.SessionTimeout = parseDuration(v, "data.session_timeout", 15*time.Second)
	cfg.Data.SweepInterval = parseDuration(v, "data.sweep_interval", 5*time.Second)
	cfg.Directory.KeyTTL = parseDuration(v, "directory.key_ttl", 30*time.Second)
	cfg.Directory.HeartbeatInterval = parseDuration(v, "directory.heartbeat_interval", 10*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the servers cannot run with.
func (c *Config) Validate() error {
	if c.Control.Port == c.Data.Port && c.Control.Port != 0 {
		return fmt.Errorf("control and data ports must differ, both are %d", c.Control.Port)
	}
	if c.Data.SweepInterval <= 0 {
		return fmt.Errorf("data.sweep_interval must be positive, got %s", c.Data.SweepInterval)
	}
	if c.Data.SessionTimeout <= 0 {
		return fmt.Errorf("data.session_timeout must be positive, got %s", c.Data.SessionTimeout)
	}
	if c.Data.ReadBufferSize < 512 {
		return fmt.Errorf("data.read_buffer_size must be at least 512, got %d", c.Data.ReadBufferSize)
	}
	switch c.Events.Driver {
	case pubsub.DriverNone, pubsub.DriverRedis, pubsub.DriverKafka:
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	return nil
}

// PubSub converts the events section into a pubsub.Config.
func (c *Config) PubSub() pubsub.Config {
	pc := pubsub.DefaultConfig()
	pc.Driver = c.Events.Driver
	pc.Redis.Address = c.Redis.Address
	pc.Redis.Password = c.Redis.Password
	pc.Redis.DB = c.Redis.DB
	if c.Redis.PoolSize > 0 {
		pc.Redis.PoolSize = c.Redis.PoolSize
	}
	pc.Kafka.Brokers = c.Kafka.Brokers
	if c.Kafka.Partitions > 0 {
		pc.Kafka.Partitions = c.Kafka.Partitions
	}
	return pc
}

// Logger converts the log section into a pkg/log config.
func (c *Config) Logger(serviceName string) pkglog.Config {
	return pkglog.Config{
		Level:       c.Log.Level,
		Pretty:      c.Log.Pretty,
		ServiceName: serviceName,
		InstanceID:  c.Server.InstanceID,
	}
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
