package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreDriverMySQL = "mysql"
	StoreDriverMongo = "mongo"
)

// Feed drivers
const (
	FeedDriverRedis = "redis"
	FeedDriverNats  = "nats"
	FeedDriverLocal = "local"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Nats      NatsConfig      `mapstructure:"nats"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Store     StoreConfig     `mapstructure:"store"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// ChangeStreams enables live watches; standalone servers need the feed instead
	ChangeStreams bool `mapstructure:"change_streams"`
}

// NatsConfig holds NATS configuration
type NatsConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
	SnapshotBuffer   int           `mapstructure:"snapshot_buffer"`
}

// StoreConfig selects the conversation store backing the trackers
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// FeedConfig selects the change feed transport
type FeedConfig struct {
	Driver string `mapstructure:"driver"`
}

// TrackerConfig holds the unread tracker timings
type TrackerConfig struct {
	Tolerance    time.Duration `mapstructure:"tolerance"`
	ShortConfirm time.Duration `mapstructure:"short_confirm"`
	LongConfirm  time.Duration `mapstructure:"long_confirm"`
	Settle       time.Duration `mapstructure:"settle"`
	Retry        time.Duration `mapstructure:"retry"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("BAZAAR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.MySQL.Charset == "" {
		cfg.MySQL.Charset = "utf8mb4"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "bazaar:"
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "bazaar"
	}
	if cfg.Mongo.ConnectTimeout == 0 {
		cfg.Mongo.ConnectTimeout = 10 * time.Second
	}
	if cfg.Nats.Name == "" {
		cfg.Nats.Name = "bazaar"
	}
	if cfg.Nats.ReconnectWait == 0 {
		cfg.Nats.ReconnectWait = 2 * time.Second
	}
	if cfg.Nats.MaxReconnects == 0 {
		cfg.Nats.MaxReconnects = -1
	}
	if cfg.Nats.SubjectPrefix == "" {
		cfg.Nats.SubjectPrefix = "bazaar"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = 27 * time.Second
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.WebSocket.SnapshotBuffer == 0 {
		cfg.WebSocket.SnapshotBuffer = 16
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverMySQL
	}
	if cfg.Feed.Driver == "" {
		cfg.Feed.Driver = FeedDriverRedis
	}
	if cfg.Tracker.Tolerance == 0 {
		cfg.Tracker.Tolerance = 3 * time.Second
	}
	if cfg.Tracker.ShortConfirm == 0 {
		cfg.Tracker.ShortConfirm = 500 * time.Millisecond
	}
	if cfg.Tracker.LongConfirm == 0 {
		cfg.Tracker.LongConfirm = 7 * time.Second
	}
	if cfg.Tracker.Settle == 0 {
		cfg.Tracker.Settle = 2 * time.Second
	}
	if cfg.Tracker.Retry == 0 {
		cfg.Tracker.Retry = 5 * time.Second
	}
	if cfg.Tracker.OpTimeout == 0 {
		cfg.Tracker.OpTimeout = 10 * time.Second
	}
	if cfg.Tracker.Concurrency == 0 {
		cfg.Tracker.Concurrency = 8
	}
}

// Validate checks driver names and the values the defaults cannot fill
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMySQL, StoreDriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Feed.Driver {
	case FeedDriverRedis, FeedDriverNats, FeedDriverLocal:
	default:
		return fmt.Errorf("unknown feed driver %q", c.Feed.Driver)
	}
	if c.Store.Driver == StoreDriverMongo && c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required for the mongo store")
	}
	if c.Feed.Driver == FeedDriverNats && c.Nats.URL == "" {
		return fmt.Errorf("nats.url is required for the nats feed")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Tracker.LongConfirm < c.Tracker.ShortConfirm {
		return fmt.Errorf("tracker.long_confirm must not be shorter than tracker.short_confirm")
	}
	return nil
}
