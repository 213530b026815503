package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "CLASSROOM"

const (
	KeyServerAddr         = "server.addr"
	KeyDatabaseDSN        = "database.dsn"
	KeySigningKey         = "auth.signing_key"
	KeyAllowedOrigins     = "cors.allowed_origins"
	KeyRedisAddress       = "redis.address"
	KeyRedisPassword      = "redis.password"
	KeyRedisDB            = "redis.db"
	KeyRedisHistorySize   = "redis.history_size"
	KeyLogLevel           = "log.level"
	KeyLogPretty          = "log.pretty"
	KeyPersistConcurrency = "hub.persist_concurrency"
)

type Config struct {
	DatabaseDSN        string
	ServerAddr         string
	SigningKey         []byte
	AllowedOrigins     []string
	Redis              RedisConfig
	Log                LogConfig
	PersistConcurrency int
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	HistorySize int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:        databaseDSN,
		ServerAddr:         serverAddr,
		SigningKey:         signingKey,
		AllowedOrigins:     allowedOrigins,
		PersistConcurrency: defaultPersistConcurrency,
	}, nil
}

// NewViper returns a viper instance with defaults and environment bindings.
// configFile may be empty, in which case ./config.yaml is used when present.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return v, nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := NewConfig(
		v.GetString(KeyServerAddr),
		v.GetString(KeyDatabaseDSN),
		v.GetString(KeySigningKey),
		splitOrigins(v.GetStringSlice(KeyAllowedOrigins)),
	)
	if err != nil {
		return nil, err
	}

	cfg.Redis = RedisConfig{
		Address:     v.GetString(KeyRedisAddress),
		Password:    v.GetString(KeyRedisPassword),
		DB:          v.GetInt(KeyRedisDB),
		HistorySize: v.GetInt(KeyRedisHistorySize),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString(KeyLogLevel),
		Pretty: v.GetBool(KeyLogPretty),
	}

	if n := v.GetInt(KeyPersistConcurrency); n > 0 {
		cfg.PersistConcurrency = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks a fully assembled Config.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if len(c.SigningKey) == 0 {
		return fmt.Errorf("signing key cannot be empty")
	}
	if c.PersistConcurrency <= 0 {
		return fmt.Errorf("persist concurrency must be positive, got %d", c.PersistConcurrency)
	}
	if c.Redis.Enabled() && c.Redis.HistorySize <= 0 {
		return fmt.Errorf("redis history size must be positive, got %d", c.Redis.HistorySize)
	}
	return nil
}

// splitOrigins accepts both list values and comma separated strings, which is
// how origins arrive from the environment.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
