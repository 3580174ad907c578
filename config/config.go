package config

import (
	"time"

	"gomultibridge/types"
)

type Configuration struct {
	// Server config
	Server struct {
		Listen      string `yaml:"listen" split_words:"true"`
		UseSSL      bool   `yaml:"ssl" envconfig:"SSL"`
		RedisPort   int    `yaml:"redis_port" split_words:"true"`
		RedisHost   string `yaml:"redis_host" split_words:"true"`
		Storage     string `yaml:"storage"` // "redis" or "file"
		StoragePath string `yaml:"storage_path" split_words:"true"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Tracking struct {
		PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
		MaxAge       time.Duration `yaml:"max_age" split_words:"true"`
		AckTimeout   time.Duration `yaml:"ack_timeout" split_words:"true"`
	} `yaml:"tracking"`
	Backends struct {
		RelayBridge BackendConfig `yaml:"relay_bridge" split_words:"true"`
		Routed      BackendConfig `yaml:"routed"`
		Settlement  BackendConfig `yaml:"settlement"`
	} `yaml:"backends"`
	// important private stuff, used by the operator signer only
	Signer struct {
		PrivateKey string `yaml:"private_key" split_words:"true"`
	} `yaml:"signer"`

	Chains []types.Chain     `yaml:"chains" ignored:"true"`
	Tokens []types.Token     `yaml:"tokens" ignored:"true"`
	Routes []RouteConfig     `yaml:"routes" ignored:"true"`
	Prices map[string]string `yaml:"prices" ignored:"true"` // token id -> USD price per whole token
}

type BackendConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	ExplorerURL string        `yaml:"explorer_url" split_words:"true"` // fmt pattern, one %s for the correlation id
	Timeout     time.Duration `yaml:"timeout"`
}

type RouteConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Token       string `yaml:"token"` // empty matches any token
	Backend     string `yaml:"backend"`
}

var Config Configuration

const (
	DefaultListen       = ":8080"
	DefaultPollInterval = 30 * time.Second
	DefaultMaxAge       = 14 * 24 * time.Hour
	DefaultAckTimeout   = 5 * time.Minute
	DefaultRPCTimeout   = 20 * time.Second
)

// maximum number of EVM RPC endpoints tried per call
const EVM_RETRIES = 3

func (c *Configuration) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.Storage == "" {
		c.Server.Storage = "redis"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Tracking.PollInterval <= 0 {
		c.Tracking.PollInterval = DefaultPollInterval
	}
	if c.Tracking.MaxAge <= 0 {
		c.Tracking.MaxAge = DefaultMaxAge
	}
	if c.Tracking.AckTimeout <= 0 {
		c.Tracking.AckTimeout = DefaultAckTimeout
	}
	for _, b := range []*BackendConfig{&c.Backends.RelayBridge, &c.Backends.Routed, &c.Backends.Settlement} {
		if b.Timeout <= 0 {
			b.Timeout = DefaultRPCTimeout
		}
	}
}
