package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

// env overlay uses this prefix, e.g. BRIDGE_SERVER_REDIS_HOST
const envPrefix = "BRIDGE"

// reading config error is fatal, and exists main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process(envPrefix, cfg)
}

// Load reads the yaml file and overlays environment variables on top
func Load(path string) (*Configuration, error) {
	var cfg Configuration
	if err := readFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := readEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Init() {
	path := os.Getenv("BRIDGE_CONFIG")
	if path == "" {
		path = "config.yml"
	}
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	Config = *cfg
}
