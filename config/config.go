package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/datachainlab/ibc-relayer/core"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Global GlobalConfig   `yaml:"global" json:"global"`
	Chains []*ChainConfig `yaml:"chains" json:"chains"`
	Paths  core.Paths     `yaml:"paths" json:"paths"`

	// ConfigPath is the file the config was loaded from and is saved to
	ConfigPath string `yaml:"-" json:"-"`

	mu     sync.Mutex
	chains Chains
}

type GlobalConfig struct {
	// Timeout is the interval between handshake steps of the tx commands
	Timeout time.Duration    `yaml:"timeout" json:"timeout"`
	Logger  LoggerConfig     `yaml:"logger" json:"logger"`
	Retry   core.RetryPolicy `yaml:"retry" json:"retry"`
	// RelayInterval drives timeout checks and handshake polling of the relay service
	RelayInterval time.Duration `yaml:"relay-interval" json:"relay-interval"`
	// ResubscribeDelay is the first backoff delay after an event feed breaks
	ResubscribeDelay time.Duration `yaml:"resubscribe-delay" json:"resubscribe-delay"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

func DefaultConfig(configPath string) *Config {
	return &Config{
		Global:     newDefaultGlobalConfig(),
		Chains:     []*ChainConfig{},
		Paths:      core.Paths{},
		ConfigPath: configPath,
	}
}

// newDefaultGlobalConfig returns a global config with defaults set
func newDefaultGlobalConfig() GlobalConfig {
	svc := core.DefaultServiceConfig()
	return GlobalConfig{
		Timeout: 10 * time.Second,
		Logger: LoggerConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "stderr",
		},
		Retry:            svc.Retry,
		RelayInterval:    svc.Interval,
		ResubscribeDelay: svc.ResubscribeDelay,
	}
}

// Load reads the config file at configPath. JSON files are accepted as well.
func Load(configPath string) (*Config, error) {
	bz, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig(configPath)
	if err := UnmarshalYAML(bz, c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	if c.Paths == nil {
		c.Paths = core.Paths{}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, ch := range c.Chains {
		if err := ch.Validate(); err != nil {
			return err
		}
		if seen[ch.ChainID] {
			return fmt.Errorf("chain %s is configured twice", ch.ChainID)
		}
		seen[ch.ChainID] = true
	}
	for _, name := range c.Paths.Names() {
		if err := c.Paths[name].Validate(); err != nil {
			return fmt.Errorf("path %s: %w", name, err)
		}
	}
	return nil
}

// Save writes the config back to ConfigPath.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save()
}

func (c *Config) save() error {
	bz, err := MarshalYAML(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.ConfigPath), 0o750); err != nil {
		return err
	}
	return os.WriteFile(c.ConfigPath, bz, 0o600)
}

// ServiceConfig is the relay service configuration derived from the global section.
func (c *Config) ServiceConfig() core.ServiceConfig {
	svc := core.DefaultServiceConfig()
	if c.Global.RelayInterval > 0 {
		svc.Interval = c.Global.RelayInterval
	}
	if c.Global.ResubscribeDelay > 0 {
		svc.ResubscribeDelay = c.Global.ResubscribeDelay
	}
	if c.Global.Retry.Attempts > 0 {
		svc.Retry = c.Global.Retry
	}
	return svc
}

// AddPath adds an additional path to the config
func (c *Config) AddPath(name string, path *core.Path) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Paths.Add(name, path)
}

// AddChain adds a chain configuration. The chain is built by the next InitChains.
func (c *Config) AddChain(cc *ChainConfig) error {
	if err := cc.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.Chains {
		if existing.ChainID == cc.ChainID {
			return fmt.Errorf("chain with ID %s already exists in config", cc.ChainID)
		}
	}
	c.Chains = append(c.Chains, cc)
	return nil
}

func MarshalYAML(c *Config) ([]byte, error) {
	return yaml.Marshal(c)
}

func UnmarshalYAML(bz []byte, c *Config) error {
	return yaml.UnmarshalStrict(bz, c)
}
