package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listener ListenerSettings `yaml:"listener"`
	Retry    RetryConfig      `yaml:"retry"`
	Catalog  CatalogConfig    `yaml:"catalog"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ListenerSettings is the hot-reloadable part of the configuration. The
// listener engine re-reads it on every loop iteration and rebinds when the
// bind target or TLS identity changes; the management client can replace it
// over IPC, which is why it carries json tags as well.
type ListenerSettings struct {
	BindAddress         string `yaml:"bind_address" json:"bindAddress"`
	Port                int    `yaml:"port" json:"port"`
	Secret              string `yaml:"secret" json:"secret"`
	UseTLS              bool   `yaml:"use_tls" json:"useTls"`
	CertificatePath     string `yaml:"certificate_path" json:"certificatePath"`
	CertificatePassword string `yaml:"certificate_password" json:"certificatePassword"`
	WolMAC              string `yaml:"wol_mac" json:"wolMac"`
}

type RetryConfig struct {
	BaseDelaySec int `yaml:"base_delay_sec"`
	MaxDelaySec  int `yaml:"max_delay_sec"`
	MaxAttempts  int `yaml:"max_attempts"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	File string `yaml:"file"`
}

func Default() *Config {
	return &Config{
		Listener: ListenerSettings{
			BindAddress: "0.0.0.0",
			Port:        8877,
		},
		Retry: RetryConfig{
			BaseDelaySec: 1,
			MaxDelaySec:  60,
			MaxAttempts:  10,
		},
		Catalog: CatalogConfig{
			Path: `C:\ProgramData\RsmAgent\apps.json`,
		},
		Logging: LoggingConfig{
			File: `C:\ProgramData\RsmAgent\logs\agent.log`,
		},
	}
}

// EnsureExists creates a default config file when it does not exist.
// It never overwrites an existing config.
func EnsureExists(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate intentionally does not range-check the listener port: an invalid
// port must still load so the listener engine can count it against its retry
// budget instead of the process refusing to start.
func (c *Config) Validate() error {
	if c.Retry.BaseDelaySec <= 0 {
		return errors.New("retry.base_delay_sec must be > 0")
	}
	if c.Retry.MaxDelaySec < c.Retry.BaseDelaySec {
		return errors.New("retry.max_delay_sec must be >= retry.base_delay_sec")
	}
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be > 0")
	}
	if c.Listener.UseTLS && c.Listener.CertificatePath == "" {
		return errors.New("listener.certificate_path is required when use_tls is set")
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.Listener.BindAddress == "" {
		c.Listener.BindAddress = "0.0.0.0"
	}
	if c.Retry.BaseDelaySec == 0 {
		c.Retry.BaseDelaySec = 1
	}
	if c.Retry.MaxDelaySec == 0 {
		c.Retry.MaxDelaySec = 60
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 10
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = Default().Catalog.Path
	}
}
