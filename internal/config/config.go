package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"cloudbuckets/internal/buckets"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

const (
	EnvAccessKey    = "CLOUDBUCKETS_ACCESS_KEY"
	EnvSecretKey    = "CLOUDBUCKETS_SECRET_KEY"
	EnvGatewayToken = "CLOUDBUCKETS_GATEWAY_TOKEN"

	DefaultProvider      = "local"
	DefaultGatewayListen = "127.0.0.1:41821"
)

type Config struct {
	Provider string        `toml:"provider"`
	AWS      AWSConfig     `toml:"aws"`
	MinIO    MinIOConfig   `toml:"minio"`
	Local    LocalConfig   `toml:"local"`
	Log      LogConfig     `toml:"log"`
	Gateway  GatewayConfig `toml:"gateway"`
}

type AWSConfig struct {
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	SessionToken string `toml:"session_token"`
	UsePathStyle bool   `toml:"use_path_style"`
}

type MinIOConfig struct {
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UseSSL       bool   `toml:"use_ssl"`
	UsePathStyle bool   `toml:"use_path_style"`
}

type LocalConfig struct {
	Root string `toml:"root"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type GatewayConfig struct {
	Listen      string `toml:"listen"`
	AllowRemote bool   `toml:"allow_remote"`
	// Token is a comma-separated list of accepted X-Buckets-Token values.
	Token string `toml:"token"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: DefaultProvider,
		AWS: AWSConfig{
			Region: buckets.DefaultRegion,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Gateway: GatewayConfig{
			Listen: DefaultGatewayListen,
		},
	}
}

// Load reads the TOML file at path. A missing file yields the defaults.
// Credentials from the environment override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv copies credentials from the environment into the section of the
// selected provider.
func (c *Config) ApplyEnv(getenv func(string) string) {
	access := strings.TrimSpace(getenv(EnvAccessKey))
	secret := strings.TrimSpace(getenv(EnvSecretKey))
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "aws":
		if access != "" {
			c.AWS.AccessKey = access
		}
		if secret != "" {
			c.AWS.SecretKey = secret
		}
	case "minio":
		if access != "" {
			c.MinIO.AccessKey = access
		}
		if secret != "" {
			c.MinIO.SecretKey = secret
		}
	}
	if token := strings.TrimSpace(getenv(EnvGatewayToken)); token != "" {
		c.Gateway.Token = token
	}
}

func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = DefaultProvider
	}
	if strings.TrimSpace(c.AWS.Region) == "" {
		c.AWS.Region = buckets.DefaultRegion
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if strings.TrimSpace(c.Log.Format) == "" {
		c.Log.Format = "console"
	}
	if strings.TrimSpace(c.Gateway.Listen) == "" {
		c.Gateway.Listen = DefaultGatewayListen
	}
}

func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.AWS.Region = strings.TrimSpace(c.AWS.Region)
	c.AWS.Endpoint = strings.TrimRight(strings.TrimSpace(c.AWS.Endpoint), "/")
	c.MinIO.Endpoint = strings.TrimRight(strings.TrimSpace(c.MinIO.Endpoint), "/")
	c.MinIO.Region = strings.TrimSpace(c.MinIO.Region)
	c.Local.Root = strings.TrimSpace(c.Local.Root)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Gateway.Listen = strings.TrimSpace(c.Gateway.Listen)
}

func (c *Config) Validate() error {
	switch c.Provider {
	case "aws", "local":
	case "minio":
		if c.MinIO.Endpoint == "" {
			return errors.New("minio.endpoint is required when provider is minio")
		}
	default:
		return errors.New("provider must be aws, minio, or local")
	}

	if (c.AWS.AccessKey == "") != (c.AWS.SecretKey == "") {
		return errors.New("aws.access_key and aws.secret_key must be set together")
	}
	if (c.MinIO.AccessKey == "") != (c.MinIO.SecretKey == "") {
		return errors.New("minio.access_key and minio.secret_key must be set together")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return fmt.Errorf("log.level %q is not a valid level", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.New("log.format must be json or console")
	}

	if _, _, err := net.SplitHostPort(c.Gateway.Listen); err != nil {
		return fmt.Errorf("gateway.listen %q must be host:port", c.Gateway.Listen)
	}
	return nil
}

// ProviderOptions builds construction options for the selected provider.
// localRoot is used when the config names no local storage directory.
func (c *Config) ProviderOptions(localRoot string, log zerolog.Logger) *buckets.ProviderOptions {
	opts := &buckets.ProviderOptions{Logger: log}
	switch c.Provider {
	case "aws":
		opts.Region = c.AWS.Region
		opts.Endpoint = c.AWS.Endpoint
		opts.AccessKey = c.AWS.AccessKey
		opts.SecretKey = c.AWS.SecretKey
		opts.SessionToken = c.AWS.SessionToken
		opts.UsePathStyle = c.AWS.UsePathStyle
	case "minio":
		opts.Region = c.MinIO.Region
		opts.Endpoint = c.MinIO.Endpoint
		opts.AccessKey = c.MinIO.AccessKey
		opts.SecretKey = c.MinIO.SecretKey
		opts.UseSSL = c.MinIO.UseSSL
		opts.UsePathStyle = c.MinIO.UsePathStyle
	case "local":
		opts.Root = c.Local.Root
		if opts.Root == "" {
			opts.Root = localRoot
		}
	}
	return opts
}
