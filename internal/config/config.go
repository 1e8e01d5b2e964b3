package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "PAINTTRACK"

	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultServerDBPath  = "painttrack-api.db"
	defaultLedgerPath    = "painttrack.db"
	defaultRemoteBaseURL = "http://localhost:8080"
	defaultRemoteTimeout = 10 * time.Second
	defaultLogLevel      = "info"
)

// ServerConfig captures runtime configuration for the API server.
type ServerConfig struct {
	HTTPAddress  string
	DatabasePath string
	CORSOrigins  []string
	LogLevel     string
}

// ClientConfig captures runtime configuration for the tracker CLI.
type ClientConfig struct {
	LedgerPath    string
	RemoteBaseURL string
	RemoteTimeout time.Duration
	LogLevel      string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultServerDBPath)
	configViper.SetDefault("cors.origins", []string{})
	configViper.SetDefault("ledger.path", defaultLedgerPath)
	configViper.SetDefault("remote.base_url", defaultRemoteBaseURL)
	configViper.SetDefault("remote.timeout", defaultRemoteTimeout)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// LoadServer parses server runtime configuration from viper.
func LoadServer(configViper *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		CORSOrigins:  configViper.GetStringSlice("cors.origins"),
		LogLevel:     configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// LoadClient parses CLI runtime configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		LedgerPath:    configViper.GetString("ledger.path"),
		RemoteBaseURL: configViper.GetString("remote.base_url"),
		RemoteTimeout: configViper.GetDuration("remote.timeout"),
		LogLevel:      configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func (c ClientConfig) validate() error {
	if strings.TrimSpace(c.LedgerPath) == "" {
		return fmt.Errorf("ledger.path is required")
	}
	if strings.TrimSpace(c.RemoteBaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	return nil
}
