package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds client configuration values.
type Config struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	Account     string `mapstructure:"account" yaml:"account"`
	Password    string `mapstructure:"password" yaml:"password"`
	HomeChannel string `mapstructure:"home_channel" yaml:"home_channel"`

	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	BatchDelay       time.Duration `mapstructure:"batch_delay" yaml:"batch_delay"`
	ThrottleInterval time.Duration `mapstructure:"throttle_interval" yaml:"throttle_interval"`
	ReadBuffer       int           `mapstructure:"read_buffer" yaml:"read_buffer"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Control API; empty HTTPAddr disables it.
	HTTPAddr            string        `mapstructure:"http_addr" yaml:"http_addr"`
	ReadHeaderTimeout   time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	JWTSecret           string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer           string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience         string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL              time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	ControlPasswordHash string        `mapstructure:"control_password_hash" yaml:"control_password_hash"`

	// Presence directory; empty DatabasePath disables it.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Host:              "localhost",
		Port:              5555,
		HomeChannel:       "Lobby",
		ReconnectDelay:    5 * time.Second,
		ConnectTimeout:    5 * time.Second,
		BatchDelay:        500 * time.Millisecond,
		ThrottleInterval:  3 * time.Second,
		ReadBuffer:        1024,
		LogLevel:          "info",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		JWTIssuer:         "pchat",
		JWTAudience:       "pchat-control",
		JWTTTL:            24 * time.Hour,
	}
}

// Address returns host:port for dialing.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Account == "" {
		errs = append(errs, errors.New("account is required"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("reconnect_delay must be positive"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}
	if c.HTTPAddr != "" && c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required when http_addr is set"))
	}
	return errors.Join(errs...)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Host != "" {
		c.Host = other.Host
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.Account != "" {
		c.Account = other.Account
	}
	if other.Password != "" {
		c.Password = other.Password
	}
	if other.HomeChannel != "" {
		c.HomeChannel = other.HomeChannel
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.ConnectTimeout != 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if other.BatchDelay != 0 {
		c.BatchDelay = other.BatchDelay
	}
	if other.ThrottleInterval != 0 {
		c.ThrottleInterval = other.ThrottleInterval
	}
	if other.ReadBuffer != 0 {
		c.ReadBuffer = other.ReadBuffer
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.ControlPasswordHash != "" {
		c.ControlPasswordHash = other.ControlPasswordHash
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}
