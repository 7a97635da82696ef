// Package config loads bridge settings from bridge.toml and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mcpbridge/server/mcpconn"
	"github.com/spf13/viper"
)

const (
	FileName   = "bridge.toml"
	configName = "bridge"
	configType = "toml"
	envPrefix  = "BRIDGE"

	DefaultPort       = "8080"
	DefaultDrawioPort = 3334
)

type Config struct {
	Port      string `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
	DataDir   string `mapstructure:"data_dir"`
	DevMode   bool   `mapstructure:"dev_mode"`

	// DrawioPort is passed to the default drawio server.
	DrawioPort int `mapstructure:"drawio_port"`

	// HealthCheckInterval of 0 disables periodic health checks.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`

	Connect  ConnectConfig          `mapstructure:"connect"`
	Sessions SessionConfig          `mapstructure:"sessions"`
	Diagram  DiagramConfig          `mapstructure:"diagram"`
	Log      LogConfig              `mapstructure:"log"`
	Servers  []mcpconn.ServerConfig `mapstructure:"servers"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

type ConnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type SessionConfig struct {
	Retention    time.Duration `mapstructure:"retention"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

type DiagramConfig struct {
	Server string `mapstructure:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File overrides the default log path under the data dir.
	File string `mapstructure:"file"`
}

// ManagerOptions translates the connect section for mcpconn.
func (c *Config) ManagerOptions() mcpconn.Options {
	return mcpconn.Options{
		Backoff: mcpconn.Backoff{
			Base:        c.Connect.BackoffBase,
			MaxAttempts: c.Connect.MaxAttempts,
		},
		ConnectTimeout: c.Connect.Timeout,
		CallTimeout:    c.Connect.CallTimeout,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("auth_token", "")
	v.SetDefault("data_dir", ".mcp-bridge")
	v.SetDefault("dev_mode", false)
	v.SetDefault("drawio_port", DefaultDrawioPort)
	v.SetDefault("health_check_interval", "30s")

	v.SetDefault("connect.max_attempts", 3)
	v.SetDefault("connect.backoff_base", "1s")
	v.SetDefault("connect.timeout", "30s")
	v.SetDefault("connect.call_timeout", "120s")

	v.SetDefault("sessions.retention", "24h")
	v.SetDefault("sessions.reap_interval", "1h")

	v.SetDefault("diagram.server", "drawio")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// bindEnv maps the plain variable names the bridge has always honoured.
// Everything else is reachable as BRIDGE_<SECTION>_<KEY>.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"port":        "PORT",
		"auth_token":  "AUTH_TOKEN",
		"data_dir":    "DATA_DIR",
		"dev_mode":    "DEV_MODE",
		"drawio_port": "DRAWIO_PORT",
		"log.level":   "LOG_LEVEL",
		"log.format":  "LOG_FORMAT",
		"log.file":    "LOG_FILE",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+env, env); err != nil {
			return err
		}
	}
	return nil
}

// Load reads path, or bridge.toml from $DATA_DIR and the working directory
// when path is empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		if dir := v.GetString("data_dir"); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.normalize()
	return &cfg, nil
}

// Default returns the built-in configuration with no file or env applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return &cfg
}

// normalize fills in default servers and upper-cases env names, which
// viper lowercases along with every other key.
func (c *Config) normalize() {
	if len(c.Servers) == 0 {
		c.Servers = DefaultServers(c.DrawioPort)
		return
	}
	for i, s := range c.Servers {
		if len(s.Env) == 0 {
			continue
		}
		env := make(map[string]string, len(s.Env))
		for k, val := range s.Env {
			env[strings.ToUpper(k)] = val
		}
		c.Servers[i].Env = env
	}
}

// DefaultServers are the drawio and AWS diagram MCP servers.
func DefaultServers(drawioPort int) []mcpconn.ServerConfig {
	if drawioPort <= 0 {
		drawioPort = DefaultDrawioPort
	}
	return []mcpconn.ServerConfig{
		{
			Name:    "drawio",
			Command: "npx",
			Args:    []string{"-y", "drawio-mcp-server", "-p", strconv.Itoa(drawioPort)},
		},
		{
			Name:    "aws_diagram",
			Command: "python",
			Args:    []string{"aws_diagram_wrapper.py"},
			Env:     map[string]string{"FASTMCP_LOG_LEVEL": "ERROR"},
		},
	}
}

// Validate checks the settings needed to serve.
func (c *Config) Validate() error {
	var errs []error
	if c.AuthToken == "" {
		errs = append(errs, errors.New("auth_token is required (set AUTH_TOKEN)"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.Connect.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("connect.max_attempts must be at least 1, got %d", c.Connect.MaxAttempts))
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if err := c.ValidateServers(); err != nil {
		errs = append(errs, err)
	}
	if c.Diagram.Server != "" && !slices.ContainsFunc(c.Servers, func(s mcpconn.ServerConfig) bool {
		return s.Name == c.Diagram.Server
	}) {
		errs = append(errs, fmt.Errorf("diagram.server %q is not a configured server", c.Diagram.Server))
	}
	return errors.Join(errs...)
}

// ValidateServers checks the server list alone; a reload is rejected on
// these errors only.
func (c *Config) ValidateServers() error {
	var errs []error
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("servers[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name))
		case s.Command == "":
			errs = append(errs, fmt.Errorf("servers[%d] %s: command is required", i, s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}
