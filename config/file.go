package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcpbridge/server/mcpconn"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	fileMode        = 0o600
	tempFilePattern = ".bridge-*.toml.tmp"
)

// fileSchema is the on-disk layout. Durations are written as strings
// so they read back through viper.
type fileSchema struct {
	Port                string                 `toml:"port"`
	DataDir             string                 `toml:"data_dir"`
	DevMode             bool                   `toml:"dev_mode"`
	DrawioPort          int                    `toml:"drawio_port"`
	HealthCheckInterval string                 `toml:"health_check_interval"`
	Connect             connectSchema          `toml:"connect"`
	Sessions            sessionSchema          `toml:"sessions"`
	Diagram             diagramSchema          `toml:"diagram"`
	Log                 logSchema              `toml:"log"`
	Servers             []mcpconn.ServerConfig `toml:"servers"`
}

type connectSchema struct {
	MaxAttempts int    `toml:"max_attempts"`
	BackoffBase string `toml:"backoff_base"`
	Timeout     string `toml:"timeout"`
	CallTimeout string `toml:"call_timeout"`
}

type sessionSchema struct {
	Retention    string `toml:"retention"`
	ReapInterval string `toml:"reap_interval"`
}

type diagramSchema struct {
	Server string `toml:"server"`
}

type logSchema struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file,omitempty"`
}

func toSchema(c *Config) fileSchema {
	return fileSchema{
		Port:                c.Port,
		DataDir:             c.DataDir,
		DevMode:             c.DevMode,
		DrawioPort:          c.DrawioPort,
		HealthCheckInterval: c.HealthCheckInterval.String(),
		Connect: connectSchema{
			MaxAttempts: c.Connect.MaxAttempts,
			BackoffBase: c.Connect.BackoffBase.String(),
			Timeout:     c.Connect.Timeout.String(),
			CallTimeout: c.Connect.CallTimeout.String(),
		},
		Sessions: sessionSchema{
			Retention:    c.Sessions.Retention.String(),
			ReapInterval: c.Sessions.ReapInterval.String(),
		},
		Diagram: diagramSchema{Server: c.Diagram.Server},
		Log: logSchema{
			Level:  c.Log.Level,
			Format: c.Log.Format,
			File:   c.Log.File,
		},
		Servers: c.Servers,
	}
}

// WriteFile writes c to path atomically. The auth token is never written;
// it belongs in the environment.
func WriteFile(path string, c *Config) error {
	data, err := toml.Marshal(toSchema(c))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
