// Package config holds the gateway's process-wide settings. Grounded on
// original_source/src-tauri/src/config.rs's AppConfig (server_port,
// log_retention_days, DB-backed), generalized to a YAML file as the source
// of truth with environment overrides and live reload for everything except
// the listen port, matching the teacher's yaml.v3/fsnotify/godotenv stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Values is the plain-data snapshot of AppConfig.
type Values struct {
	ServerPort      int    `yaml:"server_port"`
	LogRetentionDays int   `yaml:"log_retention_days"`
	DatabasePath    string `yaml:"database_path"`
	CircuitFailureThreshold int       `yaml:"circuit_failure_threshold"`
	CircuitCooldownSeconds  int       `yaml:"circuit_cooldown_seconds"`
	LogFilePath     string `yaml:"log_file_path"`
}

// Default returns the baseline configuration, matching the teacher's
// AppConfig::default (port 9000, 30-day log retention).
func Default() Values {
	return Values{
		ServerPort:              9000,
		LogRetentionDays:        30,
		DatabasePath:            "gateway.db",
		CircuitFailureThreshold: 5,
		CircuitCooldownSeconds:  60,
		LogFilePath:             "gateway.log",
	}
}

// Config is the process-wide settings record. Request handlers take a read
// lock via Snapshot; admin-style setters take the write lock. The zero
// Config is not usable; construct with Load.
type Config struct {
	mu   sync.RWMutex
	path string
	v    Values
}

// Load reads path (creating it with defaults if absent), applies .env
// overrides via godotenv, then starts a background fsnotify watcher that
// reloads every field except ServerPort on file change — changing the port
// requires a process restart.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	c := &Config{path: path, v: Default()}
	if err := c.readFile(); err != nil {
		if os.IsNotExist(err) {
			if err := c.writeFile(c.v); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	c.applyEnvOverrides()

	if err := c.watch(); err != nil {
		logrus.WithError(err).Warn("config: fsnotify watch failed, live reload disabled")
	}
	return c, nil
}

func (c *Config) readFile() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var v Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
	return nil
}

func (c *Config) writeFile(v Values) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := os.Getenv("GATEWAY_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			c.v.ServerPort = n
		}
	}
	if p := os.Getenv("GATEWAY_DB_PATH"); p != "" {
		c.v.DatabasePath = p
	}
}

// watch starts a goroutine that reloads non-port fields whenever the
// backing YAML file is written.
func (c *Config) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(c.path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				c.reloadExceptPort()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("config: fsnotify error")
			}
		}
	}()
	return nil
}

func (c *Config) reloadExceptPort() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		logrus.WithError(err).Warn("config: reload read failed")
		return
	}
	var v Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		logrus.WithError(err).Warn("config: reload parse failed")
		return
	}

	c.mu.Lock()
	port := c.v.ServerPort
	v.ServerPort = port
	c.v = v
	c.mu.Unlock()
	logrus.Info("config: reloaded from disk")
}

// Snapshot returns a copy of the current values under a read lock.
func (c *Config) Snapshot() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// SetLogRetentionDays updates the retention window and persists it to disk,
// for use by admin handlers.
func (c *Config) SetLogRetentionDays(days int) error {
	c.mu.Lock()
	c.v.LogRetentionDays = days
	v := c.v
	c.mu.Unlock()
	return c.writeFile(v)
}
