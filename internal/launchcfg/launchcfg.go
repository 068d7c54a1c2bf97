// Package launchcfg resolves attach configuration from a VS Code-style
// launch.json, environment variables, and CLI flags, in that order of
// increasing precedence.
package launchcfg

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

const (
	// EnvAddr overrides the adapter address (host:port).
	EnvAddr = "SCOPETREE_ADDR"
	// EnvConnectTimeout overrides the dial timeout (Go duration syntax).
	EnvConnectTimeout = "SCOPETREE_CONNECT_TIMEOUT"
	// EnvTranscript points the protocol transcript at a SQLite file.
	EnvTranscript = "SCOPETREE_TRANSCRIPT"

	defaultConnectTimeout = 10 * time.Second
)

// Config describes how to reach a debug adapter.
type Config struct {
	Name           string // configuration name from launch.json, if any
	Addr           string // host:port of the DAP adapter
	ConnectTimeout time.Duration
	TranscriptPath string
}

// FromEnv builds a config from environment variables and defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:           os.Getenv(EnvAddr),
		TranscriptPath: os.Getenv(EnvTranscript),
		ConnectTimeout: defaultConnectTimeout,
	}
	if raw := os.Getenv(EnvConnectTimeout); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ConnectTimeout = d
		}
	}
	return cfg
}

// Load reads a launch.json file and merges the named attach configuration
// over the environment config. An empty name selects the first attach
// entry.
func Load(path, name string) (Config, error) {
	cfg := FromEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read launch config: %w", err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("parse launch config %s: %w", path, err)
	}

	expr, err := jp.ParseString("$.configurations[*]")
	if err != nil {
		return cfg, err
	}

	for _, raw := range expr.Get(doc) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if stringField(entry, "request") != "attach" {
			continue
		}
		entryName := stringField(entry, "name")
		if name != "" && entryName != name {
			continue
		}
		return applyEntry(cfg, entryName, entry)
	}

	if name != "" {
		return cfg, fmt.Errorf("no attach configuration named %q in %s", name, path)
	}
	return cfg, fmt.Errorf("no attach configuration in %s", path)
}

func applyEntry(cfg Config, name string, entry map[string]any) (Config, error) {
	cfg.Name = name

	if addr := stringField(entry, "address"); addr != "" {
		cfg.Addr = addr
	}
	host := stringField(entry, "host")
	port, hasPort := intField(entry, "port")
	if host != "" && hasPort {
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	} else if host == "" && hasPort && cfg.Addr == "" {
		cfg.Addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	}

	if raw := stringField(entry, "connectTimeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid connectTimeout %q: %w", raw, err)
		}
		cfg.ConnectTimeout = d
	}
	if path := stringField(entry, "transcript"); path != "" {
		cfg.TranscriptPath = path
	}
	return cfg, nil
}

// Validate checks that the config is sufficient to attach.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("attach requires an adapter address (flag, launch.json, or " + EnvAddr + ")")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid adapter address %q: %w", c.Addr, err)
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
