package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dsifry/metarelay/internal/appinfo"
	"github.com/dsifry/metarelay/internal/handler"
)

// Config is the full daemon configuration.
// Priority: Environment > Config File > Default.
type Config struct {
	Cloud       CloudConfig      `yaml:"cloud"`
	Repos       []RepoConfig     `yaml:"repos"`
	Handlers    []handler.Config `yaml:"handlers"`
	DBPath      string           `yaml:"db_path"`
	LogLevel    string           `yaml:"log_level"`
	Concurrency int              `yaml:"concurrency"`
}

// CloudConfig locates and authenticates the remote event store.
type CloudConfig struct {
	URL string `yaml:"url"`
	Key Secret `yaml:"key"`
}

// RepoConfig names one source repository. Path, when set, is the local
// directory where the event journal is written. In YAML a repo may be either
// a bare string or a {name, path} mapping.
type RepoConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// UnmarshalYAML accepts both forms:
//
//	repos:
//	  - owner/one
//	  - name: owner/two
//	    path: /home/me/two
func (r *RepoConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&r.Name)
	}

	type plain RepoConfig
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = RepoConfig(p)
	return nil
}

// Load reads the config file, applies environment overrides, and validates.
// A missing file is not an error by itself; validation decides whether the
// result is usable.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg = ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.DBPath == "" {
		dbPath, err := DefaultDBPath()
		if err != nil {
			return Config{}, err
		}
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take highest priority over config file values.
func ApplyEnvOverrides(cfg Config) Config {
	if v := os.Getenv(appinfo.EnvCloudURL); v != "" {
		cfg.Cloud.URL = v
	}
	if v := os.Getenv(appinfo.EnvCloudKey); v != "" {
		cfg.Cloud.Key = Secret(v)
	}
	return cfg
}

// Validate checks the configuration for load-time errors. Everything caught
// here is a ConfigError: fatal before the daemon starts, never raised at
// runtime.
func (c *Config) Validate() error {
	if c.Cloud.URL == "" {
		return fmt.Errorf("cloud.url is required (or set %s)", appinfo.EnvCloudURL)
	}
	u, err := url.Parse(c.Cloud.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("cloud.url %q is not a valid URL", c.Cloud.URL)
	}
	if c.Cloud.Key.IsEmpty() {
		return fmt.Errorf("cloud.key is required (or set %s)", appinfo.EnvCloudKey)
	}

	if len(c.Repos) == 0 {
		return fmt.Errorf("at least one repo is required")
	}
	seen := make(map[string]bool, len(c.Repos))
	for _, r := range c.Repos {
		if !validRepoName(r.Name) {
			return fmt.Errorf("repo %q is not an owner/name slug", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("repo %q is configured twice", r.Name)
		}
		seen[r.Name] = true
	}

	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	return nil
}

func validRepoName(name string) bool {
	owner, repo, ok := strings.Cut(name, "/")
	return ok && owner != "" && repo != "" && !strings.Contains(repo, "/")
}
