package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AlexKimmel/ratequota/internal/ratelimit"
)

var (
	// ErrInvalidConfig is ratelimit.ErrInvalidConfig so callers can test either.
	ErrInvalidConfig = ratelimit.ErrInvalidConfig

	ErrInvalidRequest = errors.New("invalid request")
)

type Server struct {
	Addr           string  `yaml:"addr" json:"addr"`
	ReadTimeoutMS  int     `yaml:"read_timeout_ms" json:"read_timeout_ms"`
	WriteTimeoutMS int     `yaml:"write_timeout_ms" json:"write_timeout_ms"`
	IdleTimeoutMS  int     `yaml:"idle_timeout_ms" json:"idle_timeout_ms"`
	MaxBodyBytes   int64   `yaml:"max_body_bytes" json:"max_body_bytes"`
	MaxRPS         float64 `yaml:"max_rps" json:"max_rps"`             // process-wide ingress cap, 0 = off
	IngressBurst   int     `yaml:"ingress_burst" json:"ingress_burst"` // defaults to max_rps rounded up
}

type Observability struct {
	LogLevel       string `yaml:"log_level" json:"log_level"`             // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path" json:"prometheus_path"` // e.g. "/metrics"
}

type Identity struct {
	Header string `yaml:"header" json:"header"`
}

type Routes struct {
	ID    string `yaml:"id" json:"id"`
	Match struct {
		PathPrefix string   `yaml:"path_prefix" json:"path_prefix"`
		Methods    []string `yaml:"methods" json:"methods"`
	} `yaml:"match" json:"match"`

	Upstream struct {
		URL       string `yaml:"url" json:"url"`
		TimeoutMS int    `yaml:"timeout_ms" json:"timeout_ms"`
	} `yaml:"upstream" json:"upstream"`
}

type Root struct {
	Server        Server        `yaml:"server" json:"server"`
	Observability Observability `yaml:"observability" json:"observability"`
	Identity      Identity      `yaml:"identity" json:"identity"`
	Limits        *PolicyFile   `yaml:"limits" json:"limits"`
	Routes        []Routes      `yaml:"routes" json:"routes"`

	// Policy is built from Limits by Load.
	Policy ratelimit.QuotaPolicy `yaml:"-" json:"-"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 1 << 20 // default 1MB
	}
	return s.MaxBodyBytes
}

// DefaultPolicy is used when no policy file is given: 5 tokens, 1 token/s.
func DefaultPolicy() ratelimit.QuotaPolicy {
	return ratelimit.QuotaPolicy{
		Default: ratelimit.BucketConfig{Capacity: 5, RefillRate: 1.0},
		Users:   map[string]ratelimit.BucketConfig{},
	}
}

// Load reads the server config file and applies defaults.
func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	var cfg Root
	if err := unmarshal(path, b, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.Upstream.TimeoutMS <= 0 {
			r.Upstream.TimeoutMS = 3000
		}
		if r.ID == "" || r.Match.PathPrefix == "" || r.Upstream.URL == "" {
			return nil, fmt.Errorf("%w: route %d needs id, match.path_prefix and upstream.url", ErrInvalidConfig, i)
		}
		if len(r.Match.Methods) == 0 {
			r.Match.Methods = []string{"GET"}
		}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxRPS > 0 && cfg.Server.IngressBurst <= 0 {
		cfg.Server.IngressBurst = int(math.Ceil(cfg.Server.MaxRPS))
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Identity.Header == "" {
		cfg.Identity.Header = "X-User-ID"
	}

	if cfg.Limits == nil {
		cfg.Policy = DefaultPolicy()
	} else {
		p, err := cfg.Limits.QuotaPolicy()
		if err != nil {
			return nil, fmt.Errorf("limits: %w", err)
		}
		cfg.Policy = p
	}

	return &cfg, nil
}

// unmarshal decodes .json files with encoding/json and everything else as YAML.
func unmarshal(path string, b []byte, out any) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("%w: malformed JSON in %s: %v", ErrInvalidConfig, path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: malformed YAML in %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}
