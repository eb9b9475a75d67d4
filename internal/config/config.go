package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type Backend struct {
	BaseURL string `yaml:"base_url"`
	AnonKey string `yaml:"anon_key"`
	// ServiceKey is accepted so deployments can keep it alongside the anon
	// key, but forwarding never uses it: all outbound calls run at the
	// anonymous tier unless the caller brings its own token.
	ServiceKey string `yaml:"service_key"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type CORS struct {
	AllowedOrigins string `yaml:"allowed_origins"` // comma-separated; supports "*" and localhost entries
}

type Limits struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Backend       Backend       `yaml:"backend"`
	CORS          CORS          `yaml:"cors"`
	Limits        Limits        `yaml:"limits"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 30 * time.Second
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
		return 10 << 20
	}
	return s.MaxBodyBytes
} // default 10MB

func (b Backend) Timeout() time.Duration {
	if b.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

func (b Backend) URL() (*url.URL, error) {
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend base url %q must be absolute", b.BaseURL)
	}
	return u, nil
}

// Load reads an optional yaml file, then applies environment overrides on
// top. The env names match the deployment contract, so a file-less,
// env-only deployment works.
func Load(path string) (*Root, error) {
	var cfg Root

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// env-only deployment
		default:
			return nil, err
		}
	}

	envString("ADDR", &cfg.Server.Addr)
	envString("LOG_LEVEL", &cfg.Observability.LogLevel)
	envString("BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	envString("BACKEND_ANON_KEY", &cfg.Backend.AnonKey)
	envString("BACKEND_SERVICE_KEY", &cfg.Backend.ServiceKey)
	envString("ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins)
	envInt("RATE_LIMIT_PER_MIN", &cfg.Limits.RequestsPerMinute)
	envInt("UPSTREAM_TIMEOUT_MS", &cfg.Backend.TimeoutMS)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits.RequestsPerMinute = 100
	}

	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if _, err := cfg.Backend.URL(); err != nil {
		return nil, err
	}
	if cfg.Backend.AnonKey == "" {
		return nil, fmt.Errorf("BACKEND_ANON_KEY is required")
	}

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// envInt leaves dst untouched on malformed values so defaults still apply.
func envInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}
