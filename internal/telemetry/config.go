package telemetry

import (
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

const (
	envEndpoint    = "HARKIT_OTEL_ENDPOINT"
	envInsecure    = "HARKIT_OTEL_INSECURE"
	envService     = "HARKIT_OTEL_SERVICE"
	envDialTimeout = "HARKIT_OTEL_DIAL_TIMEOUT"
	envHeaders     = "HARKIT_OTEL_HEADERS"

	defaultServiceName = "harkit"
)

// Config selects the OTLP/gRPC collector spans are shipped to. Telemetry is
// off when Endpoint is empty.
type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the HARKIT_OTEL_* variables through getenv. Malformed
// values fall back to their defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(getenv(envInsecure))); err == nil {
		cfg.Insecure = v
	}
	if raw := strings.TrimSpace(getenv(envDialTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.DialTimeout = d
		}
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders reads comma separated key=value pairs. Blank input yields nil.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errdef.New(errdef.CodeConfig, "invalid telemetry header %q", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
