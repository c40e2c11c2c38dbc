package telemetry

import (
	"fmt"
	"net"
	"strings"
)

const (
	defaultEndpoint    = "localhost:4318"
	defaultServiceName = "cronsync"
	defaultSampleRate  = 1.0
)

// Config holds the tracing module configuration.
type Config struct {
	// Endpoint is the OTLP/HTTP collector host:port. Defaults to localhost:4318.
	Endpoint string `yaml:"endpoint"`

	// URLPath overrides the collector path (default /v1/traces).
	URLPath string `yaml:"url_path"`

	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Compression string            `yaml:"compression"`

	// SampleRate is the fraction of root spans sampled, in [0, 1]. Defaults to 1.
	SampleRate *float64 `yaml:"sample_rate"`

	ServiceName string            `yaml:"service_name"`
	Attributes  map[string]string `yaml:"attributes"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.SampleRate == nil {
		r := defaultSampleRate
		c.SampleRate = &r
	}
}

func (c *Config) sampleRate() float64 {
	if c.SampleRate == nil {
		return defaultSampleRate
	}
	return *c.SampleRate
}

func (c *Config) validate() error {
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("telemetry: endpoint must be host:port, got %q", c.Endpoint)
	}
	if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
		return fmt.Errorf("telemetry: invalid endpoint %q: %w", c.Endpoint, err)
	}
	if r := c.sampleRate(); r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample_rate must be within [0, 1], got %g", r)
	}
	switch c.Compression {
	case "", "none", "gzip":
	default:
		return fmt.Errorf("telemetry: unsupported compression %q", c.Compression)
	}
	return nil
}
