package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/cronsync/internal/core"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var c Config
	c.defaults()
	if c.Endpoint != defaultEndpoint || c.ServiceName != defaultServiceName || c.sampleRate() != 1 {
		t.Errorf("defaults = %+v", c)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	rate := func(f float64) *float64 { return &f }
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{Endpoint: "collector:4318"}},
		{name: "gzip", config: Config{Endpoint: "collector:4318", Compression: "gzip"}},
		{name: "url endpoint", config: Config{Endpoint: "http://collector:4318"}, wantErr: true},
		{name: "rate too high", config: Config{Endpoint: "c:1", SampleRate: rate(1.5)}, wantErr: true},
		{name: "negative rate", config: Config{Endpoint: "c:1", SampleRate: rate(-0.1)}, wantErr: true},
		{name: "zero rate", config: Config{Endpoint: "c:1", SampleRate: rate(0)}},
		{name: "bad compression", config: Config{Endpoint: "c:1", Compression: "zstd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	c := &Config{ServiceName: "jobs", Attributes: map[string]string{"env": "test"}}
	res := newResource(c)

	set := res.Set()
	if v, ok := set.Value(attribute.Key("service.name")); !ok || v.AsString() != "jobs" {
		t.Errorf("service.name = %v", v)
	}
	if v, ok := set.Value(attribute.Key("env")); !ok || v.AsString() != "test" {
		t.Errorf("env = %v", v)
	}
}

func TestExporterOptions(t *testing.T) {
	t.Parallel()

	c := &Config{
		Endpoint:    "collector:4318",
		URLPath:     "/custom",
		Insecure:    true,
		Headers:     map[string]string{"x-token": "abc"},
		Compression: "gzip",
	}
	if got := len(exporterOptions(c)); got != 5 {
		t.Errorf("options = %d, want 5", got)
	}
	if got := len(exporterOptions(&Config{Endpoint: "c:1"})); got != 1 {
		t.Errorf("options = %d, want 1", got)
	}
}

// Not parallel: installs the global tracer provider.
func TestModuleLifecycle(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("endpoint: 127.0.0.1:4318\ninsecure: true\nsample_rate: 0.5\n"), &node); err != nil {
		t.Fatal(err)
	}

	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	ctx := core.NewAppContext(slog.Default(), t.TempDir())
	if err := m.Provision(ctx.ForModule("telemetry.tracing")); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, ok := ctx.Service(ServiceTracerProvider); !ok {
		t.Error("tracer provider not registered")
	}
	if otel.GetTracerProvider() != m.provider {
		t.Error("global tracer provider not installed")
	}

	// No span was started, so shutdown has nothing to export.
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
