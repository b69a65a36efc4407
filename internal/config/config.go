package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT"         envDefault:"8000"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`

	// Relative model paths are resolved against the executable's directory.
	ModelPath         string `env:"MODEL_PATH"          envDefault:"models/yoga_pose.onnx"`
	ModelMetadataPath string `env:"MODEL_METADATA_PATH" envDefault:"models/yoga_pose_metadata.json"`
	EagerModelLoad    bool   `env:"EAGER_MODEL_LOAD"    envDefault:"false"`
	ONNXRuntimeLib    string `env:"ONNXRUNTIME_LIB"`

	UploadDir   string `env:"UPLOAD_DIR"    envDefault:"temp_uploads"`
	SampleRate  int    `env:"SAMPLE_RATE"   envDefault:"10"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB" envDefault:"200"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveModelPaths rewrites relative model paths so they point next to the
// running binary instead of the working directory.
func (c *Config) ResolveModelPaths() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	base := filepath.Dir(exe)
	c.ModelPath = resolve(base, c.ModelPath)
	c.ModelMetadataPath = resolve(base, c.ModelMetadataPath)
	return nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
