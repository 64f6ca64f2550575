package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/facecurator/internal/presence"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Frame sources
const (
	SourceDir   = "dir"   // one directory of frame images per clip
	SourceVideo = "video" // one video file per clip, decoded with ffmpeg
)

// Detector engines
const (
	EnginePython  = "python"  // long-lived python subprocess per worker
	EngineSidecar = "sidecar" // precomputed <frame>.json next to each frame
)

// Config holds all application configuration
type Config struct {
	FramesDir  string `yaml:"frames_dir" env:"CURATOR_FRAMES_DIR"`
	Source     string `yaml:"source" env:"CURATOR_SOURCE"`
	NthFrame   int    `yaml:"nth_frame" env:"CURATOR_NTH_FRAME"`
	ClipsDir   string `yaml:"clips_dir" env:"CURATOR_CLIPS_DIR"`
	ResultsDir string `yaml:"results_dir" env:"CURATOR_RESULTS_DIR"`
	OutputPath string `yaml:"output" env:"CURATOR_OUTPUT"`
	DebugDir   string `yaml:"debug_dir" env:"CURATOR_DEBUG_DIR"`
	Workers    int    `yaml:"workers" env:"CURATOR_WORKERS"`

	DatabaseURL string `yaml:"database_url,omitempty" env:"DATABASE_URL"`
	MetricsAddr string `yaml:"metrics_addr" env:"CURATOR_METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`

	Detector DetectorConfig  `yaml:"detector" envPrefix:"CURATOR_DETECTOR_"`
	Policy   presence.Config `yaml:"policy" envPrefix:"CURATOR_POLICY_"`
}

// DetectorConfig selects and configures the face detector/encoder.
type DetectorConfig struct {
	Engine  string        `yaml:"engine" env:"ENGINE"`
	Command []string      `yaml:"command" env:"COMMAND" envSeparator:" "`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Source:     SourceDir,
		NthFrame:   1,
		OutputPath: "results.json",
		Workers:    1,
		LogLevel:   "info",
		Detector: DetectorConfig{
			Engine:  EnginePython,
			Command: []string{"python3", "-u", "python/worker.py"},
			Timeout: 30 * time.Second,
		},
		Policy: presence.DefaultConfig(),
	}
}

// Load reads defaults, then the YAML file at path (if any), then environment
// overrides. An empty path falls back to the first existing candidate file.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = databaseURLFromEnv()
	}

	return cfg, nil
}

// Validate checks the configuration before a batch starts. Worker and frame
// intervals below one are raised to one.
func (c *Config) Validate() error {
	if c.FramesDir == "" {
		return errors.New("frames_dir is required")
	}
	if c.ResultsDir == "" {
		return errors.New("results_dir is required")
	}
	if c.OutputPath == "" {
		return errors.New("output path is required")
	}
	switch c.Source {
	case SourceDir, SourceVideo:
	default:
		return fmt.Errorf("unknown frame source %q (use %q or %q)", c.Source, SourceDir, SourceVideo)
	}
	switch c.Detector.Engine {
	case EnginePython:
		if len(c.Detector.Command) == 0 {
			return errors.New("detector.command is required for the python engine")
		}
	case EngineSidecar:
		if c.Source != SourceDir {
			return errors.New("the sidecar engine needs frame directories (source: dir)")
		}
	default:
		return fmt.Errorf("unknown detector engine %q (use %q or %q)", c.Detector.Engine, EnginePython, EngineSidecar)
	}
	if c.Detector.Timeout < 0 {
		return fmt.Errorf("detector.timeout must not be negative, got %s", c.Detector.Timeout)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.NthFrame < 1 {
		c.NthFrame = 1
	}
	if c.ClipsDir == "" {
		c.ClipsDir = c.FramesDir
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

// Save writes the configuration to path as YAML. The database URL is left
// out so credentials stay in the environment.
func (c *Config) Save(path string) error {
	out := *c
	out.DatabaseURL = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Encode writes the configuration as YAML with the database password masked.
func (c *Config) Encode(w io.Writer) error {
	out := *c
	if u, err := url.Parse(out.DatabaseURL); err == nil && out.DatabaseURL != "" {
		out.DatabaseURL = u.Redacted()
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return err
	}
	return enc.Close()
}

// databaseURLFromEnv builds a connection string from the POSTGRES_* variables
// used by the docker-compose setup. It returns "" when POSTGRES_HOST is unset.
func databaseURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD")),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + os.Getenv("POSTGRES_DB"),
	}
	return u.String()
}

func findConfigFile() string {
	candidates := []string{
		"./facecurator.yaml",
		"./facecurator.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".facecurator", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
