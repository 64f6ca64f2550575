package config

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/facecurator/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facecurator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// clearEnv blanks every variable Load looks at so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "LOG_LEVEL", "POSTGRES_HOST", "POSTGRES_PORT", "CURATOR_WORKERS",
		"CURATOR_FRAMES_DIR", "CURATOR_POLICY_BAND", "CURATOR_DETECTOR_COMMAND",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
frames_dir: /data/frames
results_dir: /data/accepted
workers: 4
detector:
  engine: sidecar
  timeout: 10s
policy:
  band: at-most
  denominator: all-frames
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/frames", cfg.FramesDir)
	assert.Equal(t, "/data/accepted", cfg.ResultsDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, EngineSidecar, cfg.Detector.Engine)
	assert.Equal(t, 10*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, presence.BandAtMost, cfg.Policy.Band)
	assert.Equal(t, presence.DenominatorAllFrames, cfg.Policy.Denominator)

	// Unset keys keep their defaults
	assert.Equal(t, "results.json", cfg.OutputPath)
	assert.Equal(t, 0.7, cfg.Policy.Tolerance)
	assert.Equal(t, 3.0, cfg.Policy.AreaRatio)
	assert.Equal(t, []string{"python3", "-u", "python/worker.py"}, cfg.Detector.Command)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "workers: 2\npolicy:\n  band: tight\n")

	t.Setenv("CURATOR_WORKERS", "8")
	t.Setenv("CURATOR_POLICY_BAND", "at-most")
	t.Setenv("CURATOR_DETECTOR_COMMAND", "python3 detect.py")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, presence.BandAtMost, cfg.Policy.Band)
	assert.Equal(t, []string{"python3", "detect.py"}, cfg.Detector.Command)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "workers: [1, 2\n"))
	assert.Error(t, err)
}

func TestLoadDatabaseURL(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "")

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "curator")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "clips")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://curator:secret@db:5432/clips", cfg.DatabaseURL)

	t.Setenv("POSTGRES_PASSWORD", "p@ss/w:rd")
	cfg, err = Load(path)
	require.NoError(t, err)
	u, err := url.Parse(cfg.DatabaseURL)
	require.NoError(t, err, "special characters in the password must be escaped")
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss/w:rd", pass)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/clips", u.Path)

	t.Setenv("DATABASE_URL", "postgres://explicit/db")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.FramesDir = "/frames"
		cfg.ResultsDir = "/accepted"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults with dirs", func(c *Config) {}, false},
		{"Missing frames dir", func(c *Config) { c.FramesDir = "" }, true},
		{"Missing results dir", func(c *Config) { c.ResultsDir = "" }, true},
		{"Missing output", func(c *Config) { c.OutputPath = "" }, true},
		{"Unknown source", func(c *Config) { c.Source = "stream" }, true},
		{"Unknown engine", func(c *Config) { c.Detector.Engine = "dlib" }, true},
		{"Python without command", func(c *Config) { c.Detector.Command = nil }, true},
		{"Sidecar with video source", func(c *Config) { c.Detector.Engine = EngineSidecar; c.Source = SourceVideo }, true},
		{"Negative timeout", func(c *Config) { c.Detector.Timeout = -time.Second }, true},
		{"Bad policy", func(c *Config) { c.Policy.MinFaceProb = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNormalises(t *testing.T) {
	cfg := Default()
	cfg.FramesDir = "/frames"
	cfg.ResultsDir = "/accepted"
	cfg.Workers = 0
	cfg.NthFrame = -2

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 1, cfg.NthFrame)
	assert.Equal(t, "/frames", cfg.ClipsDir)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.FramesDir = "/frames"
	cfg.Policy.Band = presence.BandAtMost

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveOmitsDatabaseURL(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.DatabaseURL = "postgres://curator:secret@db:5432/clips"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "database_url")
	assert.NotContains(t, string(data), "secret")
	assert.Equal(t, "postgres://curator:secret@db:5432/clips", cfg.DatabaseURL, "Save must not modify the config")
}

func TestEncodeMasksPassword(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://curator:secret@db:5432/clips"

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))

	assert.Contains(t, buf.String(), "curator:xxxxx@db:5432")
	assert.NotContains(t, buf.String(), "secret")
	assert.Contains(t, buf.String(), "band: tight")
}
