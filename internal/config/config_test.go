package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ivrstudio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Dirs.Staging)
	assert.Equal(t, "./data/results", cfg.Dirs.Results)
	assert.Equal(t, "./songs", cfg.Dirs.Library)
	assert.Equal(t, 56000, cfg.Audio.Bitrate)
	assert.Equal(t, 8000, cfg.Audio.SampleRate)
	assert.Equal(t, 50.0, cfg.Audio.LoudnessTargetDB)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, time.Second, cfg.Pipeline.InterSegment)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.SafetyMargin)
	assert.Equal(t, "eng_", cfg.Pipeline.SecondaryPrefix)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
  timeout: 30s
dirs:
  staging: /srv/ivr/staging
  work: /srv/ivr/work
  results: /srv/ivr/results
  library: /srv/ivr/songs
audio:
  loudness_target_db: 48
pipeline:
  workers: 8
  safety_margin: 3s
  secondary_prefix: en_
logging:
  level: debug
  file: /var/log/ivrstudio.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Engine.FFmpegPath)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "/srv/ivr/work", cfg.Dirs.Work)
	assert.Equal(t, 8, cfg.Pipeline.Workers)

	opts := cfg.StudioOptions()
	assert.Equal(t, 48.0, opts.LoudnessTargetDB)
	assert.Equal(t, 3*time.Second, opts.Timing.SafetyMargin)
	assert.Equal(t, time.Second, opts.Timing.LeadInSilence)
	assert.Equal(t, "en_", opts.SecondaryPrefix)
	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, 30*time.Second, opts.InvocationTimeout)
	assert.Equal(t, 56000, opts.Profile.Bitrate)

	lc := cfg.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "/var/log/ivrstudio.log", lc.File)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IVRSTUDIO_PIPELINE_WORKERS", "2")
	t.Setenv("IVRSTUDIO_DIRS_RESULTS", "/tmp/results")

	cfg, err := Load(writeConfig(t, "pipeline:\n  workers: 6\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "/tmp/results", cfg.Dirs.Results)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, "{}\n"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no results dir", func(c *Config) { c.Dirs.Results = "" }},
		{"zero bitrate", func(c *Config) { c.Audio.Bitrate = 0 }},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"zero name length", func(c *Config) { c.Audio.MaxNameLength = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"negative silence", func(c *Config) { c.Pipeline.LeadIn = -time.Second }},
		{"zero background volume", func(c *Config) { c.Pipeline.BackgroundVolume = 0 }},
		{"negative timeout", func(c *Config) { c.Engine.Timeout = -1 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	assert.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
