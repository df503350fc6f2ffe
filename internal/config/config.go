// Package config handles loading and validating the ivrstudio configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/pkg/logger"
)

// Config is the root configuration of the ivrstudio command.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Dirs     DirsConfig     `mapstructure:"dirs"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// EngineConfig locates ffmpeg/ffprobe and bounds their invocations.
type EngineConfig struct {
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// DirsConfig holds the roots of job and library directories.
type DirsConfig struct {
	Staging string `mapstructure:"staging"`
	Work    string `mapstructure:"work"`
	Results string `mapstructure:"results"`
	Library string `mapstructure:"library"`
}

// AudioConfig is the output profile and loudness target.
type AudioConfig struct {
	Bitrate          int     `mapstructure:"bitrate"`     // bps
	SampleRate       int     `mapstructure:"sample_rate"` // Hz
	LoudnessTargetDB float64 `mapstructure:"loudness_target_db"`
	MaxNameLength    int     `mapstructure:"max_name_length"`
}

// PipelineConfig holds assembly timings and concurrency.
type PipelineConfig struct {
	Workers          int           `mapstructure:"workers"`
	InterSegment     time.Duration `mapstructure:"inter_segment_silence"`
	LeadIn           time.Duration `mapstructure:"lead_in_silence"`
	SafetyMargin     time.Duration `mapstructure:"safety_margin"`
	BackgroundVolume float64       `mapstructure:"background_volume"`
	SecondaryPrefix  string        `mapstructure:"secondary_prefix"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"` // debug, info, warn, error
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	def := model.DefaultStudioOptions()

	v.SetDefault("engine.timeout", def.InvocationTimeout)
	v.SetDefault("engine.max_retries", def.MaxRetries)
	v.SetDefault("engine.retry_delay", def.RetryDelay)

	v.SetDefault("dirs.staging", "./data")
	v.SetDefault("dirs.work", "./data")
	v.SetDefault("dirs.results", "./data/results")
	v.SetDefault("dirs.library", "./songs")

	v.SetDefault("audio.bitrate", def.Profile.Bitrate)
	v.SetDefault("audio.sample_rate", def.Profile.SampleRate)
	v.SetDefault("audio.loudness_target_db", def.LoudnessTargetDB)
	v.SetDefault("audio.max_name_length", def.MaxBaseNameLen)

	v.SetDefault("pipeline.workers", def.Workers)
	v.SetDefault("pipeline.inter_segment_silence", def.Timing.InterSegmentSilence)
	v.SetDefault("pipeline.lead_in_silence", def.Timing.LeadInSilence)
	v.SetDefault("pipeline.safety_margin", def.Timing.SafetyMargin)
	v.SetDefault("pipeline.background_volume", def.BackgroundVolume)
	v.SetDefault("pipeline.secondary_prefix", def.SecondaryPrefix)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./ivrstudio.yaml, ./configs/ivrstudio.yaml, /etc/ivrstudio/ivrstudio.yaml.
func Load(configFile string) (*Config, error) {
	return LoadWith(viper.New(), configFile)
}

// LoadWith is Load on a caller-supplied viper instance, e.g. one bound to CLI flags.
func LoadWith(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ivrstudio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ivrstudio")
	}

	// Environment variable overrides: IVRSTUDIO_ENGINE_TIMEOUT, etc.
	v.SetEnvPrefix("IVRSTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Dirs.Staging == "" || c.Dirs.Work == "" || c.Dirs.Results == "" {
		return fmt.Errorf("dirs.staging, dirs.work and dirs.results are required")
	}
	if c.Audio.Bitrate <= 0 {
		return fmt.Errorf("audio.bitrate must be positive, got %d", c.Audio.Bitrate)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.MaxNameLength <= 0 {
		return fmt.Errorf("audio.max_name_length must be positive, got %d", c.Audio.MaxNameLength)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.InterSegment < 0 || c.Pipeline.LeadIn < 0 || c.Pipeline.SafetyMargin < 0 {
		return fmt.Errorf("pipeline silences and margin must not be negative")
	}
	if c.Pipeline.BackgroundVolume <= 0 {
		return fmt.Errorf("pipeline.background_volume must be positive, got %g", c.Pipeline.BackgroundVolume)
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// StudioOptions converts the configuration into pipeline options.
func (c *Config) StudioOptions() *model.StudioOptions {
	opts := model.DefaultStudioOptions()
	opts.Profile.Bitrate = c.Audio.Bitrate
	opts.Profile.SampleRate = c.Audio.SampleRate
	opts.LoudnessTargetDB = c.Audio.LoudnessTargetDB
	opts.MaxBaseNameLen = c.Audio.MaxNameLength
	opts.Timing = model.Timing{
		InterSegmentSilence: c.Pipeline.InterSegment,
		LeadInSilence:       c.Pipeline.LeadIn,
		SafetyMargin:        c.Pipeline.SafetyMargin,
	}
	opts.BackgroundVolume = c.Pipeline.BackgroundVolume
	opts.SecondaryPrefix = c.Pipeline.SecondaryPrefix
	opts.Workers = c.Pipeline.Workers
	opts.InvocationTimeout = c.Engine.Timeout
	opts.MaxRetries = c.Engine.MaxRetries
	opts.RetryDelay = c.Engine.RetryDelay
	return opts
}

// LoggerConfig converts the logging section for pkg/logger.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Development: c.Logging.Development,
		Level:       c.Logging.Level,
		File:        c.Logging.File,
		MaxSizeMB:   c.Logging.MaxSizeMB,
		MaxBackups:  c.Logging.MaxBackups,
		MaxAgeDays:  c.Logging.MaxAgeDays,
	}
}
