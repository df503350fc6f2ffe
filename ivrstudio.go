package ivrstudio

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Skryldev/ivr-studio/application/usecase"
	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	"github.com/Skryldev/ivr-studio/infrastructure/archive"
	"github.com/Skryldev/ivr-studio/infrastructure/ffmpeg"
	"github.com/Skryldev/ivr-studio/infrastructure/storage"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/metrics"
	"github.com/Skryldev/ivr-studio/pkg/progress"
)

// Re-export types for convenient use by callers
type (
	Job            = model.Job
	JobResult      = model.JobResult
	Message        = model.Message
	UnitFailure    = model.UnitFailure
	EncodeProfile  = model.EncodeProfile
	Timing         = model.Timing
	Synthesizer    = ports.SpeechSynthesizer
	Option         = ports.Option
	Dirs           = usecase.Dirs
	ProgressUpdate = progress.Update
	ProgressStage  = progress.Stage
)

// Re-export stage constants
const (
	StageNormalize = progress.StageNormalize
	StageGroup     = progress.StageGroup
	StageAssemble  = progress.StageAssemble
	StageMix       = progress.StageMix
	StageTrim      = progress.StageTrim
	StagePackage   = progress.StagePackage
	StageDone      = progress.StageDone
	StageFailed    = progress.StageFailed
)

// Re-export option functions
var (
	WithProfile          = ports.WithProfile
	WithLoudnessTarget   = ports.WithLoudnessTarget
	WithTiming           = ports.WithTiming
	WithBackgroundVolume = ports.WithBackgroundVolume
	WithWorkers          = ports.WithWorkers
	WithSecondaryPrefix  = ports.WithSecondaryPrefix
	TelephonyProfile     = model.TelephonyProfile
	DefaultTiming        = model.DefaultTiming
	DefaultStudioOptions = model.DefaultStudioOptions
)

// Config holds top-level configuration for the studio
type Config struct {
	// FFmpegPath is the path to ffmpeg binary (auto-detected if empty)
	FFmpegPath string

	// FFprobePath is the path to ffprobe binary (auto-detected if empty)
	FFprobePath string

	// Dirs locates staging, work, results and library directories
	Dirs Dirs

	// InvocationTimeout bounds every ffmpeg/ffprobe call (default: 2m)
	InvocationTimeout time.Duration

	// MaxRetries is the number of attempts for a failing engine call (default: 2)
	MaxRetries int

	// Logger is an optional custom logger. Uses production zap if nil.
	Logger *logger.Logger

	// ZapLogger allows passing a *zap.Logger directly
	ZapLogger *zap.Logger

	// ProgressCh is an optional channel for receiving progress updates
	ProgressCh chan<- ProgressUpdate

	// Reporter receives the same updates as ProgressCh, synchronously
	Reporter progress.Reporter

	// Registerer receives the Prometheus collectors; nil keeps them private
	Registerer prometheus.Registerer

	// Options tune profile, timing, loudness target and workers
	Options []ports.Option
}

// Studio is the main entry point
type Studio struct {
	service *usecase.AssemblyService
	log     *logger.Logger
}

// New creates a new Studio with the given configuration
func New(cfg Config) (*Studio, error) {
	log := cfg.Logger
	if log == nil && cfg.ZapLogger != nil {
		log = logger.FromZap(cfg.ZapLogger)
	}
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, err
		}
	}

	opts := model.DefaultStudioOptions()
	if cfg.InvocationTimeout > 0 {
		opts.InvocationTimeout = cfg.InvocationTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	for _, o := range cfg.Options {
		o(opts)
	}

	m := metrics.New(cfg.Registerer)

	exec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Timeout:     opts.InvocationTimeout,
		Logger:      log,
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}

	reporter := progress.NewMultiReporter()
	if cfg.ProgressCh != nil {
		reporter.Add(progress.NewChannelReporter(cfg.ProgressCh))
	}
	if cfg.Reporter != nil {
		reporter.Add(cfg.Reporter)
	}

	svc, err := usecase.NewAssemblyService(usecase.Config{
		Executor: exec,
		Storage:  storage.NewLocalStorage(),
		Archive:  archive.NewZipWriter(),
		Options:  opts,
		Dirs:     cfg.Dirs,
		Reporter: reporter,
		Logger:   log,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	return &Studio{
		service: svc,
		log:     log,
	}, nil
}

// Normalize levels an uploaded background candidate into the library
func (s *Studio) Normalize(ctx context.Context, uploadPath string) (string, error) {
	return s.service.Normalize(ctx, uploadPath)
}

// OpenJob creates fresh job directories
func (s *Studio) OpenJob(ctx context.Context, jobID string) (*Job, error) {
	return s.service.OpenJob(ctx, jobID)
}

// StageMessages synthesizes messages into the job's staging directory
func (s *Studio) StageMessages(ctx context.Context, job *Job, messages []Message, synth Synthesizer) error {
	return s.service.StageMessages(ctx, job, messages, synth)
}

// AssembleJob builds the job's archive; backgroundPath may be empty
func (s *Studio) AssembleJob(ctx context.Context, jobID, backgroundPath string) (*JobResult, error) {
	return s.service.AssembleJob(ctx, jobID, backgroundPath)
}

// Release removes the job's remaining directories after the archive was handed off
func (s *Studio) Release(ctx context.Context, job *Job) error {
	return s.service.Release(ctx, job)
}

// Library lists the normalized background beds
func (s *Studio) Library(ctx context.Context) ([]string, error) {
	return s.service.Library(ctx)
}

// CleanupStale removes directories left behind by interrupted jobs
func (s *Studio) CleanupStale(ctx context.Context) (int, error) {
	return s.service.CleanupStale(ctx)
}

// JobFor returns the job record for an id without touching the filesystem
func (s *Studio) JobFor(jobID string) (*Job, error) {
	return s.service.JobFor(jobID)
}

// Close flushes the logger and releases resources
func (s *Studio) Close() {
	_ = s.log.Sync()
}
