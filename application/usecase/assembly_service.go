package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Skryldev/ivr-studio/application/normalize"
	"github.com/Skryldev/ivr-studio/application/packager"
	"github.com/Skryldev/ivr-studio/application/pipeline"
	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/metrics"
	"github.com/Skryldev/ivr-studio/pkg/progress"
	"github.com/Skryldev/ivr-studio/pkg/retry"
)

const (
	stagingPrefix = "_temp_"
	workPrefix    = "_work_"
)

var (
	_ ports.JobAssembler = (*AssemblyService)(nil)
	_ ports.Normalizer   = (*AssemblyService)(nil)
)

// Dirs locates the roots under which job directories are created
type Dirs struct {
	StagingRoot string
	WorkRoot    string
	ResultsRoot string
	LibraryDir  string
}

// Config holds AssemblyService configuration
type Config struct {
	Executor ports.FFmpegExecutor
	Storage  ports.StorageProvider
	Archive  ports.ArchiveWriter
	Options  *model.StudioOptions
	Dirs     Dirs
	Reporter progress.Reporter
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// AssemblyService groups, assembles and packages jobs, and normalizes uploads
type AssemblyService struct {
	pipeline   *pipeline.Pipeline
	workerPool *pipeline.WorkerPool
	grouper    *pipeline.Grouper
	packager   *packager.Packager
	normalizer *normalize.Normalizer
	storage    ports.StorageProvider
	dirs       Dirs
	opts       *model.StudioOptions
	reporter   progress.Reporter
	log        *logger.Logger
}

// NewAssemblyService creates a new AssemblyService
func NewAssemblyService(cfg Config) (*AssemblyService, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("FFmpegExecutor is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("StorageProvider is required")
	}
	if cfg.Archive == nil {
		return nil, fmt.Errorf("ArchiveWriter is required")
	}
	if cfg.Dirs.StagingRoot == "" || cfg.Dirs.WorkRoot == "" || cfg.Dirs.ResultsRoot == "" {
		return nil, pkgerrors.NewValidationError("dirs", cfg.Dirs, "staging, work and results roots are required")
	}

	log := cfg.Logger
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}

	opts := cfg.Options
	if opts == nil {
		opts = model.DefaultStudioOptions()
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = opts.MaxRetries
	retryCfg.Delay = opts.RetryDelay
	retryCfg.Retryable = pkgerrors.Retryable

	p, err := pipeline.NewPipeline(pipeline.Config{
		Executor: cfg.Executor,
		Storage:  cfg.Storage,
		Options:  opts,
		Retry:    retryCfg,
		Reporter: reporter,
		Logger:   log,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	svc := &AssemblyService{
		pipeline:   p,
		workerPool: pipeline.NewWorkerPool(p, opts.Workers, log),
		grouper:    pipeline.NewGrouper(cfg.Storage, opts.SecondaryPrefix),
		packager:   packager.New(cfg.Storage, cfg.Archive, log, cfg.Metrics),
		storage:    cfg.Storage,
		dirs:       cfg.Dirs,
		opts:       opts,
		reporter:   reporter,
		log:        log,
	}

	if cfg.Dirs.LibraryDir != "" {
		svc.normalizer, err = normalize.New(normalize.Config{
			Executor:   cfg.Executor,
			Storage:    cfg.Storage,
			Options:    opts,
			LibraryDir: cfg.Dirs.LibraryDir,
			Retry:      retryCfg,
			Logger:     log,
			Metrics:    cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
	}

	return svc, nil
}

// JobFor derives the job record for jobID without touching the filesystem
func (s *AssemblyService) JobFor(jobID string) (*model.Job, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	return &model.Job{
		ID:          jobID,
		StagingDir:  filepath.Join(s.dirs.StagingRoot, stagingPrefix+jobID),
		WorkDir:     filepath.Join(s.dirs.WorkRoot, workPrefix+jobID),
		ResultsDir:  filepath.Join(s.dirs.ResultsRoot, jobID),
		ArchivePath: filepath.Join(s.dirs.ResultsRoot, jobID+".zip"),
	}, nil
}

// OpenJob resets and creates the three job directories
func (s *AssemblyService) OpenJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.JobFor(jobID)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{job.StagingDir, job.WorkDir, job.ResultsDir} {
		if err := s.storage.RemoveAll(ctx, dir); err != nil {
			return nil, err
		}
		if err := s.storage.MkdirAll(ctx, dir); err != nil {
			return nil, err
		}
	}
	s.log.Info("job opened", zap.String("job_id", jobID), zap.String("staging", job.StagingDir))
	return job, nil
}

// StageMessages renders every message through synth into the staging directory
// and records the transcript in the results directory.
func (s *AssemblyService) StageMessages(ctx context.Context, job *model.Job, messages []model.Message, synth ports.SpeechSynthesizer) error {
	if synth == nil {
		return pkgerrors.NewValidationError("synthesizer", nil, "speech synthesizer is required")
	}

	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		if err := validateUnitName(m.Name); err != nil {
			return err
		}
		if seen[m.Name] {
			return pkgerrors.NewValidationError("name", m.Name, "duplicate message name")
		}
		if p := s.opts.SecondaryPrefix; p != "" && len(m.Name) >= len(p) && strings.EqualFold(m.Name[:len(p)], p) {
			return pkgerrors.NewValidationError("name", m.Name, "name collides with the secondary prefix "+p)
		}
		seen[m.Name] = true
	}

	ext := ".mp3"
	for _, m := range messages {
		primary := filepath.Join(job.StagingDir, m.Name+ext)
		if err := synth.Synthesize(ctx, m.Text, s.opts.PrimaryLanguage, primary); err != nil {
			return fmt.Errorf("synthesize %s: %w", m.Name, err)
		}
		if m.SecondaryText == "" {
			continue
		}
		secondary := filepath.Join(job.StagingDir, s.opts.SecondaryPrefix+m.Name+ext)
		if err := synth.Synthesize(ctx, m.SecondaryText, s.opts.SecondaryLanguage, secondary); err != nil {
			return fmt.Errorf("synthesize %s (%s): %w", m.Name, s.opts.SecondaryLanguage, err)
		}
	}

	job.Messages = messages
	if err := s.storage.MkdirAll(ctx, job.ResultsDir); err != nil {
		return err
	}
	return s.storage.WriteFile(ctx, job.ResultPath(packager.TranscriptName), packager.Transcript(messages))
}

// AssembleJob groups the job's staged renders, runs every unit and packages the
// results. backgroundPath may be empty. Units that fail are listed in
// JobResult.Skipped; only grouping, setup and archive failures return an error.
func (s *AssemblyService) AssembleJob(ctx context.Context, jobID, backgroundPath string) (*model.JobResult, error) {
	job, err := s.JobFor(jobID)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("job_id", jobID))

	if err := s.storage.MkdirAll(ctx, job.ResultsDir); err != nil {
		return nil, err
	}

	if backgroundPath != "" {
		bg, err := s.installBackground(ctx, job, backgroundPath)
		if err != nil {
			log.Error("background unavailable", zap.String("state", string(model.JobFatal)), zap.Error(err))
			return nil, err
		}
		job.Background = bg
	}

	s.report(job, progress.StageGroup, 5, "grouping renders")
	units, err := s.grouper.Scan(ctx, job.StagingDir, job.Background)
	if err != nil {
		log.Error("grouping failed", zap.String("state", string(model.JobFatal)), zap.Error(err))
		return nil, err
	}
	log.Info("renders grouped", zap.String("state", string(model.JobGrouped)), zap.Int("units", len(units)))

	return s.run(ctx, job, units)
}

// Assemble runs caller-built units for job; job directories must already exist
func (s *AssemblyService) Assemble(ctx context.Context, job *model.Job, units []*model.OutputUnit) (*model.JobResult, error) {
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if err := validateUnitName(u.Name); err != nil {
			return nil, err
		}
		if seen[u.Name] {
			return nil, pkgerrors.NewValidationError("unit", u.Name, "duplicate unit name")
		}
		seen[u.Name] = true
		if len(u.Renders) == 0 {
			return nil, pkgerrors.NewValidationError("renders", u.Name, "unit has no renders")
		}
	}
	return s.run(ctx, job, units)
}

func (s *AssemblyService) run(ctx context.Context, job *model.Job, units []*model.OutputUnit) (*model.JobResult, error) {
	start := time.Now()
	log := s.log.With(zap.String("job_id", job.ID))

	if len(units) == 0 {
		return nil, pkgerrors.NewValidationError("units", job.StagingDir, "no renders staged for job")
	}

	for _, dir := range []string{job.WorkDir, job.ResultsDir} {
		if err := s.storage.MkdirAll(ctx, dir); err != nil {
			return nil, err
		}
	}

	shared, err := s.pipeline.Prepare(ctx, job)
	if err != nil {
		log.Error("silence assets failed", zap.String("state", string(model.JobFatal)), zap.Error(err))
		return nil, err
	}

	log.Info("job running", zap.String("state", string(model.JobRunning)))
	results := s.workerPool.Run(ctx, job, shared, units)

	result := &model.JobResult{JobID: job.ID}
	for _, r := range results {
		if r.Err != nil {
			result.Skipped = append(result.Skipped, model.UnitFailure{
				Unit:  r.Unit,
				Stage: r.Stage,
				Error: r.Err.Error(),
			})
			continue
		}
		result.Completed = append(result.Completed, r.Unit)
	}

	s.report(job, progress.StagePackage, 90, "packaging results")
	archivePath, err := s.packager.Package(ctx, job, result)
	if err != nil && archivePath == "" {
		log.Error("packaging failed", zap.String("state", string(model.JobFatal)), zap.Error(err))
		return nil, err
	}
	if err != nil {
		log.Warn("archive ready but cleanup incomplete", zap.Error(err))
	}

	result.ArchivePath = archivePath
	result.State = model.JobSuccess
	if len(result.Skipped) > 0 {
		result.State = model.JobPartialFailure
	}
	result.Duration = time.Since(start)

	s.report(job, progress.StageDone, 100, "archive ready")
	log.Info("job finished",
		zap.String("state", string(result.State)),
		zap.String("archive", archivePath),
		zap.Int("completed", len(result.Completed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Duration("took", result.Duration),
	)
	return result, nil
}

// installBackground copies the chosen bed into results/background once,
// before fan-out; units only ever read the copy.
func (s *AssemblyService) installBackground(ctx context.Context, job *model.Job, src string) (*model.AudioAsset, error) {
	exists, err := s.storage.Exists(ctx, src)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, pkgerrors.NewValidationError("background", src, "background asset does not exist")
	}
	dst := job.BackgroundPath(filepath.Base(src))
	if err := s.storage.MkdirAll(ctx, filepath.Dir(dst)); err != nil {
		return nil, err
	}
	if err := s.storage.Copy(ctx, src, dst); err != nil {
		return nil, err
	}
	return model.NewAsset(dst, model.RoleBackground), nil
}

// Release removes the results directory once the archive has been handed off
func (s *AssemblyService) Release(ctx context.Context, job *model.Job) error {
	return multierr.Combine(
		s.storage.RemoveAll(ctx, job.ResultsDir),
		s.storage.RemoveAll(ctx, job.WorkDir),
		s.storage.RemoveAll(ctx, job.StagingDir),
	)
}

// CleanupStale removes staging and work directories left behind by earlier runs
func (s *AssemblyService) CleanupStale(ctx context.Context) (int, error) {
	removed := 0
	var errs error
	for _, root := range []struct{ dir, prefix string }{
		{s.dirs.StagingRoot, stagingPrefix},
		{s.dirs.WorkRoot, workPrefix},
	} {
		entries, err := s.storage.ReadDir(ctx, root.dir)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), root.prefix) {
				continue
			}
			if err := s.storage.RemoveAll(ctx, filepath.Join(root.dir, e.Name())); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			removed++
		}
	}
	s.log.Info("stale job directories removed", zap.Int("count", removed))
	return removed, errs
}

// Normalize levels and re-encodes an uploaded background candidate
func (s *AssemblyService) Normalize(ctx context.Context, uploadPath string) (string, error) {
	if s.normalizer == nil {
		return "", pkgerrors.NewValidationError("libraryDir", "", "no library directory configured")
	}
	return s.normalizer.Normalize(ctx, uploadPath)
}

// Library lists the normalized background beds
func (s *AssemblyService) Library(ctx context.Context) ([]string, error) {
	if s.normalizer == nil {
		return nil, pkgerrors.NewValidationError("libraryDir", "", "no library directory configured")
	}
	return s.normalizer.Library(ctx)
}

func (s *AssemblyService) report(job *model.Job, stage progress.Stage, percent float64, msg string) {
	s.reporter.Report(progress.Update{
		JobID:   job.ID,
		Stage:   stage,
		Percent: percent,
		Message: msg,
	})
}

func validateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.NewValidationError("jobID", id, "job id must not be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") || strings.HasPrefix(id, "_") {
		return pkgerrors.NewValidationError("jobID", id, "job id must be a plain directory name")
	}
	return nil
}

func validateUnitName(name string) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.NewValidationError("name", name, "name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return pkgerrors.NewValidationError("name", name, "name must be a plain file name")
	}
	return nil
}
