package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	"github.com/Skryldev/ivr-studio/infrastructure/ffmpeg"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/metrics"
	"github.com/Skryldev/ivr-studio/pkg/progress"
	"github.com/Skryldev/ivr-studio/pkg/retry"
)

// Shared holds the job-wide silence assets every unit reads but never writes
type Shared struct {
	Gap    *model.AudioAsset
	LeadIn *model.AudioAsset
}

// Config wires a Pipeline
type Config struct {
	Executor ports.FFmpegExecutor
	Storage  ports.StorageProvider
	Options  *model.StudioOptions
	Retry    retry.Config
	Reporter progress.Reporter
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Pipeline runs the strictly sequential stages of one output unit
type Pipeline struct {
	run      *runner
	prober   *Prober
	opts     *model.StudioOptions
	reporter progress.Reporter
	log      *logger.Logger
	metrics  *metrics.Metrics

	assembler *Assembler
	mixer     *Mixer
	trimmer   *Trimmer
}

// NewPipeline creates a unit pipeline
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("FFmpegExecutor is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("StorageProvider is required")
	}

	opts := cfg.Options
	if opts == nil {
		opts = model.DefaultStudioOptions()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}

	retryCfg := cfg.Retry
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = pkgerrors.Retryable
	}

	r := &runner{executor: cfg.Executor, storage: cfg.Storage, retryCfg: retryCfg}
	prober := NewProber(cfg.Executor)

	return &Pipeline{
		run:       r,
		prober:    prober,
		opts:      opts,
		reporter:  reporter,
		log:       log,
		metrics:   cfg.Metrics,
		assembler: &Assembler{run: r, opts: opts},
		mixer:     &Mixer{run: r, prober: prober, opts: opts},
		trimmer:   &Trimmer{run: r, opts: opts},
	}, nil
}

// Prober exposes the duration probe used by the stages
func (p *Pipeline) Prober() *Prober {
	return p.prober
}

// Prepare renders the inter-segment and lead-in silence assets into work/shared
func (p *Pipeline) Prepare(ctx context.Context, job *model.Job) (*Shared, error) {
	ext := Extension(p.opts.Profile)
	gap := model.NewAsset(job.SharedPath("silence_gap"+ext), model.RoleSilence)
	lead := model.NewAsset(job.SharedPath("silence_lead"+ext), model.RoleSilence)

	if err := p.run.storage.MkdirAll(ctx, filepath.Dir(gap.Path)); err != nil {
		return nil, err
	}

	if err := p.run.execute(ctx, "silence", ffmpeg.SilenceArgs(gap.Path, p.opts.Timing.InterSegmentSilence.Seconds(), p.opts.Profile)); err != nil {
		return nil, err
	}
	if err := p.run.execute(ctx, "silence", ffmpeg.SilenceArgs(lead.Path, p.opts.Timing.LeadInSilence.Seconds(), p.opts.Profile)); err != nil {
		return nil, err
	}
	lead.SetDuration(model.CeilSeconds(p.opts.Timing.LeadInSilence))
	gap.SetDuration(model.CeilSeconds(p.opts.Timing.InterSegmentSilence))

	return &Shared{Gap: gap, LeadIn: lead}, nil
}

// RunUnit executes Assemble, Mix (when a background exists) and Pad+Trim in order.
// A failure stops the unit and is returned in the result; it never panics the job.
func (p *Pipeline) RunUnit(ctx context.Context, job *model.Job, shared *Shared, unit *model.OutputUnit) model.UnitResult {
	start := time.Now()
	log := p.log.With(zap.String("job_id", job.ID), zap.String("unit", unit.Name))
	res := model.UnitResult{Unit: unit.Name}

	p.metrics.UnitStarted()
	fail := func(stage progress.Stage, err error) model.UnitResult {
		log.Error("unit pipeline failed", zap.String("stage", string(stage)), zap.Error(err))
		p.report(job, unit, progress.StageFailed, 100, err.Error())
		p.metrics.UnitFinished(err)
		res.Stage = string(stage)
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	p.report(job, unit, progress.StageAssemble, 10, "assembling renders")
	stageStart := time.Now()
	track, err := p.assembler.Assemble(ctx, job, shared, unit)
	p.metrics.ObserveStage(string(progress.StageAssemble), time.Since(stageStart))
	if err != nil {
		return fail(progress.StageAssemble, err)
	}

	var plan *model.MixPlan
	if unit.HasBackground() {
		p.report(job, unit, progress.StageMix, 40, "mixing background")
		stageStart = time.Now()
		plan, err = p.mixer.Mix(ctx, job, unit, track)
		p.metrics.ObserveStage(string(progress.StageMix), time.Since(stageStart))
		if err != nil {
			return fail(progress.StageMix, err)
		}
		log.Debug("background mixed",
			zap.Int("speech_s", plan.SpeechDuration),
			zap.Int("background_s", plan.BackgroundDuration),
			zap.Int("loops", plan.LoopCount()),
		)
	}

	p.report(job, unit, progress.StageTrim, 70, "padding and trimming")
	stageStart = time.Now()
	final, err := p.trimmer.Finish(ctx, job, shared, unit, track, plan)
	p.metrics.ObserveStage(string(progress.StageTrim), time.Since(stageStart))
	if err != nil {
		return fail(progress.StageTrim, err)
	}

	// the working track is superseded by the final asset
	if err := p.run.storage.Remove(ctx, track.Path); err != nil {
		log.Warn("failed to remove working track", zap.Error(err))
	}

	unit.Final = final
	p.metrics.UnitFinished(nil)
	p.report(job, unit, progress.StageDone, 100, "unit ready")
	log.Info("unit assembled", zap.String("final", final.Path), zap.Duration("took", time.Since(start)))

	res.Final = final
	res.Duration = time.Since(start)
	return res
}

func (p *Pipeline) report(job *model.Job, unit *model.OutputUnit, stage progress.Stage, percent float64, msg string) {
	p.reporter.Report(progress.Update{
		JobID:   job.ID,
		Unit:    unit.Name,
		Stage:   stage,
		Percent: percent,
		Message: msg,
	})
}

// Extension returns the file extension of a profile's container
func Extension(p model.EncodeProfile) string {
	if p.Codec == model.CodecWAV {
		return ".wav"
	}
	return ".mp3"
}

// runner executes engine invocations with retry and stage-then-rename
type runner struct {
	executor ports.FFmpegExecutor
	storage  ports.StorageProvider
	retryCfg retry.Config
}

func (r *runner) execute(ctx context.Context, stage string, args []string) error {
	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.executor.Execute(ctx, args)
	})
	if err != nil {
		if encErr, ok := pkgerrors.As[*pkgerrors.EncodeError](err); ok {
			encErr.WithStage(stage)
		}
		return err
	}
	return nil
}

// replace renders into a hidden sibling of target and renames it over target,
// so target is never observed half written.
func (r *runner) replace(ctx context.Context, stage, target string, build func(out string) []string) error {
	tmp := StagingName(target)
	if err := r.execute(ctx, stage, build(tmp)); err != nil {
		_ = r.storage.Remove(ctx, tmp)
		return err
	}
	return r.storage.Rename(ctx, tmp, target)
}

// StagingName returns a unique hidden path next to target with the same extension
func StagingName(target string) string {
	dir, base := filepath.Split(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+"."+uuid.NewString()[:8]+".part"+ext)
}
