// Package normalize levels uploaded background candidates to a fixed loudness and
// re-encodes them to the telephony profile used by the assembly pipeline.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Skryldev/ivr-studio/application/pipeline"
	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	"github.com/Skryldev/ivr-studio/infrastructure/ffmpeg"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/metrics"
	"github.com/Skryldev/ivr-studio/pkg/retry"
)

// Config wires a Normalizer
type Config struct {
	Executor   ports.FFmpegExecutor
	Storage    ports.StorageProvider
	Options    *model.StudioOptions
	LibraryDir string
	Retry      retry.Config
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// Normalizer implements ports.Normalizer
type Normalizer struct {
	executor   ports.FFmpegExecutor
	storage    ports.StorageProvider
	prober     *pipeline.Prober
	opts       *model.StudioOptions
	libraryDir string
	retryCfg   retry.Config
	log        *logger.Logger
	metrics    *metrics.Metrics

	// serializes output name selection so concurrent uploads never share a name
	nameMu sync.Mutex
}

// New creates a Normalizer writing into cfg.LibraryDir
func New(cfg Config) (*Normalizer, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("FFmpegExecutor is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("StorageProvider is required")
	}
	if cfg.LibraryDir == "" {
		return nil, pkgerrors.NewValidationError("libraryDir", "", "library directory must not be empty")
	}

	opts := cfg.Options
	if opts == nil {
		opts = model.DefaultStudioOptions()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	retryCfg := cfg.Retry
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = pkgerrors.Retryable
	}

	return &Normalizer{
		executor:   cfg.Executor,
		storage:    cfg.Storage,
		prober:     pipeline.NewProber(cfg.Executor),
		opts:       opts,
		libraryDir: cfg.LibraryDir,
		retryCfg:   retryCfg,
		log:        log,
		metrics:    cfg.Metrics,
	}, nil
}

// Normalize measures the upload, applies the gain that brings it to the target
// loudness, downmixes to mono and re-encodes it into the library. The upload is
// deleted on success and kept on any failure.
func (n *Normalizer) Normalize(ctx context.Context, uploadPath string) (out string, err error) {
	defer func() { n.metrics.NormalizeDone(err) }()

	log := n.log.With(zap.String("upload", uploadPath))

	if uploadPath == "" {
		return "", pkgerrors.NewValidationError("uploadPath", "", "upload path must not be empty")
	}
	exists, err := n.storage.Exists(ctx, uploadPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", pkgerrors.NewValidationError("uploadPath", uploadPath, "upload does not exist")
	}

	meta, err := n.prober.Metadata(ctx, uploadPath)
	if err != nil {
		return "", err
	}

	profile, err := n.measure(ctx, uploadPath)
	if err != nil {
		return "", err
	}
	gain := profile.Gain()
	if math.IsInf(profile.CurrentDB, -1) {
		log.Warn("upload is digital silence, applying no gain")
	}
	log.Info("loudness measured",
		zap.Float64("current_db", profile.CurrentDB),
		zap.Float64("target_db", profile.TargetDB),
		zap.Float64("gain_db", gain),
		zap.Int("channels", meta.Channels),
	)

	if err := n.storage.MkdirAll(ctx, n.libraryDir); err != nil {
		return "", err
	}
	out, title, err := n.reserve(ctx, uploadPath)
	if err != nil {
		return "", err
	}

	tmp := pipeline.StagingName(out)
	args := ffmpeg.NormalizeArgs(uploadPath, tmp, gain, meta.Channels, n.opts.Profile, title)
	err = retry.Do(ctx, n.retryCfg, func() error {
		return n.executor.Execute(ctx, args)
	})
	if err == nil {
		err = n.storage.Rename(ctx, tmp, out)
	}
	if err != nil {
		_ = n.storage.Remove(ctx, tmp)
		_ = n.storage.Remove(ctx, out)
		if encErr, ok := pkgerrors.As[*pkgerrors.EncodeError](err); ok {
			encErr.WithStage("normalize")
		}
		log.Error("normalization failed, upload kept", zap.Error(err))
		return "", err
	}

	if err := n.storage.Remove(ctx, uploadPath); err != nil {
		log.Error("failed to remove original upload", zap.Error(err))
		return "", err
	}

	log.Info("upload normalized", zap.String("output", out))
	return out, nil
}

// measure decodes the upload to mono PCM and computes its loudness profile
func (n *Normalizer) measure(ctx context.Context, path string) (model.LoudnessProfile, error) {
	var pcm []byte
	err := retry.Do(ctx, n.retryCfg, func() error {
		var runErr error
		pcm, runErr = n.executor.Capture(ctx, ffmpeg.DecodePCMArgs(path))
		return runErr
	})
	if err != nil {
		return model.LoudnessProfile{}, pkgerrors.NewDecodeError(path, "failed to decode upload", err)
	}

	profile, err := Measure(n.opts.LoudnessTargetDB, DecodePCM16LE(pcm))
	if err != nil {
		if errors.Is(err, ErrNoSamples) {
			return model.LoudnessProfile{}, pkgerrors.NewDecodeError(path, "upload decoded to zero samples", err)
		}
		return model.LoudnessProfile{}, err
	}
	return profile, nil
}

// reserve picks a free library name for the upload and claims it with an empty file
func (n *Normalizer) reserve(ctx context.Context, uploadPath string) (string, string, error) {
	n.nameMu.Lock()
	defer n.nameMu.Unlock()

	ext := pipeline.Extension(n.opts.Profile)
	base := TruncateName(strings.TrimSuffix(filepath.Base(uploadPath), filepath.Ext(uploadPath)), n.opts.MaxBaseNameLen)

	for i := 0; ; i++ {
		name := CandidateName(base, i)
		out := filepath.Join(n.libraryDir, name+ext)
		exists, err := n.storage.Exists(ctx, out)
		if err != nil {
			return "", "", err
		}
		if exists {
			continue
		}
		if err := n.storage.WriteFile(ctx, out, nil); err != nil {
			return "", "", err
		}
		return out, name, nil
	}
}

// Library lists the normalized assets available as background beds, sorted by name
func (n *Normalizer) Library(ctx context.Context) ([]string, error) {
	entries, err := n.storage.ReadDir(ctx, n.libraryDir)
	if err != nil {
		return nil, err
	}
	ext := pipeline.Extension(n.opts.Profile)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// TruncateName cuts base to at most max runes
func TruncateName(base string, max int) string {
	if max <= 0 || utf8.RuneCountInString(base) <= max {
		return base
	}
	return string([]rune(base)[:max])
}

// CandidateName returns base for attempt 0 and base(n) for attempt n
func CandidateName(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s(%d)", base, attempt)
}
