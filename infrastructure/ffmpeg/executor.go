package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/metrics"
	"go.uber.org/zap"
)

// Executor implements ports.FFmpegExecutor
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// ExecutorConfig holds configuration for the FFmpeg executor
type ExecutorConfig struct {
	FFmpegPath  string
	FFprobePath string

	// Timeout bounds every single invocation; zero disables the bound
	Timeout time.Duration

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// NewExecutor creates a new FFmpeg executor
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}

	ffprobePath := cfg.FFprobePath
	if ffprobePath == "" {
		var err error
		ffprobePath, err = exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
	}

	log := cfg.Logger
	if log == nil {
		log, _ = logger.New(false)
	}

	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     cfg.Timeout,
		log:         log,
		metrics:     cfg.Metrics,
	}, nil
}

// Execute runs ffmpeg with the given arguments
func (e *Executor) Execute(ctx context.Context, args []string) error {
	_, err := e.run(ctx, "ffmpeg", e.ffmpegPath, args, false)
	return err
}

// Capture runs ffmpeg and returns its stdout, used for raw PCM decoding
func (e *Executor) Capture(ctx context.Context, args []string) ([]byte, error) {
	return e.run(ctx, "ffmpeg", e.ffmpegPath, args, true)
}

// Probe runs ffprobe and returns JSON output
func (e *Executor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	out, err := e.run(ctx, "ffprobe", e.ffprobePath, args, true)
	if err != nil {
		return nil, pkgerrors.NewProbeError(inputPath, "ffprobe execution failed", err)
	}
	return out, nil
}

func (e *Executor) run(ctx context.Context, tool, bin string, args []string, wantStdout bool) ([]byte, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	if wantStdout {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	e.log.Debug("executing "+tool,
		zap.Strings("args", args),
	)

	start := time.Now()
	err := cmd.Run()
	e.metrics.ObserveEngine(tool, time.Since(start), err)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, pkgerrors.NewEncodeError(
			tool+" execution failed",
			args,
			exitCode,
			stderr.String(),
			err,
		)
	}

	return stdout.Bytes(), nil
}
