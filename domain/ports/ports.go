package ports

import (
	"context"
	"io/fs"

	"github.com/Skryldev/ivr-studio/domain/model"
)

// Normalizer prepares uploaded background candidates
type Normalizer interface {
	// Normalize levels, downmixes and re-encodes an upload, returning the new path
	Normalize(ctx context.Context, uploadPath string) (string, error)
}

// JobAssembler builds a job's archive from its staged renders
type JobAssembler interface {
	// AssembleJob groups, assembles and packages a job; background may be empty
	AssembleJob(ctx context.Context, jobID, backgroundPath string) (*model.JobResult, error)
}

// FFmpegExecutor is the abstraction for FFmpeg command execution
type FFmpegExecutor interface {
	// Execute runs an ffmpeg command with the given arguments
	Execute(ctx context.Context, args []string) error

	// Capture runs ffmpeg and returns what it wrote to stdout
	Capture(ctx context.Context, args []string) ([]byte, error)

	// Probe runs ffprobe and returns JSON output
	Probe(ctx context.Context, inputPath string) ([]byte, error)
}

// StorageProvider abstracts the filesystem operations the pipeline relies on
type StorageProvider interface {
	Exists(ctx context.Context, path string) (bool, error)
	Remove(ctx context.Context, path string) error

	// RemoveAll removes a directory tree; a missing path is not an error
	RemoveAll(ctx context.Context, path string) error

	// MkdirAll creates a directory tree; an existing path is not an error
	MkdirAll(ctx context.Context, path string) error

	// Rename atomically replaces dst with src on the same volume
	Rename(ctx context.Context, src, dst string) error

	Copy(ctx context.Context, src, dst string) error
	ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}

// ArchiveWriter bundles a directory into a single compressed file
type ArchiveWriter interface {
	// WriteArchive compresses srcDir into dst, replacing dst if it exists
	WriteArchive(ctx context.Context, srcDir, dst string) error
}

// SpeechSynthesizer renders text in a language to an encoded speech file
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language, outputPath string) error
}

// Option is the functional option type
type Option func(*model.StudioOptions)

// WithProfile sets the encode profile for working and final files
func WithProfile(p model.EncodeProfile) Option {
	return func(o *model.StudioOptions) {
		o.Profile = p
	}
}

// WithLoudnessTarget sets the normalizer's target level in dB
func WithLoudnessTarget(db float64) Option {
	return func(o *model.StudioOptions) {
		o.LoudnessTargetDB = db
	}
}

// WithTiming overrides silence lengths and the trim margin
func WithTiming(t model.Timing) Option {
	return func(o *model.StudioOptions) {
		o.Timing = t
	}
}

// WithBackgroundVolume sets the bed's volume factor relative to speech
func WithBackgroundVolume(v float64) Option {
	return func(o *model.StudioOptions) {
		if v > 0 {
			o.BackgroundVolume = v
		}
	}
}

// WithWorkers sets the number of unit pipelines run at once
func WithWorkers(n int) Option {
	return func(o *model.StudioOptions) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithSecondaryPrefix sets the filename prefix of secondary-language renders
func WithSecondaryPrefix(prefix string) Option {
	return func(o *model.StudioOptions) {
		o.SecondaryPrefix = prefix
	}
}

// WithStudioOptions replaces every tunable at once, e.g. from a config file
func WithStudioOptions(src *model.StudioOptions) Option {
	return func(o *model.StudioOptions) {
		if src != nil {
			*o = *src
		}
	}
}
