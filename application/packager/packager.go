package packager

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/metrics"
)

const (
	TranscriptName = "transcript.txt"
	ManifestName   = "manifest.yaml"
)

// Manifest describes what made it into the archive
type Manifest struct {
	Job        string              `yaml:"job"`
	CreatedAt  time.Time           `yaml:"created_at"`
	Background string              `yaml:"background,omitempty"`
	Completed  []string            `yaml:"completed"`
	Skipped    []model.UnitFailure `yaml:"skipped,omitempty"`
}

// Packager bundles a job's results directory and tears down transient directories
type Packager struct {
	storage ports.StorageProvider
	archive ports.ArchiveWriter
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a Packager
func New(storage ports.StorageProvider, archive ports.ArchiveWriter, log *logger.Logger, m *metrics.Metrics) *Packager {
	if log == nil {
		log = logger.Nop()
	}
	return &Packager{storage: storage, archive: archive, log: log, metrics: m}
}

// Package writes the transcript (and a manifest of skipped units), replaces any archive of the same
// name and removes the work and staging directories once the archive exists.
// On archive failure nothing is cleaned up.
func (p *Packager) Package(ctx context.Context, job *model.Job, result *model.JobResult) (string, error) {
	log := p.log.With(zap.String("job_id", job.ID))

	if len(job.Messages) > 0 {
		if err := p.storage.WriteFile(ctx, job.ResultPath(TranscriptName), Transcript(job.Messages)); err != nil {
			return "", err
		}
	}

	// the manifest only ships when some unit is missing from the archive
	if result != nil && len(result.Skipped) > 0 {
		manifest, err := BuildManifest(job, result)
		if err != nil {
			return "", err
		}
		if err := p.storage.WriteFile(ctx, job.ResultPath(ManifestName), manifest); err != nil {
			return "", err
		}
	} else if stale, _ := p.storage.Exists(ctx, job.ResultPath(ManifestName)); stale {
		if err := p.storage.Remove(ctx, job.ResultPath(ManifestName)); err != nil {
			return "", err
		}
	}

	exists, err := p.storage.Exists(ctx, job.ArchivePath)
	if err != nil {
		return "", err
	}
	if exists {
		if err := p.storage.Remove(ctx, job.ArchivePath); err != nil {
			return "", pkgerrors.NewArchiveError(job.ArchivePath, "failed to remove previous archive", err)
		}
	}

	err = p.archive.WriteArchive(ctx, job.ResultsDir, job.ArchivePath)
	p.metrics.ArchiveDone(err)
	if err != nil {
		if _, ok := pkgerrors.As[*pkgerrors.ArchiveError](err); !ok {
			err = pkgerrors.NewArchiveError(job.ArchivePath, "failed to write archive", err)
		}
		log.Error("archive failed, job directories kept", zap.Error(err))
		return "", err
	}
	log.Info("archive written", zap.String("archive", job.ArchivePath))

	if err := p.Cleanup(ctx, job); err != nil {
		return job.ArchivePath, err
	}
	return job.ArchivePath, nil
}

// Cleanup removes the job's work and staging directories
func (p *Packager) Cleanup(ctx context.Context, job *model.Job) error {
	err := multierr.Combine(
		p.storage.RemoveAll(ctx, job.WorkDir),
		p.storage.RemoveAll(ctx, job.StagingDir),
	)
	if err != nil {
		p.log.Error("failed to remove job directories", zap.String("job_id", job.ID), zap.Error(err))
	}
	return err
}

// Transcript renders the job's messages as plain text
func Transcript(messages []model.Message) []byte {
	var b bytes.Buffer
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s\n", m.Name, m.Text)
		if m.SecondaryText != "" {
			fmt.Fprintf(&b, "%s\n", m.SecondaryText)
		}
	}
	return b.Bytes()
}

// BuildManifest renders the YAML manifest for result
func BuildManifest(job *model.Job, result *model.JobResult) ([]byte, error) {
	m := Manifest{
		Job:       job.ID,
		CreatedAt: time.Now().UTC(),
		Completed: []string{},
	}
	if job.Background != nil {
		m.Background = filepath.Base(job.Background.Path)
	}
	if result != nil {
		m.Completed = append(m.Completed, result.Completed...)
		m.Skipped = result.Skipped
	}
	out, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return out, nil
}
