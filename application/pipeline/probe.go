package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

// ffprobeOutput maps key fields from ffprobe JSON
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Prober answers duration and stream queries through ffprobe
type Prober struct {
	executor ports.FFmpegExecutor
}

// NewProber creates a prober on top of an executor
func NewProber(executor ports.FFmpegExecutor) *Prober {
	return &Prober{executor: executor}
}

// Metadata probes a file's container and first audio stream
func (p *Prober) Metadata(ctx context.Context, path string) (*model.AudioMetadata, error) {
	data, err := p.executor.Probe(ctx, path)
	if err != nil {
		if _, ok := pkgerrors.As[*pkgerrors.ProbeError](err); ok {
			return nil, err
		}
		return nil, pkgerrors.NewProbeError(path, "ffprobe failed", err)
	}
	return ParseProbe(path, data)
}

// ParseProbe decodes ffprobe JSON into AudioMetadata
func ParseProbe(path string, data []byte) (*model.AudioMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, pkgerrors.NewProbeError(path, "failed to parse ffprobe output", err)
	}

	meta := &model.AudioMetadata{
		Format: probe.Format.FormatName,
	}

	if probe.Format.Duration != "" {
		sec, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return nil, pkgerrors.NewProbeError(path, "invalid duration "+strconv.Quote(probe.Format.Duration), err)
		}
		meta.Duration = time.Duration(sec * float64(time.Second))
	}

	meta.Size, _ = strconv.ParseInt(probe.Format.Size, 10, 64)

	for _, s := range probe.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		meta.Codec = s.CodecName
		meta.Channels = s.Channels
		meta.SampleRate, _ = strconv.Atoi(s.SampleRate)
		meta.Bitrate, _ = strconv.Atoi(s.BitRate)
		break // take first audio stream
	}

	return meta, nil
}

// Duration returns the asset's length in whole seconds, rounded up.
// The value is probed once and cached on the asset.
func (p *Prober) Duration(ctx context.Context, asset *model.AudioAsset) (int, error) {
	if d, ok := asset.CachedDuration(); ok {
		return d, nil
	}

	meta, err := p.Metadata(ctx, asset.Path)
	if err != nil {
		return 0, err
	}
	if meta.Duration <= 0 {
		return 0, pkgerrors.NewProbeError(asset.Path, fmt.Sprintf("no usable duration (%s)", meta.Duration), nil)
	}

	d := model.CeilSeconds(meta.Duration)
	asset.SetDuration(d)
	return d, nil
}
