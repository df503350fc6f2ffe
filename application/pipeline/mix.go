package pipeline

import (
	"context"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/infrastructure/ffmpeg"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

// Mixer loops a unit's background bed under its working track
type Mixer struct {
	run    *runner
	prober *Prober
	opts   *model.StudioOptions
}

// Plan probes speech and background durations and derives the MixPlan
func (m *Mixer) Plan(ctx context.Context, unit *model.OutputUnit, track *model.AudioAsset) (model.MixPlan, error) {
	if !unit.HasBackground() {
		return model.MixPlan{}, pkgerrors.NewValidationError("background", unit.Name, "unit has no background")
	}

	speech, err := m.prober.Duration(ctx, track)
	if err != nil {
		return model.MixPlan{}, err
	}
	bed, err := m.prober.Duration(ctx, unit.Background)
	if err != nil {
		return model.MixPlan{}, err
	}

	return model.MixPlan{
		SpeechDuration:     speech,
		BackgroundDuration: bed,
		SafetyMargin:       model.CeilSeconds(m.opts.Timing.SafetyMargin),
	}, nil
}

// Mix overwrites track with speech plus the looped, boosted bed, via stage-then-rename
func (m *Mixer) Mix(ctx context.Context, job *model.Job, unit *model.OutputUnit, track *model.AudioAsset) (*model.MixPlan, error) {
	plan, err := m.Plan(ctx, unit, track)
	if err != nil {
		return nil, err
	}

	err = m.run.replace(ctx, "mix", track.Path, func(out string) []string {
		return ffmpeg.LoopMixArgs(track.Path, unit.Background.Path, plan.LoopCount()-1, m.opts.BackgroundVolume, out, m.opts.Profile)
	})
	if err != nil {
		return nil, err
	}
	track.Invalidate()
	return &plan, nil
}
