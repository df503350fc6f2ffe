package pipeline

import (
	"context"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/infrastructure/ffmpeg"
)

// Trimmer pads the lead-in silence and publishes the unit's final asset
type Trimmer struct {
	run  *runner
	opts *model.StudioOptions
}

// Finish prepends the lead-in to track, then writes results/<name>, cut to the
// plan's trim duration when the looped bed outlasts the speech.
func (t *Trimmer) Finish(ctx context.Context, job *model.Job, shared *Shared, unit *model.OutputUnit, track *model.AudioAsset, plan *model.MixPlan) (*model.AudioAsset, error) {
	err := t.run.replace(ctx, "pad", track.Path, func(out string) []string {
		return ffmpeg.ConcatArgs([]string{shared.LeadIn.Path, track.Path}, out, t.opts.Profile)
	})
	if err != nil {
		return nil, err
	}
	track.Invalidate()

	final := job.ResultPath(unit.Name + Extension(t.opts.Profile))
	err = t.run.replace(ctx, "trim", final, func(out string) []string {
		if plan != nil && plan.NeedsTrim() {
			return ffmpeg.TrimArgs(track.Path, out, plan.TrimDuration(), t.opts.Profile, unit.Name)
		}
		return ffmpeg.CopyArgs(track.Path, out, unit.Name)
	})
	if err != nil {
		return nil, err
	}
	return model.NewAsset(final, model.RoleFinal), nil
}
