package pipeline

import (
	"context"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/infrastructure/ffmpeg"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

// Assembler turns a unit's renders into one working track
type Assembler struct {
	run  *runner
	opts *model.StudioOptions
}

// Assemble writes work/<name> from the unit's renders.
// A lone render without a bed is only re-encoded; anything else is concatenated
// primary first with the gap silence between renders.
func (a *Assembler) Assemble(ctx context.Context, job *model.Job, shared *Shared, unit *model.OutputUnit) (*model.AudioAsset, error) {
	if len(unit.Renders) == 0 {
		return nil, pkgerrors.NewValidationError("renders", unit.Name, "unit has no renders")
	}

	out := job.WorkPath(unit.Name + Extension(a.opts.Profile))

	var args []string
	if len(unit.Renders) == 1 && !unit.HasBackground() {
		args = ffmpeg.TranscodeArgs(unit.Renders[0].Path, out, a.opts.Profile)
	} else {
		args = ffmpeg.ConcatArgs(SegmentInputs(unit.Renders, shared.Gap), out, a.opts.Profile)
	}

	if err := a.run.execute(ctx, "assemble", args); err != nil {
		return nil, err
	}
	return model.NewAsset(out, model.RoleWorking), nil
}

// SegmentInputs interleaves renders with the gap asset: r0, gap, r1, gap, r2 ...
func SegmentInputs(renders []*model.AudioAsset, gap *model.AudioAsset) []string {
	inputs := make([]string, 0, 2*len(renders))
	for i, r := range renders {
		if i > 0 && gap != nil {
			inputs = append(inputs, gap.Path)
		}
		inputs = append(inputs, r.Path)
	}
	return inputs
}
