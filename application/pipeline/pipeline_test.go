package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/infrastructure/storage"
	"github.com/Skryldev/ivr-studio/internal/mocks"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
	"github.com/Skryldev/ivr-studio/pkg/logger"
	"github.com/Skryldev/ivr-studio/pkg/progress"
	"github.com/Skryldev/ivr-studio/pkg/retry"
)

type fixture struct {
	engine   *mocks.FakeEngine
	reporter *progress.RecordingReporter
	pipeline *Pipeline
	job      *model.Job
	shared   *Shared
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	job := &model.Job{
		ID:          "acme",
		StagingDir:  filepath.Join(root, "_temp_acme"),
		WorkDir:     filepath.Join(root, "_work_acme"),
		ResultsDir:  filepath.Join(root, "results", "acme"),
		ArchivePath: filepath.Join(root, "results", "acme.zip"),
	}
	for _, dir := range []string{job.StagingDir, job.WorkDir, job.ResultsDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	f := &fixture{
		engine:   mocks.NewFakeEngine(),
		reporter: &progress.RecordingReporter{},
		job:      job,
	}

	var err error
	f.pipeline, err = NewPipeline(Config{
		Executor: f.engine,
		Storage:  storage.NewLocalStorage(),
		Retry:    retry.Config{MaxAttempts: 1},
		Reporter: f.reporter,
		Logger:   logger.FromZap(zaptest.NewLogger(t)),
	})
	require.NoError(t, err)

	f.shared, err = f.pipeline.Prepare(context.Background(), job)
	require.NoError(t, err)
	return f
}

func (f *fixture) render(t *testing.T, name string, seconds float64) *model.AudioAsset {
	t.Helper()
	path := filepath.Join(f.job.StagingDir, name)
	require.NoError(t, mocks.WriteFakeAudio(path, seconds))
	return model.NewAsset(path, model.RoleRender)
}

func (f *fixture) background(t *testing.T, seconds float64) *model.AudioAsset {
	t.Helper()
	path := f.job.BackgroundPath("bed.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, mocks.WriteFakeAudio(path, seconds))
	return model.NewAsset(path, model.RoleBackground)
}

func finalSeconds(t *testing.T, res model.UnitResult) float64 {
	t.Helper()
	require.NoError(t, res.Err)
	require.NotNil(t, res.Final)
	d, err := mocks.ReadFakeDuration(res.Final.Path)
	require.NoError(t, err)
	return d
}

func assertNoPartials(t *testing.T, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.Contains(e.Name(), ".part"), "leftover %s in %s", e.Name(), dir)
		}
	}
}

func TestPrepareRendersSilences(t *testing.T) {
	f := newFixture(t)

	d, ok := f.shared.Gap.CachedDuration()
	assert.True(t, ok)
	assert.Equal(t, 1, d)
	d, _ = f.shared.LeadIn.CachedDuration()
	assert.Equal(t, 1, d)

	assert.FileExists(t, f.job.SharedPath("silence_gap.mp3"))
	assert.FileExists(t, f.job.SharedPath("silence_lead.mp3"))
	assert.Len(t, f.engine.CallsMatching("anullsrc=r=8000:cl=mono"), 2)
}

func TestRunUnitSingleRenderNoBackground(t *testing.T) {
	f := newFixture(t)
	unit := &model.OutputUnit{Name: "welcome", Renders: []*model.AudioAsset{f.render(t, "welcome.mp3", 5)}}

	res := f.pipeline.RunUnit(context.Background(), f.job, f.shared, unit)

	// lead-in plus the render
	assert.Equal(t, 6.0, finalSeconds(t, res))
	assert.Equal(t, f.job.ResultPath("welcome.mp3"), res.Final.Path)
	assert.Same(t, res.Final, unit.Final)
	assert.NoFileExists(t, f.job.WorkPath("welcome.mp3"))
	assert.Empty(t, f.engine.CallsMatching("amix"))
	assert.Len(t, f.engine.CallsMatching("-c copy", "title=welcome"), 1)
	assertNoPartials(t, f.job.WorkDir, f.job.ResultsDir)

	var stages []progress.Stage
	for _, u := range f.reporter.Updates() {
		stages = append(stages, u.Stage)
	}
	assert.Equal(t, []progress.Stage{progress.StageAssemble, progress.StageTrim, progress.StageDone}, stages)
}

func TestRunUnitPairWithShortBackground(t *testing.T) {
	f := newFixture(t)
	unit := &model.OutputUnit{
		Name: "welcome",
		Renders: []*model.AudioAsset{
			f.render(t, "welcome.mp3", 5),
			f.render(t, "eng_welcome.mp3", 5),
		},
		Background: f.background(t, 10),
	}

	res := f.pipeline.RunUnit(context.Background(), f.job, f.shared, unit)

	// speech 5+1+5=11, bed 10 looped twice, cut to speech + margin
	assert.Equal(t, 13.0, finalSeconds(t, res))
	assert.Len(t, f.engine.CallsMatching("-stream_loop 1", "amix"), 1)
	assert.Len(t, f.engine.CallsMatching("-t 13", "title=welcome"), 1)

	concat := f.engine.CallsMatching("concat=n=3")
	require.Len(t, concat, 1)
	joined := strings.Join(concat[0], " ")
	assert.Less(t, strings.Index(joined, "/welcome.mp3"), strings.Index(joined, "silence_gap"))
	assert.Less(t, strings.Index(joined, "silence_gap"), strings.Index(joined, "eng_welcome.mp3"))

	// the shared bed is read, never rewritten
	bed, err := mocks.ReadFakeDuration(unit.Background.Path)
	require.NoError(t, err)
	assert.Equal(t, 10.0, bed)
	assertNoPartials(t, f.job.WorkDir, f.job.ResultsDir)
}

func TestRunUnitLongBackgroundIsTrimmed(t *testing.T) {
	f := newFixture(t)
	unit := &model.OutputUnit{
		Name:       "menu",
		Renders:    []*model.AudioAsset{f.render(t, "menu.mp3", 4)},
		Background: f.background(t, 60),
	}

	res := f.pipeline.RunUnit(context.Background(), f.job, f.shared, unit)

	assert.Equal(t, 6.0, finalSeconds(t, res))
	assert.Len(t, f.engine.CallsMatching("-stream_loop 0"), 1)
	// a single render with a bed still goes through concat
	assert.Len(t, f.engine.CallsMatching("concat=n=1"), 1)
}

func TestRunUnitExactLoopIsCopied(t *testing.T) {
	f := newFixture(t)
	unit := &model.OutputUnit{
		Name:       "hours",
		Renders:    []*model.AudioAsset{f.render(t, "hours.mp3", 9)},
		Background: f.background(t, 3),
	}

	res := f.pipeline.RunUnit(context.Background(), f.job, f.shared, unit)

	// 9s of speech covered by exactly three plays: nothing to cut
	assert.Equal(t, 10.0, finalSeconds(t, res))
	assert.Len(t, f.engine.CallsMatching("-stream_loop 2"), 1)
	assert.Len(t, f.engine.CallsMatching("-c copy", "title=hours"), 1)
}

func TestRunUnitStopsAtFailingStage(t *testing.T) {
	f := newFixture(t)
	f.engine.FailWhen = func(args []string) error {
		if strings.Contains(strings.Join(args, " "), "amix") {
			return pkgerrors.NewEncodeError("ffmpeg execution failed", args, 1, "Invalid data", errors.New("exit status 1"))
		}
		return nil
	}
	unit := &model.OutputUnit{
		Name:       "welcome",
		Renders:    []*model.AudioAsset{f.render(t, "welcome.mp3", 5)},
		Background: f.background(t, 10),
	}

	res := f.pipeline.RunUnit(context.Background(), f.job, f.shared, unit)

	require.Error(t, res.Err)
	assert.Equal(t, string(progress.StageMix), res.Stage)
	assert.Nil(t, res.Final)
	assert.Nil(t, unit.Final)
	assert.NoFileExists(t, f.job.ResultPath("welcome.mp3"))

	encErr, ok := pkgerrors.As[*pkgerrors.EncodeError](res.Err)
	require.True(t, ok)
	assert.Equal(t, "mix", encErr.Stage)

	// nothing after the failed stage ran
	assert.Empty(t, f.engine.CallsMatching("title=welcome"))
	assertNoPartials(t, f.job.WorkDir, f.job.ResultsDir)

	updates := f.reporter.Updates()
	require.NotEmpty(t, updates)
	assert.Equal(t, progress.StageFailed, updates[len(updates)-1].Stage)
}

func TestRunUnitProbeFailure(t *testing.T) {
	f := newFixture(t)
	bg := f.job.ResultPath("bed.mp3")
	require.NoError(t, os.WriteFile(bg, []byte("not audio"), 0o644))

	unit := &model.OutputUnit{
		Name:       "welcome",
		Renders:    []*model.AudioAsset{f.render(t, "welcome.mp3", 5)},
		Background: model.NewAsset(bg, model.RoleBackground),
	}

	res := f.pipeline.RunUnit(context.Background(), f.job, f.shared, unit)
	assert.Equal(t, pkgerrors.ErrCodeProbe, pkgerrors.CodeOf(res.Err))
	assert.Equal(t, string(progress.StageMix), res.Stage)
}

func TestRunUnitNamedLikeSilenceAsset(t *testing.T) {
	f := newFixture(t)
	first := &model.OutputUnit{Name: "silence_gap", Renders: []*model.AudioAsset{f.render(t, "silence_gap.mp3", 3)}}
	second := &model.OutputUnit{
		Name: "welcome",
		Renders: []*model.AudioAsset{
			f.render(t, "welcome.mp3", 5),
			f.render(t, "eng_welcome.mp3", 5),
		},
	}

	assert.Equal(t, 4.0, finalSeconds(t, f.pipeline.RunUnit(context.Background(), f.job, f.shared, first)))
	assert.NoFileExists(t, f.job.WorkPath("silence_gap.mp3"))

	// the shared gap survives the unit's working track cleanup
	gap, err := mocks.ReadFakeDuration(f.shared.Gap.Path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, gap)
	assert.Equal(t, 12.0, finalSeconds(t, f.pipeline.RunUnit(context.Background(), f.job, f.shared, second)))
}

func TestWorkerPoolIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.engine.FailWhen = func(args []string) error {
		if strings.Contains(strings.Join(args, " "), "broken.mp3") {
			return pkgerrors.NewEncodeError("ffmpeg execution failed", args, 1, "", nil)
		}
		return nil
	}

	var units []*model.OutputUnit
	for _, name := range []string{"a", "broken", "c", "d", "e"} {
		units = append(units, &model.OutputUnit{
			Name:    name,
			Renders: []*model.AudioAsset{f.render(t, name+".mp3", 3)},
		})
	}

	results := NewWorkerPool(f.pipeline, 2, nil).Run(context.Background(), f.job, f.shared, units)
	require.Len(t, results, len(units))

	for i, r := range results {
		assert.Equal(t, units[i].Name, r.Unit)
		if r.Unit == "broken" {
			assert.Error(t, r.Err)
			assert.Equal(t, string(progress.StageAssemble), r.Stage)
			continue
		}
		assert.Equal(t, 4.0, finalSeconds(t, r))
	}
}

func TestWorkerPoolCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	units := []*model.OutputUnit{{Name: "a", Renders: []*model.AudioAsset{f.render(t, "a.mp3", 3)}}}
	results := NewWorkerPool(f.pipeline, 1, nil).Run(ctx, f.job, f.shared, units)

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Equal(t, "queued", results[0].Stage)
}

func TestStagingName(t *testing.T) {
	a := StagingName("/w/welcome.mp3")
	b := StagingName("/w/welcome.mp3")

	assert.NotEqual(t, a, b)
	assert.Equal(t, "/w", filepath.Dir(a))
	assert.True(t, strings.HasPrefix(filepath.Base(a), ".welcome."))
	assert.True(t, strings.HasSuffix(a, ".part.mp3"))
	assert.False(t, IsAudioFile(filepath.Base(a)))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".mp3", Extension(model.TelephonyProfile()))
	assert.Equal(t, ".wav", Extension(model.EncodeProfile{Codec: model.CodecWAV}))
}

func TestMixerPlanWithoutBackground(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.mixer.Plan(context.Background(), &model.OutputUnit{Name: "x"}, model.NewAsset("x", model.RoleWorking))
	assert.Equal(t, pkgerrors.ErrCodeValidation, pkgerrors.CodeOf(err))
}
