package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMixPlan(t *testing.T) {
	tests := []struct {
		name      string
		plan      MixPlan
		loops     int
		looped    int
		needsTrim bool
		trim      int
	}{
		{
			name:      "background shorter than speech",
			plan:      MixPlan{SpeechDuration: 11, BackgroundDuration: 10, SafetyMargin: 2},
			loops:     2,
			looped:    20,
			needsTrim: true,
			trim:      13,
		},
		{
			name:      "background exactly covers speech",
			plan:      MixPlan{SpeechDuration: 30, BackgroundDuration: 10, SafetyMargin: 2},
			loops:     3,
			looped:    30,
			needsTrim: false,
			trim:      32,
		},
		{
			name:      "background longer than speech",
			plan:      MixPlan{SpeechDuration: 4, BackgroundDuration: 60, SafetyMargin: 2},
			loops:     1,
			looped:    60,
			needsTrim: true,
			trim:      6,
		},
		{
			name:      "zero speech still plays the bed once",
			plan:      MixPlan{SpeechDuration: 0, BackgroundDuration: 5},
			loops:     1,
			looped:    5,
			needsTrim: true,
			trim:      0,
		},
		{
			name:   "no background",
			plan:   MixPlan{SpeechDuration: 9, SafetyMargin: 2},
			loops:  0,
			looped: 0,
			trim:   11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.loops, tt.plan.LoopCount())
			assert.Equal(t, tt.looped, tt.plan.LoopedDuration())
			assert.Equal(t, tt.needsTrim, tt.plan.NeedsTrim())
			assert.Equal(t, tt.trim, tt.plan.TrimDuration())
		})
	}
}

func TestMixPlanLoopsAlwaysCoverSpeech(t *testing.T) {
	for speech := 0; speech <= 40; speech++ {
		for bg := 1; bg <= 15; bg++ {
			p := MixPlan{SpeechDuration: speech, BackgroundDuration: bg}
			assert.GreaterOrEqual(t, p.LoopCount(), 1)
			assert.GreaterOrEqual(t, p.LoopedDuration(), speech)
			// one loop fewer would not be enough
			if p.LoopCount() > 1 {
				assert.Less(t, (p.LoopCount()-1)*bg, speech)
			}
		}
	}
}

func TestLoudnessProfileGain(t *testing.T) {
	assert.InDelta(t, 10.0, LoudnessProfile{TargetDB: 50, CurrentDB: 40}.Gain(), 1e-9)
	assert.InDelta(t, -6.5, LoudnessProfile{TargetDB: 50, CurrentDB: 56.5}.Gain(), 1e-9)
	assert.Equal(t, 0.0, LoudnessProfile{TargetDB: 50, CurrentDB: math.Inf(-1)}.Gain())
	assert.Equal(t, 0.0, LoudnessProfile{TargetDB: 50, CurrentDB: math.NaN()}.Gain())
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 0, CeilSeconds(0))
	assert.Equal(t, 1, CeilSeconds(10*time.Millisecond))
	assert.Equal(t, 5, CeilSeconds(5*time.Second))
	assert.Equal(t, 6, CeilSeconds(5*time.Second+time.Nanosecond))
}

func TestAudioAssetDurationCache(t *testing.T) {
	a := NewAsset("/tmp/x.mp3", RoleWorking)

	_, ok := a.CachedDuration()
	assert.False(t, ok)

	a.SetDuration(7)
	d, ok := a.CachedDuration()
	assert.True(t, ok)
	assert.Equal(t, 7, d)

	a.Invalidate()
	_, ok = a.CachedDuration()
	assert.False(t, ok)
}

func TestDefaults(t *testing.T) {
	p := TelephonyProfile()
	assert.Equal(t, CodecMP3, p.Codec)
	assert.Equal(t, 56000, p.Bitrate)
	assert.Equal(t, 8000, p.SampleRate)
	assert.Equal(t, 1, p.Channels)

	timing := DefaultTiming()
	assert.Equal(t, time.Second, timing.InterSegmentSilence)
	assert.Equal(t, time.Second, timing.LeadInSilence)
	assert.Equal(t, 2*time.Second, timing.SafetyMargin)

	opts := DefaultStudioOptions()
	assert.Equal(t, 50.0, opts.LoudnessTargetDB)
	assert.Equal(t, 50, opts.MaxBaseNameLen)
	assert.Equal(t, "eng_", opts.SecondaryPrefix)
	assert.Equal(t, 2.0, opts.BackgroundVolume)
}

func TestJobPaths(t *testing.T) {
	j := &Job{WorkDir: "/w/_work_acme", ResultsDir: "/r/acme"}
	assert.Equal(t, "/w/_work_acme/silence.mp3", j.WorkPath("silence.mp3"))
	assert.Equal(t, "/r/acme/welcome.mp3", j.ResultPath("welcome.mp3"))
	assert.Equal(t, "/w/_work_acme/shared/silence_gap.mp3", j.SharedPath("silence_gap.mp3"))
	assert.Equal(t, "/r/acme/background/jingle.mp3", j.BackgroundPath("jingle.mp3"))

	u := &OutputUnit{Name: "welcome"}
	assert.False(t, u.HasBackground())
	u.Background = NewAsset("/r/acme/bed.mp3", RoleBackground)
	assert.True(t, u.HasBackground())
}
