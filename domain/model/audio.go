package model

import (
	"math"
	"sync"
	"time"
)

// Codec represents supported output codecs
type Codec string

const (
	CodecMP3 Codec = "mp3"
	CodecWAV Codec = "wav"
)

// AssetRole is the semantic role an audio file plays inside a job
type AssetRole string

const (
	RoleRender     AssetRole = "render"
	RoleBackground AssetRole = "background"
	RoleSilence    AssetRole = "silence"
	RoleWorking    AssetRole = "working"
	RoleFinal      AssetRole = "final"
)

// AudioMetadata holds metadata of an audio file
type AudioMetadata struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
	Bitrate    int
	Codec      string
	Format     string
	Size       int64
}

// AudioAsset is a file on disk plus its lazily probed duration.
// Duration is kept in whole seconds, rounded up, and probed once.
type AudioAsset struct {
	Path string
	Role AssetRole

	mu       sync.Mutex
	duration int
	probed   bool
}

// NewAsset creates an asset with no cached duration
func NewAsset(path string, role AssetRole) *AudioAsset {
	return &AudioAsset{Path: path, Role: role}
}

// CachedDuration returns the cached duration and whether it was probed
func (a *AudioAsset) CachedDuration() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration, a.probed
}

// SetDuration records the probed duration in seconds
func (a *AudioAsset) SetDuration(seconds int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.duration = seconds
	a.probed = true
}

// Invalidate drops the cached duration after the file was rewritten in place
func (a *AudioAsset) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.duration = 0
	a.probed = false
}

// CeilSeconds converts a probed duration to whole seconds, rounding up
func CeilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// EncodeProfile is the technical profile every working and final file is encoded to
type EncodeProfile struct {
	Codec      Codec
	Bitrate    int // bps
	SampleRate int // Hz
	Channels   int
}

// TelephonyProfile is a reduced-bandwidth mono profile suited to phone systems
func TelephonyProfile() EncodeProfile {
	return EncodeProfile{
		Codec:      CodecMP3,
		Bitrate:    56000,
		SampleRate: 8000,
		Channels:   1,
	}
}

// LoudnessProfile pairs the fixed target loudness with a measured level
type LoudnessProfile struct {
	TargetDB  float64
	CurrentDB float64
}

// Gain returns the dB adjustment that moves CurrentDB onto TargetDB.
// Digital silence measures -Inf and gets no gain.
func (p LoudnessProfile) Gain() float64 {
	if math.IsInf(p.CurrentDB, -1) || math.IsNaN(p.CurrentDB) {
		return 0
	}
	return p.TargetDB - p.CurrentDB
}

// Timing holds the fixed silence and margin lengths of the assembly pipeline
type Timing struct {
	InterSegmentSilence time.Duration
	LeadInSilence       time.Duration
	SafetyMargin        time.Duration
}

// DefaultTiming returns the production timing values
func DefaultTiming() Timing {
	return Timing{
		InterSegmentSilence: time.Second,
		LeadInSilence:       time.Second,
		SafetyMargin:        2 * time.Second,
	}
}

// MixPlan carries the duration arithmetic for a unit with a background bed.
// All durations are whole seconds.
type MixPlan struct {
	SpeechDuration     int
	BackgroundDuration int
	SafetyMargin       int
}

// LoopCount is how many times the background must play to cover the speech
func (p MixPlan) LoopCount() int {
	if p.BackgroundDuration <= 0 {
		return 0
	}
	n := (p.SpeechDuration + p.BackgroundDuration - 1) / p.BackgroundDuration
	if n < 1 {
		n = 1
	}
	return n
}

// LoopedDuration is the length of the background after looping
func (p MixPlan) LoopedDuration() int {
	return p.LoopCount() * p.BackgroundDuration
}

// NeedsTrim reports whether the looped bed outlasts the speech
func (p MixPlan) NeedsTrim() bool {
	return p.LoopedDuration() > p.SpeechDuration
}

// TrimDuration is the final length of a trimmed unit: speech plus the safety margin
func (p MixPlan) TrimDuration() int {
	return p.SpeechDuration + p.SafetyMargin
}
