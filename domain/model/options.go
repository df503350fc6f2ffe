package model

import "time"

// StudioOptions holds all tunables of the normalizer and assembly pipeline
type StudioOptions struct {
	Profile EncodeProfile
	Timing  Timing

	// Normalization
	LoudnessTargetDB float64 // 20*log10(rms) on the int16 sample scale
	MaxBaseNameLen   int

	// Mixing
	BackgroundVolume float64

	// Grouping
	SecondaryPrefix   string
	PrimaryLanguage   string
	SecondaryLanguage string

	// Processing
	Workers           int
	InvocationTimeout time.Duration

	// Retry
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultStudioOptions returns sane defaults
func DefaultStudioOptions() *StudioOptions {
	return &StudioOptions{
		Profile:           TelephonyProfile(),
		Timing:            DefaultTiming(),
		LoudnessTargetDB:  50.0,
		MaxBaseNameLen:    50,
		BackgroundVolume:  2.0,
		SecondaryPrefix:   "eng_",
		PrimaryLanguage:   "it-IT",
		SecondaryLanguage: "en-US",
		Workers:           4,
		InvocationTimeout: 2 * time.Minute,
		MaxRetries:        2,
		RetryDelay:        500 * time.Millisecond,
	}
}
