package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Skryldev/ivr-studio/domain/model"
)

// FilterChainBuilder constructs an ffmpeg audio filter string
type FilterChainBuilder struct {
	filters []string
}

// NewFilterChainBuilder starts an empty chain
func NewFilterChainBuilder() *FilterChainBuilder {
	return &FilterChainBuilder{}
}

// AddVolume applies a gain in dB
func (b *FilterChainBuilder) AddVolume(gainDB float64) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("volume=%.2fdB", gainDB))
	return b
}

// AddMonoDownmix folds n channels into one with equal weights; mono input is left alone
func (b *FilterChainBuilder) AddMonoDownmix(channels int) *FilterChainBuilder {
	if channels <= 1 {
		return b
	}
	weight := strconv.FormatFloat(1/float64(channels), 'g', 6, 64)
	terms := make([]string, channels)
	for i := range terms {
		terms[i] = fmt.Sprintf("%s*c%d", weight, i)
	}
	b.filters = append(b.filters, "pan=mono|c0="+strings.Join(terms, "+"))
	return b
}

// Build joins the filters in the order they were added
func (b *FilterChainBuilder) Build() string {
	return strings.Join(b.filters, ",")
}

// ProfileArgs returns the output encoding flags of a profile
func ProfileArgs(p model.EncodeProfile) []string {
	args := []string{
		"-ac", strconv.Itoa(p.Channels),
		"-ar", strconv.Itoa(p.SampleRate),
	}
	switch p.Codec {
	case model.CodecWAV:
		args = append(args, "-c:a", "pcm_s16le")
	default:
		args = append(args, "-c:a", "libmp3lame", "-b:a", fmt.Sprintf("%dk", p.Bitrate/1000))
	}
	return args
}

// DecodePCMArgs decodes input to mono signed 16-bit little-endian samples on stdout
func DecodePCMArgs(input string) []string {
	return []string{
		"-v", "error",
		"-i", input,
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}
}

// NormalizeArgs applies gain, downmixes to mono and re-encodes to the profile
func NormalizeArgs(input, output string, gainDB float64, channels int, p model.EncodeProfile, title string) []string {
	filter := NewFilterChainBuilder().
		AddVolume(gainDB).
		AddMonoDownmix(channels).
		Build()

	args := []string{"-y", "-i", input, "-af", filter}
	args = append(args, ProfileArgs(p)...)
	if title != "" {
		args = append(args, "-metadata", "title="+title)
	}
	return append(args, output)
}

// SilenceArgs renders a silent asset of the given length
func SilenceArgs(output string, seconds float64, p model.EncodeProfile) []string {
	layout := "mono"
	if p.Channels > 1 {
		layout = "stereo"
	}
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=%s", p.SampleRate, layout),
		"-t", formatSeconds(seconds),
	}
	args = append(args, ProfileArgs(p)...)
	return append(args, output)
}

// TranscodeArgs re-encodes a single input to the profile
func TranscodeArgs(input, output string, p model.EncodeProfile) []string {
	args := []string{"-y", "-i", input}
	args = append(args, ProfileArgs(p)...)
	return append(args, output)
}

// ConcatArgs joins inputs back to back in the given order
func ConcatArgs(inputs []string, output string, p model.EncodeProfile) []string {
	args := []string{"-y"}
	var pads strings.Builder
	for i, in := range inputs {
		args = append(args, "-i", in)
		fmt.Fprintf(&pads, "[%d:a]", i)
	}
	filter := fmt.Sprintf("%sconcat=n=%d:v=0:a=1[out]", pads.String(), len(inputs))
	args = append(args, "-filter_complex", filter, "-map", "[out]")
	args = append(args, ProfileArgs(p)...)
	return append(args, output)
}

// LoopMixArgs plays bed extraLoops more times, boosts it by volume and mixes it under speech
func LoopMixArgs(speech, bed string, extraLoops int, volume float64, output string, p model.EncodeProfile) []string {
	if extraLoops < 0 {
		extraLoops = 0
	}
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f[bed];[0:a][bed]amix=inputs=2:duration=longest:dropout_transition=0[out]",
		volume,
	)
	args := []string{
		"-y",
		"-i", speech,
		"-stream_loop", strconv.Itoa(extraLoops),
		"-i", bed,
		"-filter_complex", filter,
		"-map", "[out]",
	}
	args = append(args, ProfileArgs(p)...)
	return append(args, output)
}

// TrimArgs re-encodes input cut to seconds and tags the title
func TrimArgs(input, output string, seconds int, p model.EncodeProfile, title string) []string {
	args := []string{"-y", "-i", input, "-t", strconv.Itoa(seconds)}
	args = append(args, ProfileArgs(p)...)
	if title != "" {
		args = append(args, "-metadata", "title="+title)
	}
	return append(args, output)
}

// CopyArgs stream-copies input and tags the title
func CopyArgs(input, output, title string) []string {
	args := []string{"-y", "-i", input, "-c", "copy"}
	if title != "" {
		args = append(args, "-metadata", "title="+title)
	}
	return append(args, output)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
