package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

const fakeMagic = "FAKEAUDIO"

// WriteFakeAudio creates a file the FakeEngine recognizes as audio of the given length
func WriteFakeAudio(path string, seconds float64) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%s %g\n", fakeMagic, seconds)), 0o644)
}

// ReadFakeDuration returns the simulated length stored in a fake audio file
func ReadFakeDuration(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 || fields[0] != fakeMagic {
		return 0, fmt.Errorf("%s is not fake audio", path)
	}
	return strconv.ParseFloat(fields[1], 64)
}

// FakeEngine is a test double for ports.FFmpegExecutor. It understands the
// argument shapes built by infrastructure/ffmpeg and writes output files whose
// content records the duration a real encode would have produced.
type FakeEngine struct {
	// FailWhen, when set, may reject an invocation before it writes anything
	FailWhen func(args []string) error

	// PCM is returned by Capture
	PCM []byte

	// Channels is reported by Probe for every stream
	Channels int

	mu    sync.Mutex
	calls [][]string
}

// NewFakeEngine creates an engine reporting stereo streams
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{Channels: 2}
}

// Calls returns every Execute/Capture invocation in order
func (f *FakeEngine) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsMatching returns invocations that mention every given fragment
func (f *FakeEngine) CallsMatching(fragments ...string) [][]string {
	var out [][]string
	for _, c := range f.Calls() {
		joined := strings.Join(c, " ")
		ok := true
		for _, frag := range fragments {
			if !strings.Contains(joined, frag) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeEngine) record(args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.FailWhen != nil {
		return f.FailWhen(args)
	}
	return nil
}

// Execute simulates an ffmpeg run by writing the output file
func (f *FakeEngine) Execute(_ context.Context, args []string) error {
	if err := f.record(args); err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("no arguments")
	}

	seconds, err := simulate(args)
	if err != nil {
		return pkgerrors.NewEncodeError("fake ffmpeg failed", args, 1, err.Error(), err)
	}
	return WriteFakeAudio(args[len(args)-1], seconds)
}

// Capture returns the configured PCM buffer
func (f *FakeEngine) Capture(_ context.Context, args []string) ([]byte, error) {
	if err := f.record(args); err != nil {
		return nil, err
	}
	return f.PCM, nil
}

// Probe reports the duration stored in a fake audio file
func (f *FakeEngine) Probe(_ context.Context, inputPath string) ([]byte, error) {
	seconds, err := ReadFakeDuration(inputPath)
	if err != nil {
		return nil, pkgerrors.NewProbeError(inputPath, "fake ffprobe failed", err)
	}
	resp := map[string]interface{}{
		"format": map[string]interface{}{
			"duration":    strconv.FormatFloat(seconds, 'f', 6, 64),
			"bit_rate":    "56000",
			"size":        "1024",
			"format_name": "mp3",
		},
		"streams": []map[string]interface{}{
			{
				"codec_type":  "audio",
				"codec_name":  "mp3",
				"sample_rate": "8000",
				"channels":    f.Channels,
				"bit_rate":    "56000",
			},
		},
	}
	return json.Marshal(resp)
}

type fakeInput struct {
	path  string
	loops int
}

// simulate computes the output duration of an ffmpeg command line
func simulate(args []string) (float64, error) {
	var (
		inputs []fakeInput
		loops  int
		limit  = -1.0
		filter string
		lavfi  bool
	)
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-stream_loop":
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return 0, err
			}
			loops = n
			i++
		case "-f":
			lavfi = args[i+1] == "lavfi"
			i++
		case "-i":
			if !lavfi {
				inputs = append(inputs, fakeInput{path: args[i+1], loops: loops})
			}
			loops = 0
			lavfi = false
			i++
		case "-t":
			v, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return 0, err
			}
			limit = v
			i++
		case "-filter_complex", "-af":
			filter = args[i+1]
			i++
		}
	}

	durations := make([]float64, len(inputs))
	for i, in := range inputs {
		d, err := ReadFakeDuration(in.path)
		if err != nil {
			return 0, err
		}
		durations[i] = d * float64(in.loops+1)
	}

	var out float64
	switch {
	case len(inputs) == 0:
		out = math.Max(limit, 0)
	case strings.Contains(filter, "concat"):
		for _, d := range durations {
			out += d
		}
	case strings.Contains(filter, "amix"):
		for _, d := range durations {
			out = math.Max(out, d)
		}
	default:
		out = durations[0]
	}

	if limit >= 0 && limit < out {
		out = limit
	}
	return out, nil
}

// FakeSynthesizer is a test double for ports.SpeechSynthesizer
type FakeSynthesizer struct {
	// Seconds is the length of every render
	Seconds float64

	mu    sync.Mutex
	Texts map[string]string // output path -> language:text
}

// Synthesize writes a fake render of Seconds length
func (s *FakeSynthesizer) Synthesize(_ context.Context, text, language, outputPath string) error {
	s.mu.Lock()
	if s.Texts == nil {
		s.Texts = make(map[string]string)
	}
	s.Texts[outputPath] = language + ":" + text
	s.mu.Unlock()
	return WriteFakeAudio(outputPath, s.Seconds)
}

// FailingArchive is a ports.ArchiveWriter that always fails
type FailingArchive struct {
	Err error
}

func (a FailingArchive) WriteArchive(_ context.Context, _, dst string) error {
	return pkgerrors.NewArchiveError(dst, "archive disabled", a.Err)
}
