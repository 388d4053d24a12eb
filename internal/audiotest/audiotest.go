// Package audiotest synthesizes waveforms and WAV fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine returns seconds of a sine tone at freq Hz with the given peak amplitude.
func Sine(freq, seconds float64, sampleRate int, amplitude float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Glide returns a tone sweeping linearly from startHz to endHz.
func Glide(startHz, endHz, seconds float64, sampleRate int, amplitude float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	phase := 0.0
	for i := range out {
		progress := float64(i) / float64(n)
		freq := startHz + (endHz-startHz)*progress
		phase += 2 * math.Pi * freq / float64(sampleRate)
		out[i] = amplitude * math.Sin(phase)
	}
	return out
}

// Silence returns seconds of digital silence.
func Silence(seconds float64, sampleRate int) []float64 {
	return make([]float64, int(seconds*float64(sampleRate)))
}

// WriteWAV encodes samples in [-1, 1] as a mono 16-bit PCM WAV inside the
// test's temp dir and returns its path.
func WriteWAV(t *testing.T, name string, samples []float64, sampleRate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize wav: %v", err)
	}
	return path
}
