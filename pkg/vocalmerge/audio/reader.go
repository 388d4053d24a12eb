package audio

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
)

var (
	ErrNotWAV    = errors.New("not a valid WAV file")
	ErrNoSamples = errors.New("no samples in audio")
)

// ReadWavAsFloat64 reads a PCM WAV file and returns mono samples normalized
// to [-1, 1] together with the sample rate. Multi-channel input is averaged.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading samples from %s: %w", path, err)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		channels = 1
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrNoSamples)
	}

	scale := 1.0 / float64(int64(1)<<(uint(bitDepth)-1))
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		out[i] = sum / float64(channels) * scale
	}

	return out, int(decoder.SampleRate), nil
}

// WAVDecoder turns any recording ffmpeg understands into mono samples by
// converting it next to the source and decoding the WAV.
type WAVDecoder struct {
	Converter *Converter
}

func NewWAVDecoder(c *Converter) *WAVDecoder {
	return &WAVDecoder{Converter: c}
}

func (d *WAVDecoder) Decode(ctx context.Context, path string) ([]float64, int, error) {
	wavPath := path + ".analysis.wav"
	defer utils.RemoveIfExists(wavPath)

	if err := d.Converter.ConvertToMonoWAV(ctx, path, wavPath); err != nil {
		return nil, 0, fmt.Errorf("audio conversion failed: %w", err)
	}
	return ReadWavAsFloat64(wavPath)
}
