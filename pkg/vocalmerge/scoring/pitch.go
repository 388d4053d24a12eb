package scoring

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PitchFrame is the pitch estimate for one analysis window. Pitch is 0 when
// the window had no detectable periodicity.
type PitchFrame struct {
	Time  float64 `json:"time"`
	Pitch float64 `json:"pitch"`
}

// PitchEstimator estimates the fundamental frequency of a single frame.
type PitchEstimator interface {
	Estimate(frame []float64, sampleRate int) (hz float64, voiced bool)
}

// YIN implements the YIN estimator (de Cheveigné & Kawahara, 2002) with the
// squared difference function computed from an FFT cross-correlation.
type YIN struct {
	Threshold float64
}

func NewYIN(threshold float64) *YIN {
	if threshold <= 0 {
		threshold = YINThreshold
	}
	return &YIN{Threshold: threshold}
}

func (y *YIN) Estimate(frame []float64, sampleRate int) (float64, bool) {
	if sampleRate <= 0 || len(frame) < 4 {
		return 0, false
	}

	d := differenceFunction(frame)
	if d == nil {
		return 0, false
	}
	cmnd, ok := cumulativeMeanNormalized(d)
	if !ok {
		return 0, false
	}

	tau := absoluteThreshold(cmnd, y.Threshold)
	if tau < 0 {
		return 0, false
	}

	refined := parabolicInterpolation(cmnd, tau)
	if refined <= 0 {
		return 0, false
	}
	return float64(sampleRate) / refined, true
}

// differenceFunction returns d(tau) for tau in [0, len(frame)/2):
//
//	d(tau) = sum_{j<W} (x[j] - x[j+tau])^2 = E1 + E2(tau) - 2 r(tau)
//
// with W = len(frame)/2, r the cross-correlation of the first W samples
// against the whole frame and E2 maintained as a sliding sum.
func differenceFunction(frame []float64) []float64 {
	w := len(frame) / 2
	n := nextPow2(len(frame) + w)

	head := make([]float64, n)
	copy(head, frame[:w])
	whole := make([]float64, n)
	copy(whole, frame)

	a := fft.FFTReal(head)
	b := fft.FFTReal(whole)
	for i := range a {
		a[i] = cmplx.Conj(a[i]) * b[i]
	}
	r := fft.IFFT(a)

	var e1 float64
	for j := 0; j < w; j++ {
		e1 += frame[j] * frame[j]
	}

	d := make([]float64, w)
	e2 := e1
	for tau := 0; tau < w; tau++ {
		if tau > 0 {
			e2 += frame[tau+w-1]*frame[tau+w-1] - frame[tau-1]*frame[tau-1]
		}
		v := e1 + e2 - 2*real(r[tau])
		// float error can push an exact match slightly negative
		if v < 0 {
			v = 0
		}
		d[tau] = v
	}
	return d
}

// cumulativeMeanNormalized reports false when the frame carries no energy.
func cumulativeMeanNormalized(d []float64) ([]float64, bool) {
	out := make([]float64, len(d))
	out[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running == 0 {
			out[tau] = 1
			continue
		}
		out[tau] = d[tau] * float64(tau) / running
	}
	return out, running > 0
}

func absoluteThreshold(cmnd []float64, threshold float64) int {
	for tau := 2; tau < len(cmnd); tau++ {
		if cmnd[tau] < threshold {
			for tau+1 < len(cmnd) && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			return tau
		}
	}
	return -1
}

func parabolicInterpolation(cmnd []float64, tau int) float64 {
	if tau < 1 || tau+1 >= len(cmnd) {
		return float64(tau)
	}
	s0, s1, s2 := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/denom
}

// ExtractPitch runs est over every frame of samples.
func ExtractPitch(samples []float64, sampleRate int, cfg Config, est PitchEstimator) []PitchFrame {
	frames := Frames(samples, cfg.FrameSize, cfg.HopSize)
	out := make([]PitchFrame, len(frames))
	for i, frame := range frames {
		out[i].Time = float64(i*cfg.HopSize) / float64(sampleRate)
		if hz, voiced := est.Estimate(frame, sampleRate); voiced && !math.IsNaN(hz) && !math.IsInf(hz, 0) {
			out[i].Pitch = hz
		}
	}
	return out
}

// PitchStats reduces pitch frames to accuracy (share of frames whose pitch
// lies strictly inside the valid range) and diversity (spread of valid
// pitches over the reference range, clamped to 1).
func PitchStats(frames []PitchFrame, cfg Config) (accuracy, diversity float64) {
	if len(frames) == 0 {
		return 0, 0
	}
	valid := 0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range frames {
		if f.Pitch > cfg.MinPitchHz && f.Pitch < cfg.MaxPitchHz {
			valid++
			lo = math.Min(lo, f.Pitch)
			hi = math.Max(hi, f.Pitch)
		}
	}
	accuracy = float64(valid) / float64(len(frames))
	if valid > 0 {
		diversity = clamp01((hi - lo) / cfg.DiversityRangeHz)
	}
	return accuracy, diversity
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
