package scoring

import "math"

type EnergyFrame struct {
	Energy float64 `json:"energy"`
}

// ExtractRhythm computes RMS energy per frame and the share of frames whose
// energy exceeds cfg.EnergyThreshold.
func ExtractRhythm(samples []float64, cfg Config) ([]EnergyFrame, float64) {
	frames := Frames(samples, cfg.FrameSize, cfg.HopSize)
	if len(frames) == 0 {
		return nil, 0
	}

	out := make([]EnergyFrame, len(frames))
	active := 0
	for i, frame := range frames {
		var sum float64
		for _, s := range frame {
			sum += s * s
		}
		out[i].Energy = math.Sqrt(sum / float64(len(frame)))
		if out[i].Energy > cfg.EnergyThreshold {
			active++
		}
	}
	return out, float64(active) / float64(len(frames))
}
