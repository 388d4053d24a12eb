package scoring

// Frames slices samples into windows of size samples starting every hop
// samples. A trailing window shorter than size is dropped. The returned
// frames alias samples.
func Frames(samples []float64, size, hop int) [][]float64 {
	if size <= 0 || hop <= 0 || len(samples) < size {
		return nil
	}
	frames := make([][]float64, 0, (len(samples)-size)/hop+1)
	for start := 0; start+size <= len(samples); start += hop {
		frames = append(frames, samples[start:start+size:start+size])
	}
	return frames
}
