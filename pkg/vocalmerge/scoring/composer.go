package scoring

import "math"

const (
	shapeExponent     = 1.3
	rhythmFlattening  = 0.8
	rhythmCeiling     = 98.0
	pitchWeight       = 0.4
	rhythmWeight      = 0.6
	silenceFloor      = 0.02
	minDuration       = 60.0
	durationPenalty   = 0.8
	finalScoreCeiling = 95.0

	AnalysisErrorVerdict = "Analysis Error 🔧"
)

// Metrics are the reduced extractor outputs the composer works from.
type Metrics struct {
	PitchAccuracy   float64
	PitchDiversity  float64
	ActivityRatio   float64
	DurationSeconds float64
}

// ScoreResult is the outcome of scoring one recording.
type ScoreResult struct {
	PitchScore             float64 `json:"pitchScore"`
	RhythmScore            float64 `json:"rhythmScore"`
	FinalScore             float64 `json:"finalScore"`
	Verdict                string  `json:"verdict"`
	Clarity                int     `json:"clarity"`
	MidiRange              int     `json:"midiRange"`
	PitchAccuracy          float64 `json:"pitchAccuracy"`
	PitchDiversity         float64 `json:"pitchDiversity"`
	ActivityRatio          float64 `json:"activityRatio"`
	DurationSeconds        float64 `json:"durationSeconds"`
	DurationPenaltyApplied bool    `json:"durationPenaltyApplied"`
}

// Bracket assigns Label to every score >= Min that no earlier bracket took.
type Bracket struct {
	Min   float64
	Label string
}

// Verdicts is ordered by descending Min and ends at 0, so every score in
// [0, 100] lands in exactly one bracket.
var Verdicts = []Bracket{
	{100, "Mic God 👑"},
	{95, "Crypto Legend 💎"},
	{90, "Moonbound 🚀"},
	{85, "Frog King 🐸"},
	{80, "Unstoppable 💥"},
	{75, "The Belter™️ 🔥"},
	{70, "Mildly Rekt 😅"},
	{65, "On The Rise 📈"},
	{60, "Getting There 👍"},
	{55, "Room for Growth 🌱"},
	{50, "Keep Practicing 💪"},
	{45, "Not Bad 🛑"},
	{40, "Almost Rugged 😬"},
	{35, "Close But No 🍄"},
	{30, "Cat Blender 🐱💥"},
	{20, "WTF Was That? 🤨"},
	{10, "Rugged Again 🏚️"},
	{0, "Dead Inside 💀"},
}

func Verdict(score float64) string {
	for _, b := range Verdicts {
		if score >= b.Min {
			return b.Label
		}
	}
	return Verdicts[len(Verdicts)-1].Label
}

// DefaultResult is returned in place of a real score when analysis fails.
func DefaultResult() ScoreResult {
	return ScoreResult{
		PitchScore:  25,
		RhythmScore: 25,
		FinalScore:  25,
		Verdict:     AnalysisErrorVerdict,
	}
}

// Compose turns metrics into a ScoreResult.
func Compose(m Metrics) ScoreResult {
	accuracy := clamp01(m.PitchAccuracy)
	diversity := clamp01(m.PitchDiversity)
	activity := clamp01(m.ActivityRatio)
	duration := m.DurationSeconds
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}

	// a steady drone earns half the accuracy credit of a moving melody
	signal := accuracy * (0.5 + 0.5*diversity)
	if signal < silenceFloor {
		signal = 0
	}
	pitch := shape(signal)

	rhythm := math.Pow(shape(activity)/100, rhythmFlattening) * 100
	rhythm = math.Min(rhythm, rhythmCeiling)

	base := pitchWeight*pitch + rhythmWeight*rhythm
	penalized := duration < minDuration
	if penalized {
		base *= durationPenalty
	}

	final := math.Min(round1(base), finalScoreCeiling)
	final = math.Max(0, math.Min(final, 100))

	return ScoreResult{
		PitchScore:             round1(pitch),
		RhythmScore:            round1(rhythm),
		FinalScore:             final,
		Verdict:                Verdict(final),
		Clarity:                int(math.Round(accuracy * 100)),
		MidiRange:              int(math.Round(diversity * 100)),
		PitchAccuracy:          accuracy,
		PitchDiversity:         diversity,
		ActivityRatio:          activity,
		DurationSeconds:        round1(duration),
		DurationPenaltyApplied: penalized,
	}
}

func shape(x float64) float64 {
	return math.Pow(clamp01(x), shapeExponent) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
