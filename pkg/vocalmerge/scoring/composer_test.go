package scoring

import (
	"math"
	"testing"
)

func TestVerdictTableIsTotalAndOrdered(t *testing.T) {
	if Verdicts[len(Verdicts)-1].Min != 0 {
		t.Fatalf("last bracket must start at 0, starts at %v", Verdicts[len(Verdicts)-1].Min)
	}
	if Verdicts[0].Min > 100 {
		t.Fatalf("first bracket starts above 100: %v", Verdicts[0].Min)
	}
	seen := map[string]bool{}
	for i, b := range Verdicts {
		if seen[b.Label] {
			t.Errorf("duplicate label %q", b.Label)
		}
		seen[b.Label] = true
		if i > 0 && b.Min >= Verdicts[i-1].Min {
			t.Errorf("bracket %d (%v) not below bracket %d (%v)", i, b.Min, i-1, Verdicts[i-1].Min)
		}
	}

	for score := 0.0; score <= 100; score += 0.1 {
		s := math.Round(score*10) / 10
		matches := 0
		for i, b := range Verdicts {
			upper := math.Inf(1)
			if i > 0 {
				upper = Verdicts[i-1].Min
			}
			if s >= b.Min && s < upper {
				matches++
				if got := Verdict(s); got != b.Label {
					t.Errorf("Verdict(%v) = %q, want %q", s, got, b.Label)
				}
			}
		}
		if matches != 1 {
			t.Errorf("score %v matched %d brackets", s, matches)
		}
	}
}

func TestComposeSilence(t *testing.T) {
	res := Compose(Metrics{DurationSeconds: 10})
	if res.FinalScore != 0 || res.PitchScore != 0 || res.RhythmScore != 0 {
		t.Fatalf("expected zero scores, got %+v", res)
	}
	if res.Verdict != Verdicts[len(Verdicts)-1].Label {
		t.Errorf("verdict = %q", res.Verdict)
	}
	if !res.DurationPenaltyApplied {
		t.Error("10s recording should be penalized")
	}
}

func TestComposeSilenceFloorCollapsesPitch(t *testing.T) {
	res := Compose(Metrics{PitchAccuracy: 0.03, ActivityRatio: 1, DurationSeconds: 120})
	if res.PitchScore != 0 {
		t.Fatalf("pitch signal below floor should score 0, got %v", res.PitchScore)
	}
}

func TestComposeDurationPenaltyLaw(t *testing.T) {
	m := Metrics{PitchAccuracy: 0.9, PitchDiversity: 0.3, ActivityRatio: 0.8}

	m.DurationSeconds = 61
	long := Compose(m)
	m.DurationSeconds = 59
	short := Compose(m)

	if long.DurationPenaltyApplied || !short.DurationPenaltyApplied {
		t.Fatalf("penalty flags: long=%t short=%t", long.DurationPenaltyApplied, short.DurationPenaltyApplied)
	}
	if long.FinalScore >= finalScoreCeiling {
		t.Fatalf("fixture hits the ceiling: %v", long.FinalScore)
	}
	if diff := math.Abs(short.FinalScore - long.FinalScore*0.8); diff > 0.1 {
		t.Errorf("short=%v long=%v: expected short = 0.8 * long", short.FinalScore, long.FinalScore)
	}
	if short.PitchScore != long.PitchScore || short.RhythmScore != long.RhythmScore {
		t.Error("penalty must only affect the final score")
	}
}

func TestComposePenaltyAppliesBeforeCeiling(t *testing.T) {
	m := Metrics{PitchAccuracy: 1, PitchDiversity: 1, ActivityRatio: 1, DurationSeconds: 300}
	long := Compose(m)
	m.DurationSeconds = 30
	short := Compose(m)

	if long.FinalScore != finalScoreCeiling {
		t.Fatalf("fixture should hit the ceiling, got %v", long.FinalScore)
	}
	uncapped := 0.4*short.PitchScore + 0.6*short.RhythmScore
	if diff := math.Abs(short.FinalScore - uncapped*0.8); diff > 0.1 {
		t.Errorf("short=%v: expected 0.8 * uncapped base %v", short.FinalScore, uncapped)
	}
	if short.FinalScore <= long.FinalScore*0.8 {
		t.Errorf("short=%v should exceed 0.8 * capped %v", short.FinalScore, long.FinalScore)
	}
}

func TestComposeCeilings(t *testing.T) {
	res := Compose(Metrics{PitchAccuracy: 1, PitchDiversity: 1, ActivityRatio: 1, DurationSeconds: 300})
	if res.RhythmScore != rhythmCeiling {
		t.Errorf("rhythm = %v, want ceiling %v", res.RhythmScore, rhythmCeiling)
	}
	if res.FinalScore != finalScoreCeiling {
		t.Errorf("final = %v, want ceiling %v", res.FinalScore, finalScoreCeiling)
	}
	if res.Clarity != 100 || res.MidiRange != 100 {
		t.Errorf("clarity=%d midiRange=%d", res.Clarity, res.MidiRange)
	}
}

func TestComposeClampsOutOfRangeMetrics(t *testing.T) {
	inputs := []Metrics{
		{PitchAccuracy: -1, PitchDiversity: 7, ActivityRatio: 2, DurationSeconds: -5},
		{PitchAccuracy: math.NaN(), PitchDiversity: math.NaN(), ActivityRatio: math.NaN(), DurationSeconds: math.NaN()},
		{PitchAccuracy: 1.5, ActivityRatio: -0.2, DurationSeconds: 1e9},
	}
	for _, m := range inputs {
		res := Compose(m)
		assertBounded(t, res)
	}
}

func TestSteadyToneMetricsSuppressPitch(t *testing.T) {
	steady := Compose(Metrics{PitchAccuracy: 1, PitchDiversity: 0, ActivityRatio: 1, DurationSeconds: 90})
	varied := Compose(Metrics{PitchAccuracy: 1, PitchDiversity: 0.6, ActivityRatio: 1, DurationSeconds: 90})
	if steady.PitchScore >= varied.PitchScore {
		t.Fatalf("steady=%v varied=%v: diversity should raise the pitch score", steady.PitchScore, varied.PitchScore)
	}
	if steady.PitchScore >= 50 {
		t.Errorf("steady tone pitch score = %v, want below 50", steady.PitchScore)
	}
}

func TestDefaultResult(t *testing.T) {
	res := DefaultResult()
	if res.PitchScore != 25 || res.RhythmScore != 25 || res.FinalScore != 25 {
		t.Fatalf("unexpected default: %+v", res)
	}
	if res.Verdict != AnalysisErrorVerdict {
		t.Errorf("verdict = %q", res.Verdict)
	}
	for _, b := range Verdicts {
		if b.Label == AnalysisErrorVerdict {
			t.Fatal("error verdict must be distinct from every bracket label")
		}
	}
}

func assertBounded(t *testing.T, res ScoreResult) {
	t.Helper()
	in01 := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Errorf("%s = %v, outside [0,1]", name, v)
		}
	}
	in01("pitchAccuracy", res.PitchAccuracy)
	in01("pitchDiversity", res.PitchDiversity)
	in01("activityRatio", res.ActivityRatio)
	if math.IsNaN(res.FinalScore) || res.FinalScore < 0 || res.FinalScore > 100 {
		t.Errorf("finalScore = %v, outside [0,100]", res.FinalScore)
	}
	if res.Verdict == "" {
		t.Error("missing verdict")
	}
}
