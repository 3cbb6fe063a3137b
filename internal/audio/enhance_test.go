package audio

import "testing"

func TestDetectVoiceActivity(t *testing.T) {
	enhancer := NewEnhancer(DefaultEnhancerConfig())

	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 20000
	}
	if !enhancer.DetectVoiceActivity(loud) {
		t.Error("Expected voice activity for loud buffer")
	}

	quiet := make([]int16, 160)
	for i := range quiet {
		quiet[i] = 100
	}
	if enhancer.DetectVoiceActivity(quiet) {
		t.Error("Expected no voice activity for quiet buffer")
	}

	if enhancer.DetectVoiceActivity(nil) {
		t.Error("Expected no voice activity for empty buffer")
	}
}

func TestNormalizeGain(t *testing.T) {
	enhancer := NewEnhancer(EnhancerConfig{
		VADThreshold: 0.3,
		GainTarget:   0.7,
		MaxGain:      10.0,
	})

	samples := []int16{20000, -20000, 500}
	out := enhancer.NormalizeGain(samples)

	// Peak of 20000 should be scaled to 0.7 * 32767.
	expectedF := 0.7 * 32767.0
	expected := int16(expectedF)
	if out[0] < expected-1 || out[0] > expected+1 {
		t.Errorf("Expected peak near %d, got %d", expected, out[0])
	}
	if out[1] != -out[0] {
		t.Errorf("Expected symmetric scaling, got %d and %d", out[0], out[1])
	}
}

func TestNormalizeGainCapped(t *testing.T) {
	enhancer := NewEnhancer(EnhancerConfig{
		VADThreshold: 0.3,
		GainTarget:   0.7,
		MaxGain:      2.0,
	})

	// Peak 1000 wants gain 22.9 but must be capped at 2.0.
	samples := []int16{1000}
	out := enhancer.NormalizeGain(samples)
	if out[0] != 2000 {
		t.Errorf("Expected gain capped at 2.0 giving 2000, got %d", out[0])
	}
}

func TestNormalizeGainSilence(t *testing.T) {
	enhancer := NewEnhancer(DefaultEnhancerConfig())

	silence := []int16{0, 0, 0}
	out := enhancer.NormalizeGain(silence)
	for i, s := range out {
		if s != 0 {
			t.Errorf("Expected silence to stay silent, sample %d is %d", i, s)
		}
	}
}

func TestEnhanceDropsNonSpeech(t *testing.T) {
	// MaxGain 1.0 keeps quiet buffers below the VAD threshold.
	enhancer := NewEnhancer(EnhancerConfig{
		VADThreshold: 0.3,
		GainTarget:   0.7,
		MaxGain:      1.0,
	})

	quiet := make([]int16, 160)
	for i := range quiet {
		quiet[i] = 10
	}

	if _, hasVoice := enhancer.Enhance(quiet); hasVoice {
		t.Error("Expected quiet buffer to be dropped")
	}

	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 20000
	}

	enhanced, hasVoice := enhancer.Enhance(loud)
	if !hasVoice {
		t.Fatal("Expected loud buffer to pass")
	}
	if len(enhanced) != len(loud) {
		t.Errorf("Expected %d samples, got %d", len(loud), len(enhanced))
	}
}
