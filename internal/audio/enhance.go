package audio

const fullScale = 32767.0

// EnhancerConfig holds the tunables for the enhancement chain
type EnhancerConfig struct {
	VADThreshold float64 // fraction of full scale mean energy that counts as speech
	GainTarget   float64 // target peak as a fraction of full scale
	MaxGain      float64 // gain ceiling applied during normalization
}

// DefaultEnhancerConfig returns the enhancement defaults
func DefaultEnhancerConfig() EnhancerConfig {
	return EnhancerConfig{
		VADThreshold: 0.3,
		GainTarget:   0.7,
		MaxGain:      2.0,
	}
}

// Enhancer applies the fixed enhancement chain to PCM sample buffers.
// Each stage is a pure transform; the chain either returns an enhanced
// buffer or reports that the frame carries no speech.
type Enhancer struct {
	config EnhancerConfig
}

// NewEnhancer creates an enhancer with the given configuration
func NewEnhancer(config EnhancerConfig) *Enhancer {
	if config.VADThreshold <= 0 {
		config.VADThreshold = 0.3
	}
	if config.GainTarget <= 0 {
		config.GainTarget = 0.7
	}
	if config.MaxGain <= 0 {
		config.MaxGain = 2.0
	}
	return &Enhancer{config: config}
}

// Enhance runs the full chain on a sample buffer. The returned bool is false
// when no voice activity was detected and the frame should be dropped.
func (e *Enhancer) Enhance(samples []int16) ([]int16, bool) {
	processed := e.ReduceNoise(samples)
	processed = e.NormalizeGain(processed)

	if !e.DetectVoiceActivity(processed) {
		return nil, false
	}

	return processed, true
}

// ReduceNoise applies the noise reduction stage. The transform is a
// pass-through hook; a production deployment plugs a real algorithm in here.
func (e *Enhancer) ReduceNoise(samples []int16) []int16 {
	return samples
}

// NormalizeGain applies automatic gain control, scaling the buffer so its
// peak reaches the configured target amplitude, capped at MaxGain.
func (e *Enhancer) NormalizeGain(samples []int16) []int16 {
	if len(samples) == 0 {
		return samples
	}

	var peak float64
	for _, s := range samples {
		amp := float64(s)
		if amp < 0 {
			amp = -amp
		}
		if amp > peak {
			peak = amp
		}
	}

	if peak == 0 {
		return samples
	}

	gain := e.config.GainTarget * fullScale / peak
	if gain > e.config.MaxGain {
		gain = e.config.MaxGain
	}

	out := make([]int16, len(samples))
	for i, s := range samples {
		scaled := float64(s) * gain
		if scaled > fullScale {
			scaled = fullScale
		} else if scaled < -fullScale-1 {
			scaled = -fullScale - 1
		}
		out[i] = int16(scaled)
	}

	return out
}

// DetectVoiceActivity reports whether the buffer's mean absolute energy
// exceeds the configured threshold.
func (e *Enhancer) DetectVoiceActivity(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}

	var sum float64
	for _, s := range samples {
		amp := float64(s)
		if amp < 0 {
			amp = -amp
		}
		sum += amp
	}

	energy := sum / float64(len(samples))
	return energy > e.config.VADThreshold*fullScale
}
