package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame is a single raw audio frame for a session. Immutable once created;
// consumed by the ingestion and buffering stages.
type Frame struct {
	Data       []byte    `json:"data"`
	SampleRate int       `json:"sample_rate"`
	SessionID  string    `json:"session_id"`
	ProducerID string    `json:"producer_id"`
	Timestamp  time.Time `json:"timestamp"`
	Final      bool      `json:"is_final"`
}

// Duration returns the playback duration of the frame assuming 16-bit mono PCM.
func (f *Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(f.Data) / 2
	return time.Duration(float64(samples) / float64(f.SampleRate) * float64(time.Second))
}

// BytesToSamples converts little-endian 16-bit PCM bytes to samples
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data must have even length, got %d bytes", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// SamplesToBytes converts samples back to little-endian 16-bit PCM bytes
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
