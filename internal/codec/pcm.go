package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedInput indicates a transport payload that could not be decoded.
var ErrMalformedInput = errors.New("malformed transport payload")

// EncodePCM16 converts float samples in [-1, 1] to base64 of little-endian
// 16-bit PCM, the transport encoding expected by the live service.
// Out-of-range samples are clamped, not rejected.
func EncodePCM16(samples []float32) string {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		v := int16(sample * 32767.0)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// Decode reverses the transport base64 encoding of a response payload.
func Decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return data, nil
}

// Buffer holds decoded audio as one float sample slice per channel.
type Buffer struct {
	channels   [][]float32
	sampleRate int
}

// DecodeAudioData interprets data as interleaved little-endian 16-bit PCM
// and rescales it to float samples in [-1, 1], one slice per channel.
// Empty input yields an empty zero-duration buffer, never an error.
func DecodeAudioData(data []byte, sampleRate, numChannels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if numChannels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", numChannels)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: PCM data length must be even (16-bit samples)", ErrMalformedInput)
	}

	samples := SamplesFromPCM16(data)
	frames := len(samples) / numChannels

	channels := make([][]float32, numChannels)
	if numChannels == 1 {
		channels[0] = samples
	} else {
		for ch := 0; ch < numChannels; ch++ {
			channels[ch] = make([]float32, frames)
			for i := 0; i < frames; i++ {
				channels[ch][i] = samples[i*numChannels+ch]
			}
		}
	}

	return &Buffer{channels: channels, sampleRate: sampleRate}, nil
}

// SamplesFromPCM16 converts little-endian 16-bit PCM bytes to float samples.
// A trailing odd byte is ignored.
func SamplesFromPCM16(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// SampleRate returns the rate the buffer was decoded at.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.channels)
}

// Frames returns the per-channel sample count.
func (b *Buffer) Frames() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// Duration returns the playback length in seconds. The playback scheduler
// advances its cursor by exactly this value per enqueued buffer.
func (b *Buffer) Duration() float64 {
	return float64(b.Frames()) / float64(b.sampleRate)
}

// Channel returns the samples for one channel, aliased.
func (b *Buffer) Channel(ch int) []float32 {
	return b.channels[ch]
}

// Mono mixes all channels down to a single sample slice. A mono buffer
// returns its channel aliased, without copying.
func (b *Buffer) Mono() []float32 {
	if len(b.channels) == 0 {
		return nil
	}
	if len(b.channels) == 1 {
		return b.channels[0]
	}
	out := make([]float32, b.Frames())
	for _, ch := range b.channels {
		for i, s := range ch {
			out[i] += s / float32(len(b.channels))
		}
	}
	return out
}

// PCM16 re-interleaves the buffer back into little-endian 16-bit PCM bytes.
func (b *Buffer) PCM16() []byte {
	frames := b.Frames()
	numChannels := len(b.channels)
	out := make([]byte, frames*numChannels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			sample := b.channels[ch][i]
			if sample > 1.0 {
				sample = 1.0
			} else if sample < -1.0 {
				sample = -1.0
			}
			v := int16(sample * 32767.0)
			idx := (i*numChannels + ch) * 2
			out[idx] = byte(v)
			out[idx+1] = byte(v >> 8)
		}
	}
	return out
}

// Resample performs linear interpolation resampling between two rates.
// Basic by intent; good enough for speech mixing.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}
