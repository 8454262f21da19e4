// Package analyser produces byte-frequency snapshots of a tapped audio
// stream for visualization consumers. It has no effect on the audio path.
package analyser

import (
	"math"
	"math/cmplx"
	"sync"
)

const (
	// Transform size; the snapshot holds half as many frequency bins.
	fftSize  = 256
	binCount = fftSize / 2
)

// Config fixes the analyser tuning at construction time.
type Config struct {
	// Smoothing is the time constant blending successive snapshots, in [0, 1).
	Smoothing float64
	// MinDecibels and MaxDecibels bound the byte mapping range.
	MinDecibels float64
	MaxDecibels float64
}

// DefaultConfig mirrors common visualizer tuning for speech.
func DefaultConfig() Config {
	return Config{Smoothing: 0.8, MinDecibels: -100, MaxDecibels: -30}
}

// Analyser keeps a rolling window of tapped samples and a byte-frequency
// snapshot refreshed on demand.
type Analyser struct {
	cfg Config

	mu       sync.Mutex
	window   []float32
	pos      int
	smoothed []float64
	data     []byte
}

// New creates an analyser with the given fixed tuning.
func New(cfg Config) *Analyser {
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		cfg.Smoothing = 0.8
	}
	if cfg.MaxDecibels <= cfg.MinDecibels {
		cfg.MinDecibels = -100
		cfg.MaxDecibels = -30
	}
	return &Analyser{
		cfg:      cfg,
		window:   make([]float32, fftSize),
		smoothed: make([]float64, binCount),
		data:     make([]byte, binCount),
	}
}

// OnFrame feeds tapped samples into the rolling analysis window.
func (a *Analyser) OnFrame(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.window[a.pos] = s
		a.pos = (a.pos + 1) % fftSize
	}
}

// Update recomputes the snapshot from the current window. Side effect only.
func (a *Analyser) Update() {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Oldest-first copy of the ring, Blackman windowed.
	input := make([]complex128, fftSize)
	for i := 0; i < fftSize; i++ {
		s := float64(a.window[(a.pos+i)%fftSize])
		input[i] = complex(s*blackman(i, fftSize), 0)
	}

	spectrum := fft(input)

	for i := 0; i < binCount; i++ {
		mag := cmplx.Abs(spectrum[i]) / float64(fftSize)
		a.smoothed[i] = a.cfg.Smoothing*a.smoothed[i] + (1-a.cfg.Smoothing)*mag

		db := -math.MaxFloat64
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}
		scaled := 255 * (db - a.cfg.MinDecibels) / (a.cfg.MaxDecibels - a.cfg.MinDecibels)
		if scaled < 0 {
			scaled = 0
		} else if scaled > 255 {
			scaled = 255
		}
		a.data[i] = byte(scaled)
	}
}

// Data returns the current snapshot, aliased. Callers must not assume the
// contents are frozen between update cycles.
func (a *Analyser) Data() []byte {
	return a.data
}

// BinCount returns the snapshot length.
func (a *Analyser) BinCount() int {
	return binCount
}

func blackman(n, size int) float64 {
	x := 2 * math.Pi * float64(n) / float64(size-1)
	return 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
}

// fft is an iterative radix-2 Cooley-Tukey transform. Input length must be a
// power of two; the fixed transform size guarantees that here.
func fft(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	copy(out, x)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			out[i], out[j] = out[j], out[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := out[start+k]
				v := out[start+k+length/2] * w
				out[start+k] = u + v
				out[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
	return out
}
