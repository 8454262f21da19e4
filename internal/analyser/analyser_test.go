package analyser

import (
	"math"
	"testing"
)

func TestAnalyser_SnapshotLength(t *testing.T) {
	a := New(DefaultConfig())
	if len(a.Data()) != 128 {
		t.Errorf("Expected 128 frequency bins, got %d", len(a.Data()))
	}
	if a.BinCount() != 128 {
		t.Errorf("Expected BinCount 128, got %d", a.BinCount())
	}
}

func TestAnalyser_SilenceMapsToFloor(t *testing.T) {
	a := New(DefaultConfig())
	a.OnFrame(make([]float32, 256))
	a.Update()
	for i, v := range a.Data() {
		if v != 0 {
			t.Errorf("Bin %d: expected 0 for silence, got %d", i, v)
		}
	}
}

func TestAnalyser_SinePeaksAtItsBin(t *testing.T) {
	// Disable smoothing so a single Update reflects the window fully.
	a := New(Config{Smoothing: 0, MinDecibels: -100, MaxDecibels: -30})

	// A tone landing exactly on bin 16: 16 cycles per 256-sample window.
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*16*float64(i)/256))
	}
	a.OnFrame(samples)
	a.Update()

	data := a.Data()
	peak := 0
	for i, v := range data {
		if v > data[peak] {
			peak = i
		}
		_ = v
	}
	if peak != 16 {
		t.Errorf("Expected spectral peak at bin 16, got %d", peak)
	}
	if data[16] == 0 {
		t.Error("Expected non-zero energy at the tone bin")
	}
}

func TestAnalyser_DataIsAliased(t *testing.T) {
	a := New(Config{Smoothing: 0, MinDecibels: -100, MaxDecibels: -30})
	snapshot := a.Data()

	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = float32(0.9 * math.Sin(2*math.Pi*8*float64(i)/256))
	}
	a.OnFrame(samples)
	a.Update()

	// The slice handed out before the update observes the refresh.
	any := false
	for _, v := range snapshot {
		if v != 0 {
			any = true
			break
		}
	}
	if !any {
		t.Error("Expected aliased snapshot to reflect the update")
	}
}

func TestAnalyser_SmoothingDecays(t *testing.T) {
	a := New(Config{Smoothing: 0.5, MinDecibels: -100, MaxDecibels: -30})

	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*16*float64(i)/256))
	}
	a.OnFrame(samples)
	a.Update()
	loud := a.Data()[16]

	// Window replaced by silence: energy decays rather than vanishing.
	a.OnFrame(make([]float32, 256))
	a.Update()
	decayed := a.Data()[16]

	if decayed >= loud {
		t.Errorf("Expected bin to decay after silence: loud=%d decayed=%d", loud, decayed)
	}
	if decayed == 0 {
		t.Error("Expected smoothing to retain residual energy after one silent window")
	}
}
