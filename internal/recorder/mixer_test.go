package recorder

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeScreen struct {
	mu       sync.Mutex
	path     string
	startErr error
	started  int
	stops    int
	done     chan struct{}
}

func newFakeScreen(path string) *fakeScreen {
	return &fakeScreen{path: path, done: make(chan struct{})}
}

func (s *fakeScreen) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started++
	return nil
}

func (s *fakeScreen) Stop() {
	s.mu.Lock()
	s.stops++
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *fakeScreen) Path() string          { return s.path }
func (s *fakeScreen) Done() <-chan struct{} { return s.done }

func (s *fakeScreen) end() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
}

func readWAV(t *testing.T, path string) (sampleRate int, samples []int16) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("not a WAV file (%d bytes)", len(data))
	}
	sampleRate = int(binary.LittleEndian.Uint32(data[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if 44+dataLen > len(data) {
		t.Fatalf("data chunk length %d exceeds file size %d", dataLen, len(data))
	}
	samples = make([]int16, dataLen/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[44+i*2:]))
	}
	return sampleRate, samples
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestMixdownAppliesGains(t *testing.T) {
	m := NewMixer(Config{UserGain: 1.0, AssistantGain: 2.0}, nil)
	mixed := m.mixdown(constant(4, 0.1), constant(4, 0.2))
	for i, v := range mixed {
		if v < 0.499 || v > 0.501 {
			t.Errorf("mixed[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestMixdownClampsToUnity(t *testing.T) {
	m := NewMixer(Config{UserGain: 1.0, AssistantGain: 2.0}, nil)
	mixed := m.mixdown(constant(2, 0.9), constant(2, 0.9))
	for i, v := range mixed {
		if v != 1.0 {
			t.Errorf("mixed[%d] = %v, want clamped 1.0", i, v)
		}
	}
}

func TestMixdownUnevenTrackLengths(t *testing.T) {
	m := NewMixer(Config{UserGain: 1.0, AssistantGain: 1.0}, nil)
	mixed := m.mixdown(constant(2, 0.25), constant(5, 0.25))
	if len(mixed) != 5 {
		t.Fatalf("mixed length = %d, want 5", len(mixed))
	}
	if mixed[0] < 0.499 || mixed[0] > 0.501 {
		t.Errorf("mixed[0] = %v, want 0.5", mixed[0])
	}
	if mixed[4] < 0.249 || mixed[4] > 0.251 {
		t.Errorf("mixed[4] = %v, want 0.25", mixed[4])
	}
}

func TestFramesDroppedWhenNotRecording(t *testing.T) {
	dir := t.TempDir()
	m := NewMixer(Config{OutputDir: dir}, nil)
	m.OnMicFrame(constant(100, 0.5))
	m.OnPlaybackFrame(constant(100, 0.5))
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()

	_, samples := readWAV(t, filepath.Join(dir, audioFilename))
	if len(samples) != 0 {
		t.Errorf("recording has %d samples, want 0 (frames before start must be dropped)", len(samples))
	}
}

func TestStopNeverStartedIsDefensiveNoOp(t *testing.T) {
	dir := t.TempDir()
	m := NewMixer(Config{OutputDir: dir}, nil)
	m.Stop()
	if m.Recording() {
		t.Error("Recording() = true after Stop")
	}
	if _, err := os.Stat(filepath.Join(dir, audioFilename)); !os.IsNotExist(err) {
		t.Error("Stop without Start wrote an output file")
	}
}

func TestStopWritesMixedWAV(t *testing.T) {
	dir := t.TempDir()
	m := NewMixer(Config{OutputDir: dir, SampleRate: 24000, MicSampleRate: 24000}, nil)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.OnPlaybackFrame(constant(2400, 0.25))
	m.Stop()

	rate, samples := readWAV(t, filepath.Join(dir, audioFilename))
	if rate != 24000 {
		t.Errorf("sample rate = %d, want 24000", rate)
	}
	if len(samples) != 2400 {
		t.Errorf("sample count = %d, want 2400", len(samples))
	}
	// assistant gain defaults to 2.0, so 0.25 in lands at 0.5 out
	wantF := 0.5 * 32767.0
	want := int16(wantF)
	if diff := samples[0] - want; diff < -2 || diff > 2 {
		t.Errorf("samples[0] = %d, want ~%d", samples[0], want)
	}
}

func TestMicFramesAreResampledToMixRate(t *testing.T) {
	dir := t.TempDir()
	m := NewMixer(Config{OutputDir: dir, SampleRate: 24000, MicSampleRate: 16000}, nil)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.OnMicFrame(constant(1600, 0.5)) // 100ms at 16k
	m.Stop()

	_, samples := readWAV(t, filepath.Join(dir, audioFilename))
	if len(samples) != 2400 {
		t.Errorf("sample count = %d, want 2400 (100ms at 24k)", len(samples))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	screen := newFakeScreen(filepath.Join(dir, screenFilename))
	m := NewMixer(Config{OutputDir: dir}, screen)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()
	m.Stop()
	if m.Recording() {
		t.Error("Recording() = true after Stop")
	}
}

func TestScreenEndTriggersStop(t *testing.T) {
	dir := t.TempDir()
	screen := newFakeScreen(filepath.Join(dir, screenFilename))
	m := NewMixer(Config{OutputDir: dir}, screen)

	var mu sync.Mutex
	hooked := false
	m.SetAutoStopHook(func() {
		mu.Lock()
		hooked = true
		mu.Unlock()
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	screen.end()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := hooked
		mu.Unlock()
		if done && !m.Recording() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("screen end did not stop the recording")
}

func TestScreenStartFailureFallsBackToAudioOnly(t *testing.T) {
	dir := t.TempDir()
	screen := newFakeScreen(filepath.Join(dir, screenFilename))
	screen.startErr = os.ErrPermission
	m := NewMixer(Config{OutputDir: dir}, screen)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v, want nil (audio-only fallback)", err)
	}
	if !m.Recording() {
		t.Error("Recording() = false after Start")
	}
	m.OnPlaybackFrame(constant(240, 0.1))
	m.Stop()
	if _, err := os.Stat(filepath.Join(dir, audioFilename)); err != nil {
		t.Errorf("audio file missing: %v", err)
	}
}

func TestRestartClearsPreviousTracks(t *testing.T) {
	dir := t.TempDir()
	m := NewMixer(Config{OutputDir: dir, SampleRate: 24000, MicSampleRate: 24000}, nil)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.OnPlaybackFrame(constant(1000, 0.1))
	m.Stop()

	if err := m.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	m.OnPlaybackFrame(constant(200, 0.1))
	m.Stop()

	_, samples := readWAV(t, filepath.Join(dir, audioFilename))
	if len(samples) != 200 {
		t.Errorf("sample count = %d, want 200 (previous recording must not leak)", len(samples))
	}
}
