package capture

import (
	"encoding/binary"
	"testing"
)

func samplesToBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func bytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestRing_WriteRead(t *testing.T) {
	r := NewRing(12)

	data := samplesToBytes(1, 2, 3)
	if written := r.Write(data); written != 6 {
		t.Errorf("Expected to write 6 bytes, got %d", written)
	}
	if r.Available() != 6 {
		t.Errorf("Expected available 6, got %d", r.Available())
	}

	out := make([]byte, 4)
	if read := r.Read(out); read != 4 {
		t.Errorf("Expected to read 4 bytes, got %d", read)
	}
	if got := bytesToSamples(out); got[0] != 1 || got[1] != 2 {
		t.Errorf("Read incorrect samples: %v", got)
	}
	if r.Available() != 2 {
		t.Errorf("Expected available 2 after read, got %d", r.Available())
	}
}

func TestRing_DropsOnOverflow(t *testing.T) {
	r := NewRing(5)

	// Capacity is size-1 to avoid full/empty ambiguity.
	if written := r.Write(samplesToBytes(1, 2)); written != 4 {
		t.Errorf("Expected to write 4 bytes, got %d", written)
	}
	if written := r.Write(samplesToBytes(3)); written != 0 {
		t.Errorf("Expected overflow write to drop all bytes, got %d written", written)
	}
	if r.Available() != 4 {
		t.Errorf("Expected available 4 after overflow, got %d", r.Available())
	}
}

func TestRing_OverflowKeepsSampleAlignment(t *testing.T) {
	// Usable capacity 7 is odd: an overflowing write must round down to a
	// sample boundary, never commit half a sample.
	r := NewRing(8)

	if written := r.Write(samplesToBytes(1, 2, 3, 4)); written != 6 {
		t.Fatalf("Expected overflowing write to commit 6 bytes (3 samples), got %d", written)
	}

	out := make([]byte, 6)
	if read := r.Read(out); read != 6 {
		t.Fatalf("Expected to read 6 bytes, got %d", read)
	}
	for i, want := range []int16{1, 2, 3} {
		if got := bytesToSamples(out)[i]; got != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, got)
		}
	}

	// The stream must continue on a sample boundary after the drop.
	if written := r.Write(samplesToBytes(5, 6)); written != 4 {
		t.Fatalf("Expected to write 4 bytes after drain, got %d", written)
	}
	next := make([]byte, 4)
	if read := r.Read(next); read != 4 {
		t.Fatalf("Expected to read 4 bytes, got %d", read)
	}
	if got := bytesToSamples(next); got[0] != 5 || got[1] != 6 {
		t.Errorf("Stream misaligned after overflow: got samples %v, want [5 6]", got)
	}
}

func TestRing_ReadEmpty(t *testing.T) {
	r := NewRing(10)
	out := make([]byte, 5)
	if read := r.Read(out); read != 0 {
		t.Errorf("Expected to read 0 bytes from empty ring, got %d", read)
	}
}

func TestRing_WrapAround(t *testing.T) {
	r := NewRing(10)

	r.Write(samplesToBytes(1, 2, 3))
	out := make([]byte, 6)
	r.Read(out)

	// Second write wraps past the end of the backing slice.
	r.Write(samplesToBytes(4, 5, 6))
	out2 := make([]byte, 6)
	if read := r.Read(out2); read != 6 {
		t.Fatalf("Expected to read 6 bytes after wrap, got %d", read)
	}
	for i, want := range []int16{4, 5, 6} {
		if got := bytesToSamples(out2)[i]; got != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(10)
	r.Write(samplesToBytes(1, 2))
	r.Reset()
	if r.Available() != 0 {
		t.Errorf("Expected empty ring after reset, got %d available", r.Available())
	}
	if r.Space() != 9 {
		t.Errorf("Expected full space after reset, got %d", r.Space())
	}
}
