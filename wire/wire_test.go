package wire

import (
	"testing"
	"time"
)

type fixedTimeProvider struct{ t time.Time }

func (f fixedTimeProvider) Now() time.Time { return f.t }

func TestPutAndReadUint48RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Timestamp
	}{
		{"zero", 0},
		{"one", 1},
		{"max48", Timestamp(mask48)},
		{"typical_micros", 1_732_000_000_000_000 & Timestamp(mask48)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, U48Size)
			PutUint48(buf, tt.in)
			got := Uint48(buf)
			if got != tt.in {
				t.Errorf("Uint48(PutUint48(%d)) = %d", tt.in, got)
			}
		})
	}
}

func TestUint48TruncatesToLowerBytes(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xAB, 0xCD}
	if got := Uint48(buf); got != Timestamp(mask48) {
		t.Errorf("Uint48 read past byte 6: got %d", got)
	}
}

func TestAbsDiff(t *testing.T) {
	tests := []struct {
		a, b Timestamp
		want Timestamp
	}{
		{10, 3, 7},
		{3, 10, 7},
		{5, 5, 0},
	}

	for _, tt := range tests {
		if got := AbsDiff(tt.a, tt.b); got != tt.want {
			t.Errorf("AbsDiff(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNowUsesProvidedClock(t *testing.T) {
	fixed := fixedTimeProvider{t: time.UnixMicro(1_600_000_000_000_000)}
	got := Now(fixed)
	want := Timestamp(uint64(fixed.t.UnixMicro()) & mask48)
	if got != want {
		t.Errorf("Now() = %d, want %d", got, want)
	}
}

func TestNowNilProviderFallsBackToDefault(t *testing.T) {
	got := Now(nil)
	if got == 0 {
		t.Error("Now(nil) returned zero, expected a current timestamp")
	}
}
