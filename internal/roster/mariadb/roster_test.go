package mariadb

import (
	"strings"
	"testing"
)

func TestFloat32BlobRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		enc  []float32
	}{
		{"typical", []float32{0.125, -1.5, 3.25, 0}},
		{"single", []float32{42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := encodeFloat32s(tt.enc)
			if len(blob) != 4*len(tt.enc) {
				t.Fatalf("expected %d bytes, got %d", 4*len(tt.enc), len(blob))
			}
			got, err := decodeFloat32s(blob)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			for i := range tt.enc {
				if got[i] != tt.enc[i] {
					t.Errorf("value %d: expected %v, got %v", i, tt.enc[i], got[i])
				}
			}
		})
	}
}

func TestEncodeFloat32s_LittleEndian(t *testing.T) {
	// 1.0 is 0x3F800000.
	blob := encodeFloat32s([]float32{1})
	want := []byte{0x00, 0x00, 0x80, 0x3F}
	for i := range want {
		if blob[i] != want[i] {
			t.Fatalf("expected %x, got %x", want, blob)
		}
	}
}

func TestEmptyEncodingIsNull(t *testing.T) {
	if encodeFloat32s(nil) != nil {
		t.Error("expected nil blob for empty encoding")
	}
	got, err := decodeFloat32s(nil)
	if err != nil || got != nil {
		t.Errorf("expected nil encoding, got %v (err %v)", got, err)
	}
}

func TestDecodeFloat32s_BadLength(t *testing.T) {
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestDSN(t *testing.T) {
	dsn, err := DSN("user:pass@tcp(db:3306)/attendance")
	if err != nil {
		t.Fatalf("DSN failed: %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime in %q", dsn)
	}

	if _, err := DSN(""); err == nil {
		t.Error("expected error for empty DSN")
	}
}
