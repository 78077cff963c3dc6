package dtype

import (
	"errors"
	"testing"
)

func TestToQIntType(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  ScalarType
		want ScalarType
	}{
		{Byte, QUInt8},
		{Char, QInt8},
		{Int, QInt32},
	}
	for _, tc := range cases {
		got, err := ToQIntType(tc.raw)
		if err != nil {
			t.Fatalf("ToQIntType(%s): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ToQIntType(%s) = %s, want %s", tc.raw, got, tc.want)
		}
		back, err := ToUnderlying(got)
		if err != nil {
			t.Fatalf("ToUnderlying(%s): %v", got, err)
		}
		if back != tc.raw {
			t.Fatalf("ToUnderlying(%s) = %s, want %s", got, back, tc.raw)
		}
		if got.ElementSize() != tc.raw.ElementSize() {
			t.Fatalf("%s size %d differs from %s size %d", got, got.ElementSize(), tc.raw, tc.raw.ElementSize())
		}
	}
}

func TestToQIntTypeUnsupported(t *testing.T) {
	t.Parallel()
	for _, raw := range []ScalarType{Unknown, Bool, Short, Long, Half, BFloat16, Float, Double, QUInt8, QInt8, QInt32} {
		if _, err := ToQIntType(raw); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("ToQIntType(%s): expected ErrUnsupportedType, got %v", raw, err)
		}
	}
}

func TestQRange(t *testing.T) {
	t.Parallel()
	lo, hi, err := QRange(QInt8)
	if err != nil || lo != -128 || hi != 127 {
		t.Fatalf("QRange(qint8) = %d,%d,%v", lo, hi, err)
	}
	lo, hi, err = QRange(QUInt8)
	if err != nil || lo != 0 || hi != 255 {
		t.Fatalf("QRange(quint8) = %d,%d,%v", lo, hi, err)
	}
	if _, _, err := QRange(Float); err == nil {
		t.Fatal("expected error for float32")
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()
	for _, st := range All() {
		got, err := Parse(st.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", st.String(), err)
		}
		if got != st {
			t.Fatalf("Parse(%q) = %s", st.String(), got)
		}
	}
	if _, err := Parse("complex64"); err == nil {
		t.Fatal("expected error for unknown name")
	}
}

func TestSafetensorsNames(t *testing.T) {
	t.Parallel()
	name, err := QInt32.SafetensorsName()
	if err != nil || name != "I32" {
		t.Fatalf("qint32 safetensors name = %q, %v", name, err)
	}
	st, err := ParseSafetensors("U8")
	if err != nil || st != Byte {
		t.Fatalf("ParseSafetensors(U8) = %s, %v", st, err)
	}
	if _, err := ParseSafetensors("Q4_K"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestOf(t *testing.T) {
	t.Parallel()
	if Of[uint8]() != Byte || Of[int32]() != Int || Of[Quint8]() != QUInt8 || Of[Qint32]() != QInt32 {
		t.Fatal("Of returned unexpected scalar type")
	}
	if Of[string]() != Unknown {
		t.Fatal("Of[string] should be Unknown")
	}
}
