package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEscape_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(rapid.Byte()).Draw(t, "in")
		escaped := Escape(in)

		assert.NotContains(t, escaped, delimiter, "escaped output must not contain a bare delimiter")

		out, err := Unescape(escaped)
		assert.NoError(t, err)
		assert.Equal(t, in, out, "round trip should reproduce the original bytes")
	})
}

func TestUnescape_TrailingEscapeByte(t *testing.T) {
	if _, err := Unescape([]byte{0x01, escapeByte}); err == nil {
		t.Fatalf("expected error for trailing escape byte")
	}
}

func TestUnescape_InvalidSuccessor(t *testing.T) {
	if _, err := Unescape([]byte{escapeByte, 0x00}); err == nil {
		t.Fatalf("expected error for invalid escape successor")
	}
}

func TestEscape_KnownBytes(t *testing.T) {
	in := []byte{0x00, delimiter, 0x01, escapeByte, 0x02}
	want := []byte{0x00, escapeByte, escDelim, 0x01, escapeByte, escEscape, 0x02}
	got := Escape(in)
	if !bytes.Equal(got, want) {
		t.Fatalf("Escape(%x) = %x, want %x", in, got, want)
	}
}
