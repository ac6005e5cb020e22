// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	full := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "canonical", input: full, want: full},
		{name: "uppercase digits", input: strings.ToUpper(full[:2]) + strings.ToUpper(full[2:]), want: full},
		{name: "short form", input: "0xA", want: "0x" + strings.Repeat("0", 63) + "a"},
		{name: "even short form", input: "0x0b", want: "0x" + strings.Repeat("0", 63) + "b"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			parsed, err := Parse(test.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", test.input, err)
			}
			if parsed.String() != test.want {
				t.Errorf("Parse(%q) = %s, want %s", test.input, parsed, test.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{
		"",
		"0x",
		"abcd",
		"0xzz",
		"0x" + strings.Repeat("a", 65),
	} {
		if _, err := Parse(input); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidFormat", input, err)
		}
	}
}

func TestFromBytes(t *testing.T) {
	if _, err := FromBytes(make([]byte, 31)); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("FromBytes(31 bytes) error = %v, want ErrInvalidFormat", err)
	}
	data := make([]byte, Length)
	data[0] = 0x42
	parsed, err := FromBytes(data)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	data[0] = 0
	if parsed[0] != 0x42 {
		t.Error("FromBytes aliases its input")
	}
}

func TestFromEd25519_Deterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	public := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	first := FromEd25519(public)
	second := FromEd25519(public)
	if first != second {
		t.Fatalf("FromEd25519 not deterministic: %s vs %s", first, second)
	}
	if first.IsZero() {
		t.Fatal("FromEd25519 returned zero address")
	}

	seed[0] = 1
	other := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if FromEd25519(other) == first {
		t.Fatal("distinct keys produced the same address")
	}
}

func TestTextRoundtrip(t *testing.T) {
	original := MustParse("0xc0ffee")
	text, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip = %s, want %s", decoded, original)
	}
}

func TestShort(t *testing.T) {
	short := MustParse("0x" + strings.Repeat("12", 32)).Short()
	if short != "0x1212..1212" {
		t.Errorf("Short() = %q", short)
	}
}
