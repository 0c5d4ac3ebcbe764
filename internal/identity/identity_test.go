package identity

import (
	"errors"
	"testing"
)

func TestParsePrincipal(t *testing.T) {
	// System program address: 32 zero bytes, a valid curve point.
	valid := "11111111111111111111111111111111"

	p, err := ParsePrincipal(valid)
	if err != nil {
		t.Fatalf("ParsePrincipal(%q) failed: %v", valid, err)
	}
	if p.String() != valid {
		t.Errorf("principal mangled: %q", p)
	}

	cases := []string{
		"",
		"not-base58-0OIl",
		"abc",                 // too short once decoded
		"1111111111111111111", // 19 ones decode to fewer than 32 bytes
	}
	for _, addr := range cases {
		if _, err := ParsePrincipal(addr); !errors.Is(err, ErrInvalidPrincipal) {
			t.Errorf("ParsePrincipal(%q): got %v, want ErrInvalidPrincipal", addr, err)
		}
	}
}

func TestAdminCap(t *testing.T) {
	cap, err := NewAdminCap()
	if err != nil {
		t.Fatalf("NewAdminCap failed: %v", err)
	}

	restored, err := AdminCapFromHex(cap.Hex())
	if err != nil {
		t.Fatalf("AdminCapFromHex failed: %v", err)
	}
	if !cap.Equal(restored) {
		t.Error("restored cap does not match original")
	}

	other, err := NewAdminCap()
	if err != nil {
		t.Fatalf("NewAdminCap failed: %v", err)
	}
	if cap.Equal(other) {
		t.Error("distinct caps compared equal")
	}

	if _, err := AdminCapFromHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := AdminCapFromHex("abcd"); err == nil {
		t.Error("expected error for short hex")
	}
}
