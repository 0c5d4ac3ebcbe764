package round

import (
	"errors"
	"math"
	"testing"
)

func TestConvertCoinToToken(t *testing.T) {
	cases := []struct {
		name          string
		contributed   uint64
		ratioCoin     uint64
		ratioToken    uint64
		coinDecimals  uint8
		tokenDecimals uint8
		want          uint64
	}{
		{"one to one", 10_000, 1, 1, 6, 6, 10_000},
		{"two tokens per coin", 500, 1, 2, 6, 6, 1000},
		{"half token per coin", 500, 2, 1, 6, 6, 250},
		{"decimal widening", 1_000_000, 1, 1, 6, 9, 1_000_000_000},
		{"decimal narrowing", 1_000_000_000, 1, 1, 9, 6, 1_000_000},
		{"floor division", 7, 3, 1, 6, 6, 2},
		{"zero in floor", 1, 3, 1, 9, 6, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ConvertCoinToToken(tc.contributed, tc.ratioCoin, tc.ratioToken, tc.coinDecimals, tc.tokenDecimals)
			if err != nil {
				t.Fatalf("ConvertCoinToToken failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestConvertCoinToToken_WideIntermediate(t *testing.T) {
	// contributed * ratioToken overflows uint64 but the quotient fits.
	got, err := ConvertCoinToToken(math.MaxUint64, 1_000_000, 1_000_000, 6, 6)
	if err != nil {
		t.Fatalf("ConvertCoinToToken failed: %v", err)
	}
	if got != math.MaxUint64 {
		t.Errorf("got %d, want %d", got, uint64(math.MaxUint64))
	}
}

func TestConvertCoinToToken_Overflow(t *testing.T) {
	_, err := ConvertCoinToToken(math.MaxUint64, 1, 2, 6, 6)
	if !errors.Is(err, ErrCapacity) {
		t.Errorf("expected ErrCapacity for overflowing result, got %v", err)
	}
}

func TestConvertCoinToToken_InvalidInputs(t *testing.T) {
	if _, err := ConvertCoinToToken(100, 0, 1, 6, 6); !errors.Is(err, ErrConfig) {
		t.Errorf("zero coin ratio: got %v, want ErrConfig", err)
	}
	if _, err := ConvertCoinToToken(100, 1, 0, 6, 6); !errors.Is(err, ErrConfig) {
		t.Errorf("zero token ratio: got %v, want ErrConfig", err)
	}
	if _, err := ConvertCoinToToken(100, 1, 1, 0, 6); !errors.Is(err, ErrConfig) {
		t.Errorf("zero coin decimals: got %v, want ErrConfig", err)
	}
	if _, err := ConvertCoinToToken(100, 1, 1, 6, 0); !errors.Is(err, ErrConfig) {
		t.Errorf("zero token decimals: got %v, want ErrConfig", err)
	}
}
