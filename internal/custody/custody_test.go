package custody

import (
	"errors"
	"math"
	"testing"
)

func TestBalanceSplitJoin(t *testing.T) {
	b := NewBalance(1000)

	part, err := b.Split(300)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if part.Value() != 300 || b.Value() != 700 {
		t.Errorf("after split: part=%d rest=%d, want 300/700", part.Value(), b.Value())
	}

	if err := b.Join(part); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if b.Value() != 1000 {
		t.Errorf("after join: %d, want 1000 (value not conserved)", b.Value())
	}

	if _, err := b.Split(1001); !errors.Is(err, ErrInsufficient) {
		t.Errorf("oversplit: got %v, want ErrInsufficient", err)
	}
	if b.Value() != 1000 {
		t.Errorf("failed split mutated balance: %d", b.Value())
	}
}

func TestBalanceJoinOverflow(t *testing.T) {
	b := NewBalance(math.MaxUint64 - 10)

	if err := b.Join(NewBalance(11)); !errors.Is(err, ErrOverflow) {
		t.Errorf("overflowing join: got %v, want ErrOverflow", err)
	}
	if b.Value() != math.MaxUint64-10 {
		t.Errorf("failed join mutated balance: %d", b.Value())
	}

	if err := b.Join(NewBalance(10)); err != nil {
		t.Fatalf("join to exact max failed: %v", err)
	}
	if b.Value() != math.MaxUint64 {
		t.Errorf("after join: %d, want MaxUint64", b.Value())
	}
}

func TestVaultDepositOverflow(t *testing.T) {
	v := NewVault()
	if err := v.Deposit("round1", AssetCoin, math.MaxUint64); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if err := v.Deposit("round1", AssetCoin, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("overflowing deposit: got %v, want ErrOverflow", err)
	}
	if got := v.FundValue("round1", AssetCoin); got != math.MaxUint64 {
		t.Errorf("failed deposit mutated fund: %d", got)
	}
}

func TestVaultTransfer(t *testing.T) {
	v := NewVault()
	if err := v.Deposit("round1", AssetCoin, 500); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if got := v.FundValue("round1", AssetCoin); got != 500 {
		t.Fatalf("fund value = %d, want 500", got)
	}

	if err := v.Transfer("round1", AssetCoin, 200, "alice"); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if got := v.FundValue("round1", AssetCoin); got != 300 {
		t.Errorf("fund after transfer = %d, want 300", got)
	}
	if got := v.AccountValue("alice", AssetCoin); got != 200 {
		t.Errorf("account after transfer = %d, want 200", got)
	}

	err := v.Transfer("round1", AssetCoin, 301, "alice")
	if !errors.Is(err, ErrInsufficient) {
		t.Errorf("overdraw: got %v, want ErrInsufficient", err)
	}
	if got := v.FundValue("round1", AssetCoin); got != 300 {
		t.Errorf("failed transfer mutated fund: %d", got)
	}

	// Funds are isolated per round and per asset.
	if err := v.Transfer("round2", AssetCoin, 1, "bob"); !errors.Is(err, ErrInsufficient) {
		t.Errorf("empty round fund: got %v, want ErrInsufficient", err)
	}
	if err := v.Transfer("round1", AssetToken, 1, "bob"); !errors.Is(err, ErrInsufficient) {
		t.Errorf("empty token fund: got %v, want ErrInsufficient", err)
	}
}
