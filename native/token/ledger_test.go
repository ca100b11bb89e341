package token

import (
	"math/big"
	"testing"
)

func addr(suffix byte) [20]byte {
	var a [20]byte
	a[len(a)-1] = suffix
	return a
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := NewLedger()
	owner := addr(0x01)
	spender := addr(0x02)
	vault := addr(0x03)

	if err := ledger.Mint(owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.TransferFrom(spender, owner, vault, big.NewInt(10)); err != ErrInsufficientAllowance {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	if err := ledger.Approve(owner, spender, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, vault, big.NewInt(50)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := ledger.Allowance(owner, spender); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected remaining allowance: %s", got)
	}
	if got := ledger.BalanceOf(vault); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected vault balance: %s", got)
	}
	if got := ledger.BalanceOf(owner); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected owner balance: %s", got)
	}

	if err := ledger.TransferFrom(spender, owner, vault, big.NewInt(20)); err != ErrInsufficientAllowance {
		t.Fatalf("expected ErrInsufficientAllowance after spend, got %v", err)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ledger := NewLedger()
	from := addr(0x04)
	to := addr(0x05)

	if err := ledger.Transfer(from, to, big.NewInt(1)); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if err := ledger.Mint(from, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(from, to, big.NewInt(5)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := ledger.BalanceOf(from); got.Sign() != 0 {
		t.Fatalf("expected drained balance, got %s", got)
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	ledger := NewLedger()
	holder := addr(0x06)
	if err := ledger.Mint(holder, big.NewInt(42)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bal := ledger.BalanceOf(holder)
	bal.SetInt64(0)
	if got := ledger.BalanceOf(holder); got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("internal balance mutated: %s", got)
	}
}
