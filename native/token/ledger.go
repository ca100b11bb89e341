package token

import (
	"math/big"
	"sync"
)

// Ledger is the external fungible token collaborator the staking engines pull
// deposits from and pay withdrawals to. Balances and allowances are keyed by
// 20-byte addresses. The staking engines treat every call as all-or-nothing:
// a failed transfer aborts the enclosing operation before any ledger write.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]map[[20]byte]*big.Int
}

// NewLedger constructs an empty token ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

// Mint credits freshly issued tokens to the supplied address.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
	return nil
}

// BalanceOf returns the current balance for the address. The returned value
// is a copy the caller may mutate freely.
func (l *Ledger) BalanceOf(addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Approve grants the spender permission to move up to amount of the owner's
// tokens. A later approval overwrites an earlier one.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	granted, ok := l.allowances[owner]
	if !ok {
		granted = make(map[[20]byte]*big.Int)
		l.allowances[owner] = granted
	}
	granted[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance reports how much the spender may still move on the owner's
// behalf.
func (l *Ledger) Allowance(owner, spender [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if granted, ok := l.allowances[owner]; ok {
		if amt, ok := granted[spender]; ok {
			return new(big.Int).Set(amt)
		}
	}
	return big.NewInt(0)
}

// Transfer moves tokens between two addresses.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves tokens from owner to recipient on behalf of spender,
// consuming the spender's allowance. It fails with ErrInsufficientAllowance
// when the owner has not granted enough.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	granted, ok := l.allowances[owner]
	if !ok {
		return ErrInsufficientAllowance
	}
	remaining, ok := granted[spender]
	if !ok || remaining.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(owner, to, amount); err != nil {
		return err
	}
	granted[spender] = new(big.Int).Sub(remaining, amount)
	return nil
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(addr [20]byte, amount *big.Int) {
	if bal, ok := l.balances[addr]; ok {
		bal.Add(bal, amount)
		return
	}
	l.balances[addr] = new(big.Int).Set(amount)
}
