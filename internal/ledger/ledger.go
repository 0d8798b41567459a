package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidAccount      = errors.New("ledger: account id is empty")
	ErrInvalidAmount       = errors.New("ledger: amount must not be negative")
)

// Ledger moves balances of the credit and stable assets between accounts. The
// market engine requests transfers but never stores balances itself.
type Ledger interface {
	Transfer(ctx context.Context, from, to, denom string, amount sdkmath.Int) error
	Balance(ctx context.Context, account, denom string) (sdkmath.Int, error)
}

// TransferHook runs after a successful in-memory transfer. A non-nil error
// reverts the transfer.
type TransferHook func(ctx context.Context, from, to string, coin sdk.Coin) error

// MemoryLedger is an in-process Ledger backed by sdk.Coins per account.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]sdk.Coins
	hook     TransferHook
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]sdk.Coins)}
}

// SetTransferHook installs a callback invoked after each transfer.
func (l *MemoryLedger) SetTransferHook(hook TransferHook) {
	l.mu.Lock()
	l.hook = hook
	l.mu.Unlock()
}

// Mint credits an account out of thin air. Used to fund accounts at startup and in tests.
func (l *MemoryLedger) Mint(account, denom string, amount sdkmath.Int) error {
	coin, err := newCoin(account, denom, amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balances[account].Add(coin)
	return nil
}

// Transfer implements Ledger.
func (l *MemoryLedger) Transfer(ctx context.Context, from, to, denom string, amount sdkmath.Int) error {
	if to == "" {
		return ErrInvalidAccount
	}
	coin, err := newCoin(from, denom, amount)
	if err != nil {
		return err
	}
	if coin.IsZero() {
		return nil
	}

	l.mu.Lock()
	remaining, hasNeg := l.balances[from].SafeSub(coin)
	if hasNeg {
		have := l.balances[from].AmountOf(denom)
		l.mu.Unlock()
		return fmt.Errorf("%w: %s has %s%s, needs %s", ErrInsufficientBalance, from, have, denom, coin)
	}
	l.balances[from] = remaining
	l.balances[to] = l.balances[to].Add(coin)
	hook := l.hook
	l.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, from, to, coin); err != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		reverted, hasNeg := l.balances[to].SafeSub(coin)
		if hasNeg {
			return errors.Join(err, fmt.Errorf("%w: cannot revert %s from %s", ErrInsufficientBalance, coin, to))
		}
		l.balances[to] = reverted
		l.balances[from] = l.balances[from].Add(coin)
		return err
	}
	return nil
}

// Balance implements Ledger.
func (l *MemoryLedger) Balance(_ context.Context, account, denom string) (sdkmath.Int, error) {
	if account == "" {
		return sdkmath.Int{}, ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account].AmountOf(denom), nil
}


func newCoin(account, denom string, amount sdkmath.Int) (sdk.Coin, error) {
	if account == "" {
		return sdk.Coin{}, ErrInvalidAccount
	}
	if err := sdk.ValidateDenom(denom); err != nil {
		return sdk.Coin{}, fmt.Errorf("ledger: %w", err)
	}
	if amount.IsNil() || amount.IsNegative() {
		return sdk.Coin{}, ErrInvalidAmount
	}
	return sdk.NewCoin(denom, amount), nil
}
