package amm

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/credmarket/internal/ledger"
)

type guardKey struct{}

// enterPool marks ctx as running an operation on asset. A ctx that already carries
// the mark is a re-entrant call and is rejected.
func enterPool(ctx context.Context, asset string) (context.Context, error) {
	held, _ := ctx.Value(guardKey{}).(map[string]struct{})
	if _, ok := held[asset]; ok {
		return nil, fmt.Errorf("%w: pool %s", ErrReentrant, asset)
	}
	next := make(map[string]struct{}, len(held)+1)
	for k := range held {
		next[k] = struct{}{}
	}
	next[asset] = struct{}{}
	return context.WithValue(ctx, guardKey{}, next), nil
}

type transfer struct {
	from, to, denom string
	amount          sdkmath.Int
}

// settlement executes ledger transfers in order and can undo the completed ones.
type settlement struct {
	ledger ledger.Ledger
	done   []transfer
}

func (s *settlement) move(ctx context.Context, from, to, denom string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		return nil
	}
	if err := s.ledger.Transfer(ctx, from, to, denom, amount); err != nil {
		return err
	}
	s.done = append(s.done, transfer{from: from, to: to, denom: denom, amount: amount})
	return nil
}

// rollback reverses every completed transfer, newest first.
func (s *settlement) rollback(ctx context.Context) error {
	var errs []error
	for i := len(s.done) - 1; i >= 0; i-- {
		t := s.done[i]
		if err := s.ledger.Transfer(ctx, t.to, t.from, t.denom, t.amount); err != nil {
			errs = append(errs, fmt.Errorf("revert %s %s %s->%s: %w", t.amount, t.denom, t.from, t.to, err))
		}
	}
	s.done = nil
	return errors.Join(errs...)
}
