package service

import (
	"context"
	"sync"

	txcontext "tenantguard/pkg/platform/tx"
)

// StoreTx is the transactional boundary for directory mutations.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// lockTx stands in for a database transaction when the stores are in memory:
// mutations run one at a time under the same deadline rule.
type lockTx struct {
	mu sync.Mutex
}

func (t *lockTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel, err := txcontext.Bound(ctx, 0)
	defer cancel()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, _, err := txcontext.Bound(ctx, 0); err != nil {
		return err
	}
	return fn(ctx)
}
