package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Ledger used for tests and self-contained
// deployments. It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // account -> asset -> balance
	nextTx   uint64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]map[string]int64),
	}
}

// Mint credits amount of asset to account out of thin air. Used at setup to
// fund the treasury and provision agent accounts.
func (m *Memory) Mint(account, asset string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(account, asset, amount)
}

// Transfer moves amount of asset between two accounts.
func (m *Memory) Transfer(ctx context.Context, from, asset, to string, amount int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", fmt.Errorf("ledger: transfer amount must be positive, got %d", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	assets, ok := m.balances[from]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, from)
	}
	if assets[asset] < amount {
		return "", fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientFunds, from, assets[asset], asset, amount)
	}

	assets[asset] -= amount
	m.credit(to, asset, amount)

	m.nextTx++
	return fmt.Sprintf("tx-%d", m.nextTx), nil
}

// Lock transfers amount of asset into the escrow account.
func (m *Memory) Lock(ctx context.Context, fromAccount, asset, escrowAccount string, amount int64) (string, error) {
	return m.Transfer(ctx, fromAccount, asset, escrowAccount, amount)
}

// Release transfers amount of asset out of the escrow account.
func (m *Memory) Release(ctx context.Context, escrowAccount, asset, toAccount string, amount int64) (string, error) {
	return m.Transfer(ctx, escrowAccount, asset, toAccount, amount)
}

// BalanceOf returns the balance of asset held by account. Unknown accounts
// hold zero.
func (m *Memory) BalanceOf(ctx context.Context, account, asset string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account][asset], nil
}

// credit assumes the lock is held.
func (m *Memory) credit(account, asset string, amount int64) {
	assets, ok := m.balances[account]
	if !ok {
		assets = make(map[string]int64)
		m.balances[account] = assets
	}
	assets[asset] += amount
}
