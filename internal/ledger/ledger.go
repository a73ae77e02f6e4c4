package ledger

import (
	"context"
	"errors"
)

var (
	// ErrUnknownAccount is returned when an account has never been funded
	// or created.
	ErrUnknownAccount = errors.New("ledger: unknown account")

	// ErrInsufficientFunds is returned when a transfer exceeds the source
	// account's balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// Ledger moves funds between accounts and reads balances. Amounts are whole
// token units of the named asset.
type Ledger interface {
	// Lock transfers amount of asset from fromAccount into the escrow
	// account and returns a transaction ID.
	Lock(ctx context.Context, fromAccount, asset, escrowAccount string, amount int64) (string, error)

	// Release transfers amount of asset from the escrow account to
	// toAccount and returns a transaction ID.
	Release(ctx context.Context, escrowAccount, asset, toAccount string, amount int64) (string, error)

	// BalanceOf returns the balance of asset held by account.
	BalanceOf(ctx context.Context, account, asset string) (int64, error)
}
