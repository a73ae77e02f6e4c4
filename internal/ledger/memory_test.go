package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_MintAndBalance(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	l.Mint("treasury", "KNOW", 10000)

	bal, err := l.BalanceOf(ctx, "treasury", "KNOW")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), bal)

	bal, err = l.BalanceOf(ctx, "nobody", "KNOW")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestMemory_ReleaseMovesFunds(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	l.Mint("escrow", "KNOW", 100)

	txID, err := l.Release(ctx, "escrow", "KNOW", "analyst", 40)
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	escrowBal, err := l.BalanceOf(ctx, "escrow", "KNOW")
	require.NoError(t, err)
	assert.Equal(t, int64(60), escrowBal)

	analystBal, err := l.BalanceOf(ctx, "analyst", "KNOW")
	require.NoError(t, err)
	assert.Equal(t, int64(40), analystBal)
}

func TestMemory_ReleaseErrors(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	l.Mint("escrow", "KNOW", 10)

	tests := []struct {
		name    string
		from    string
		amount  int64
		wantErr error
	}{
		{"unknown account", "ghost", 5, ErrUnknownAccount},
		{"insufficient funds", "escrow", 11, ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Release(ctx, tt.from, "KNOW", "analyst", tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := l.Release(ctx, "escrow", "KNOW", "analyst", 0)
	assert.Error(t, err)
	_, err = l.Release(ctx, "escrow", "KNOW", "analyst", -3)
	assert.Error(t, err)
}

func TestMemory_TransactionIDsAreUnique(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	l.Mint("escrow", "KNOW", 100)

	first, err := l.Release(ctx, "escrow", "KNOW", "a", 1)
	require.NoError(t, err)
	second, err := l.Release(ctx, "escrow", "KNOW", "b", 1)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestMemory_LockFundsEscrow(t *testing.T) {
	m := NewMemory()
	m.Mint("treasury", "USDC", 1000)

	txID, err := m.Lock(context.Background(), "treasury", "USDC", "escrow", 600)
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	treasury, err := m.BalanceOf(context.Background(), "treasury", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(400), treasury)

	escrow, err := m.BalanceOf(context.Background(), "escrow", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(600), escrow)

	_, err = m.Lock(context.Background(), "treasury", "USDC", "escrow", 500)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}
