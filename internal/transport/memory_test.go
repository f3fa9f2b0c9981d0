package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransport_Accounts(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	_, err := m.GetAccount(ctx, testAddr)
	assert.ErrorIs(t, err, ErrNotFound)

	m.SetAccount(testAddr, AccountInfo{Lamports: 10, Owner: testOwner, Data: []byte{0, 0, 0, 0}})
	info, err := m.GetAccount(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, info.Data)

	info.Data[0] = 9
	again, err := m.GetAccount(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, byte(0), again.Data[0], "returned data must be a copy")

	sig, err := m.RequestAirdrop(ctx, testAddr, 5)
	require.NoError(t, err)
	bal, err := m.GetBalance(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), bal)

	st, err := m.GetTransactionStatus(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, TxFinalized, st.Status)
}

func TestMemoryTransport_Markers(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	a, err := m.GetRecentSequenceMarker(ctx)
	require.NoError(t, err)
	b, err := m.GetRecentSequenceMarker(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.Blockhash, b.Blockhash)
	assert.Equal(t, uint64(1+defaultMarkerValidity), a.LastValidBlockHeight)

	m.AdvanceBlocks(10)
	h, err := m.GetBlockHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), h)

	funding, err := m.GetMinimumFundingForSize(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(890880), funding)
}

func TestMemoryTransport_Failures(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	m.SendErr = errors.New("connection reset")
	_, err := m.SendTransaction(ctx, []byte{1})
	assert.ErrorIs(t, err, ErrTransport)
	m.SendErr = nil

	_, err = m.SendTransaction(ctx, []byte{1})
	assert.ErrorIs(t, err, ErrTransport, "malformed bytes")

	m.StatusErrs = 1
	_, err = m.GetTransactionStatus(ctx, testSig)
	assert.ErrorIs(t, err, ErrTransport)
	st, err := m.GetTransactionStatus(ctx, testSig)
	require.NoError(t, err)
	assert.Equal(t, TxPending, st.Status)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.GetBlockHeight(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
