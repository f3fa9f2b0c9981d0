package funding

import (
	"context"
	"errors"
	"testing"
	"time"

	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payer = types.PubkeyFromBase58("9zxsbhMVzGhidwqDUi4HjMP4zTSupirTJiuz4hcZ8op1")

func newFunder(mt *transport.MemoryTransport, opt Option) *Funder {
	mgr := txn.NewManager(mt, txn.WithConfirmOption(txn.ConfirmOption{Timeout: time.Second, PollInterval: time.Millisecond}))
	return NewFunder(mt, mgr, opt)
}

func TestEnsureFunded_Airdrops(t *testing.T) {
	mt := transport.NewMemoryTransport()
	f := newFunder(mt, Option{})
	ctx := context.Background()

	required, err := f.Required(ctx)
	require.NoError(t, err)
	// 与脚本一致：rent(1000) + 5000 * 100
	assert.Equal(t, transport.RentExemptMinimum(1000)+500_000, required)

	mt.Credit(payer, 100)
	res, err := f.EnsureFunded(ctx, payer)
	require.NoError(t, err)
	assert.False(t, res.Airdrop.IsZero())
	assert.Equal(t, required-100, res.Requested)
	assert.Equal(t, required, res.Balance)

	// 第二次不再申请
	res, err = f.EnsureFunded(ctx, payer)
	require.NoError(t, err)
	assert.True(t, res.Airdrop.IsZero())
}

func TestEnsureFunded_MinimumAirdrop(t *testing.T) {
	mt := transport.NewMemoryTransport()
	f := newFunder(mt, Option{MinAccountSize: 4, SignatureBudget: 1, AirdropLamports: 2_000_000_000})

	res, err := f.EnsureFunded(context.Background(), payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), res.Requested)
	assert.Equal(t, uint64(2_000_000_000), res.Balance)
}

func TestEnsureFunded_TransportError(t *testing.T) {
	mt := transport.NewMemoryTransport()
	f := newFunder(mt, Option{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.EnsureFunded(ctx, payer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrTransport))
}
