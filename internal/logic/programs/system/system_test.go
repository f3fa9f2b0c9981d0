package system

import (
	"context"
	"testing"
	"time"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = types.PubkeyFromBase58("H7yPiw1m7mcnBFbQdLXnLDdN37vAP9csKXe9ckSTxUo8")

func setup(t *testing.T) (*transport.MemoryTransport, *txn.Manager, *keys.Keypair) {
	t.Helper()
	sim := programs.NewSimulator()
	sim.Register(consts.SystemProgram, Handler)

	mt := transport.NewMemoryTransport()
	mt.Executor = sim.Executor()
	mgr := txn.NewManager(mt, txn.WithConfirmOption(txn.ConfirmOption{Timeout: time.Second, PollInterval: time.Millisecond}))

	payer, err := keys.Generate()
	require.NoError(t, err)
	mt.Credit(payer.PublicKey(), consts.LamportsPerSOL)
	return mt, mgr, payer
}

func TestCreateAccount_Encoding(t *testing.T) {
	from, to := types.Pubkey{1}, types.Pubkey{2}
	ix, err := CreateAccount(from, to, 890880, 4, owner)
	require.NoError(t, err)

	assert.Equal(t, consts.SystemProgram, ix.ProgramID())
	data := ix.Data()
	require.Len(t, data, 4+8+8+32)
	assert.Equal(t, []byte{0, 0, 0, 0}, data[:4])
	assert.Equal(t, []byte{0x00, 0x98, 0x0d, 0, 0, 0, 0, 0}, data[4:12])
	assert.Equal(t, []byte{4, 0, 0, 0, 0, 0, 0, 0}, data[12:20])
	assert.Equal(t, owner[:], data[20:])

	metas := ix.Accounts()
	require.Len(t, metas, 2)
	assert.True(t, metas[0].IsSigner && metas[0].IsWritable)
	assert.True(t, metas[1].IsSigner && metas[1].IsWritable)
}

func TestTransfer_Encoding(t *testing.T) {
	ix, err := Transfer(types.Pubkey{1}, types.Pubkey{2}, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0, 0x00, 0xca, 0x9a, 0x3b, 0, 0, 0, 0}, ix.Data())
	assert.False(t, ix.Accounts()[1].IsSigner)
}

func TestTransfer_Simulated(t *testing.T) {
	mt, mgr, payer := setup(t)
	ctx := context.Background()
	to := types.PubkeyFromBase58("9zxsbhMVzGhidwqDUi4HjMP4zTSupirTJiuz4hcZ8op1")

	ix, err := Transfer(payer.PublicKey(), to, 1000)
	require.NoError(t, err)
	tx, err := txn.NewTransaction(payer.PublicKey(), ix)
	require.NoError(t, err)
	_, err = mgr.SendAndConfirm(ctx, tx, payer)
	require.NoError(t, err)

	bal, err := mt.GetBalance(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal)
	bal, err = mt.GetBalance(ctx, payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, consts.LamportsPerSOL-1000-consts.LamportsPerSignature, bal)

	// 余额不足：整笔拒绝，只扣手续费
	ix, err = Transfer(payer.PublicKey(), to, 10*consts.LamportsPerSOL)
	require.NoError(t, err)
	tx, err = txn.NewTransaction(payer.PublicKey(), ix)
	require.NoError(t, err)
	_, err = mgr.SendAndConfirm(ctx, tx, payer)
	require.ErrorIs(t, err, txn.ErrRejected)
	bal, err = mt.GetBalance(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal)
}

func TestCreateAccount_Simulated(t *testing.T) {
	mt, mgr, payer := setup(t)
	ctx := context.Background()
	newAcc, err := keys.Generate()
	require.NoError(t, err)

	ix, err := CreateAccount(payer.PublicKey(), newAcc.PublicKey(), transport.RentExemptMinimum(4), 4, owner)
	require.NoError(t, err)
	tx, err := txn.NewTransaction(payer.PublicKey(), ix)
	require.NoError(t, err)

	// 新账户也必须签名
	assert.ErrorIs(t, mgr.Sign(ctx, tx, payer), txn.ErrMissingSigner)

	_, err = mgr.SendAndConfirm(ctx, tx, payer, newAcc)
	require.NoError(t, err)

	info, err := mt.GetAccount(ctx, newAcc.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, []byte{0, 0, 0, 0}, info.Data)
	assert.Equal(t, transport.RentExemptMinimum(4), info.Lamports)

	// 同一地址不能重复创建
	tx, err = txn.NewTransaction(payer.PublicKey(), ix)
	require.NoError(t, err)
	_, err = mgr.SendAndConfirm(ctx, tx, payer, newAcc)
	assert.ErrorIs(t, err, txn.ErrRejected)
}
