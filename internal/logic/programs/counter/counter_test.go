package counter

import (
	"context"
	"testing"
	"time"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/account"
	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/logic/programs/system"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*transport.MemoryTransport, *Client, *keys.Keypair) {
	t.Helper()
	sim := programs.NewSimulator()
	sim.Register(consts.SystemProgram, system.Handler)
	sim.Register(consts.CounterProgram, Handler)

	mt := transport.NewMemoryTransport()
	mt.Executor = sim.Executor()
	mgr := txn.NewManager(mt, txn.WithConfirmOption(txn.ConfirmOption{Timeout: time.Second, PollInterval: time.Millisecond}))

	payer, err := keys.Generate()
	require.NoError(t, err)
	mt.Credit(payer.PublicKey(), consts.LamportsPerSOL)
	return mt, NewClient(consts.CounterProgram, mt, mgr, account.NewReader(mt)), payer
}

func TestGreetingSchema(t *testing.T) {
	assert.Equal(t, uint64(4), AccountSize)

	data, err := codec.Encode(GreetingSchema, GreetingAccount{Counter: 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
}

func TestInstructionEncoding(t *testing.T) {
	acc := types.PubkeyFromBase58("7X8R5iZeQe85uSBUvXK7aCASV7dXkPBbpFtYAcGapGZu")

	inc, err := IncrementInstruction(consts.CounterProgram, acc)
	require.NoError(t, err)
	assert.Empty(t, inc.Data())
	require.Len(t, inc.Accounts(), 1)
	assert.True(t, inc.Accounts()[0].IsWritable)
	assert.False(t, inc.Accounts()[0].IsSigner)

	add, err := AddInstruction(consts.CounterProgram, acc, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 7, 0, 0, 0}, add.Data())
}

func TestCounter_EndToEnd(t *testing.T) {
	_, c, payer := setup(t)
	ctx := context.Background()

	dataAccount, conf, err := c.CreateDataAccount(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, txn.OutcomeConfirmed, conf.Outcome)

	g, err := c.Read(ctx, dataAccount)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), g.Counter)

	_, err = c.Increment(ctx, payer, dataAccount)
	require.NoError(t, err)
	_, err = c.Increment(ctx, payer, dataAccount)
	require.NoError(t, err)
	_, err = c.Add(ctx, payer, dataAccount, 7)
	require.NoError(t, err)

	g, err = c.Read(ctx, dataAccount)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), g.Counter)
}

func TestCounter_Errors(t *testing.T) {
	mt, c, payer := setup(t)
	ctx := context.Background()
	missing := types.PubkeyFromBase58("7X8R5iZeQe85uSBUvXK7aCASV7dXkPBbpFtYAcGapGZu")

	_, err := c.Read(ctx, missing)
	assert.ErrorIs(t, err, account.ErrAccountNotFound)

	// 账户不归属计数器程序：读取与调用都失败
	mt.SetAccount(missing, transport.AccountInfo{Lamports: 1, Owner: consts.SystemProgram, Data: []byte{0, 0, 0, 0}})
	_, err = c.Read(ctx, missing)
	assert.ErrorIs(t, err, account.ErrOwnerMismatch)

	_, err = c.Increment(ctx, payer, missing)
	assert.ErrorIs(t, err, txn.ErrRejected)

	// 宽度不对的账户
	mt.SetAccount(missing, transport.AccountInfo{Lamports: 1, Owner: consts.CounterProgram, Data: []byte{0, 0}})
	_, err = c.Read(ctx, missing)
	assert.ErrorIs(t, err, codec.ErrSchemaMismatch)
}
