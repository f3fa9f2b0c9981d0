package programs

import (
	"context"
	"errors"
	"testing"
	"time"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	storeProgram = types.PubkeyFromBase58("3Ff2JNLJTjK7irW7U79HkvZLsakXuTJKG115cAE2hijz")
	storeAccount = types.PubkeyFromBase58("7X8R5iZeQe85uSBUvXK7aCASV7dXkPBbpFtYAcGapGZu")
)

// storeHandler 把 data 写入第一个账户；data 以 0xff 开头时失败
func storeHandler(inv Invocation, st *State) error {
	if len(inv.Data) == 0 {
		return ErrUnhandled
	}
	if inv.Data[0] == 0xff {
		return errors.Join(ErrProgram, errors.New("refused"))
	}
	meta, err := inv.Account(0)
	if err != nil {
		return err
	}
	acc, _ := st.Account(meta.Pubkey)
	acc.Owner = inv.ProgramID
	acc.Data = inv.Data
	st.PutAccount(meta.Pubkey, acc)
	return nil
}

// emptyHandler 只处理空数据
func emptyHandler(inv Invocation, st *State) error {
	if len(inv.Data) != 0 {
		return ErrUnhandled
	}
	meta, err := inv.Account(0)
	if err != nil {
		return err
	}
	acc, _ := st.Account(meta.Pubkey)
	acc.Lamports++
	st.PutAccount(meta.Pubkey, acc)
	return nil
}

func setup(t *testing.T) (*transport.MemoryTransport, *txn.Manager, *keys.Keypair) {
	t.Helper()
	sim := NewSimulator()
	sim.Register(storeProgram, storeHandler)
	sim.Register(storeProgram, emptyHandler)

	mt := transport.NewMemoryTransport()
	mt.Executor = sim.Executor()
	mgr := txn.NewManager(mt, txn.WithConfirmOption(txn.ConfirmOption{Timeout: time.Second, PollInterval: time.Millisecond}))

	payer, err := keys.Generate()
	require.NoError(t, err)
	mt.Credit(payer.PublicKey(), consts.LamportsPerSOL)
	return mt, mgr, payer
}

func send(t *testing.T, mgr *txn.Manager, payer *keys.Keypair, ixs ...*instruction.Instruction) error {
	t.Helper()
	tx, err := txn.NewTransaction(payer.PublicKey(), ixs...)
	require.NoError(t, err)
	_, err = mgr.SendAndConfirm(context.Background(), tx, payer)
	return err
}

func storeIx(program types.Pubkey, data ...byte) *instruction.Instruction {
	return instruction.MustNew(program, []instruction.AccountMeta{instruction.Writable(storeAccount)}, data)
}

func TestSimulator_HandlerChain(t *testing.T) {
	mt, mgr, payer := setup(t)
	ctx := context.Background()

	require.NoError(t, send(t, mgr, payer, storeIx(storeProgram, 1, 2, 3)))
	info, err := mt.GetAccount(ctx, storeAccount)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)
	assert.Equal(t, storeProgram, info.Owner)

	// 空数据落到第二个 handler
	require.NoError(t, send(t, mgr, payer, storeIx(storeProgram)))
	info, err = mt.GetAccount(ctx, storeAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Lamports)
}

func TestSimulator_AtomicAndFees(t *testing.T) {
	mt, mgr, payer := setup(t)
	ctx := context.Background()

	// 第二条指令失败：第一条的写入也被丢弃，手续费照扣
	err := send(t, mgr, payer, storeIx(storeProgram, 1), storeIx(storeProgram, 0xff))
	require.ErrorIs(t, err, txn.ErrRejected)

	_, err = mt.GetAccount(ctx, storeAccount)
	assert.ErrorIs(t, err, transport.ErrNotFound)
	bal, err := mt.GetBalance(ctx, payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, consts.LamportsPerSOL-consts.LamportsPerSignature, bal)
}

func TestSimulator_UnknownProgram(t *testing.T) {
	_, mgr, payer := setup(t)
	err := send(t, mgr, payer, storeIx(consts.CounterProgram, 1))
	assert.ErrorIs(t, err, txn.ErrRejected)
}
