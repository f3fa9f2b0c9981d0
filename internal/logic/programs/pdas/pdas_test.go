package pdas

import (
	"context"
	"strings"
	"testing"
	"time"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/account"
	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/logic/pda"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/logic/programs/system"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	distinct = Programs{
		Ecom:    types.PubkeyFromBase58("9xvFLBLM8bhnh86heynttThpUbW4FC5nkErSnQxBrScZ"),
		Address: types.PubkeyFromBase58("3Ff2JNLJTjK7irW7U79HkvZLsakXuTJKG115cAE2hijz"),
		Profile: types.PubkeyFromBase58("H7yPiw1m7mcnBFbQdLXnLDdN37vAP9csKXe9ckSTxUo8"),
	}
	// devnet 上的部署：ecom 与 profile 共用同一个 program id
	shared = Programs{
		Ecom:    types.PubkeyFromBase58("9xvFLBLM8bhnh86heynttThpUbW4FC5nkErSnQxBrScZ"),
		Address: types.PubkeyFromBase58("3Ff2JNLJTjK7irW7U79HkvZLsakXuTJKG115cAE2hijz"),
		Profile: types.PubkeyFromBase58("9xvFLBLM8bhnh86heynttThpUbW4FC5nkErSnQxBrScZ"),
	}
)

func setup(t *testing.T, p Programs) (*transport.MemoryTransport, *Client, *keys.Keypair) {
	t.Helper()
	sim := programs.NewSimulator()
	sim.Register(consts.SystemProgram, system.Handler)
	sim.Register(p.Ecom, EcomHandler)
	sim.Register(p.Address, AddressHandler)
	sim.Register(p.Profile, ProfileHandler)

	mt := transport.NewMemoryTransport()
	mt.Executor = sim.Executor()
	mgr := txn.NewManager(mt, txn.WithConfirmOption(txn.ConfirmOption{Timeout: time.Second, PollInterval: time.Millisecond}))

	payer, err := keys.Generate()
	require.NoError(t, err)
	mt.Credit(payer.PublicKey(), consts.LamportsPerSOL)
	return mt, NewClient(p, mgr, account.NewReader(mt)), payer
}

func TestSchemas(t *testing.T) {
	assert.Equal(t, 512, AddressSchema.Width())
	assert.Equal(t, 524, ProfileSchema.Width())

	off, _, ok := ProfileSchema.Offset("year")
	require.True(t, ok)
	assert.Equal(t, 520, off)
}

func TestDerivation_AddressScenario(t *testing.T) {
	wallet := types.PubkeyFromBase58("9zxsbhMVzGhidwqDUi4HjMP4zTSupirTJiuz4hcZ8op1")

	a, err := distinct.AddressPDA(wallet)
	require.NoError(t, err)
	b, err := distinct.AddressPDA(wallet)
	require.NoError(t, err)
	assert.Equal(t, a.Address, b.Address)
	assert.Equal(t, a.Bump, b.Bump)
	assert.False(t, a.Address.IsOnCurve())
	assert.True(t, pda.Verify([][]byte{[]byte("address"), wallet.Bytes()}, a.Bump, distinct.Ecom, a.Address))

	p, err := distinct.ProfilePDA(wallet)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, p.Address)
}

func TestInstructionLayout(t *testing.T) {
	payer := types.PubkeyFromBase58("9zxsbhMVzGhidwqDUi4HjMP4zTSupirTJiuz4hcZ8op1")
	addr, err := distinct.AddressPDA(payer)
	require.NoError(t, err)
	profile, err := distinct.ProfilePDA(payer)
	require.NoError(t, err)

	initIx, err := distinct.Initialize(payer)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, initIx.Data())
	metas := initIx.Accounts()
	require.Len(t, metas, 6)
	assert.Equal(t, payer, metas[0].Pubkey)
	assert.True(t, metas[0].IsSigner)
	assert.Equal(t, profile.Address, metas[1].Pubkey)
	assert.Equal(t, addr.Address, metas[2].Pubkey)
	assert.Equal(t, distinct.Profile, metas[3].Pubkey)
	assert.Equal(t, distinct.Address, metas[4].Pubkey)
	assert.Equal(t, consts.SystemProgram, metas[5].Pubkey)

	upd, err := distinct.UpdateAddress(payer, "221B Baker Street")
	require.NoError(t, err)
	data := upd.Data()
	require.Len(t, data, 513)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, "221B Baker Street", codec.CString(data[1:]))

	info, err := distinct.UpdateUserInfo(payer, Profile{Name: "Ada", Date: 10, Month: 12, Year: 1815})
	require.NoError(t, err)
	data = info.Data()
	require.Len(t, data, 525)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, []byte{10, 0, 0, 0, 12, 0, 0, 0, 0x17, 0x07, 0, 0}, data[513:])

	_, err = distinct.UpdateAddress(payer, strings.Repeat("x", 513))
	assert.ErrorIs(t, err, codec.ErrBadRecordValue)
}

func TestClient_EndToEnd(t *testing.T) {
	for name, p := range map[string]Programs{"distinct": distinct, "shared": shared} {
		t.Run(name, func(t *testing.T) {
			_, c, payer := setup(t, p)
			ctx := context.Background()

			_, err := c.ReadAddress(ctx, payer.PublicKey())
			require.ErrorIs(t, err, account.ErrAccountNotFound)

			_, err = c.Initialize(ctx, payer)
			require.NoError(t, err)

			// 初始化后是全零记录，而不是 not found
			got, err := c.ReadAddress(ctx, payer.PublicKey())
			require.NoError(t, err)
			assert.Equal(t, "", got)

			_, err = c.UpdateAddress(ctx, payer, "221B Baker Street")
			require.NoError(t, err)
			got, err = c.ReadAddress(ctx, payer.PublicKey())
			require.NoError(t, err)
			assert.Equal(t, "221B Baker Street", got)

			want := Profile{Name: "Ada Lovelace", Date: 10, Month: 12, Year: 1815}
			_, err = c.UpdateProfile(ctx, payer, want)
			require.NoError(t, err)
			profile, err := c.ReadProfile(ctx, payer.PublicKey())
			require.NoError(t, err)
			assert.Equal(t, want, profile)

			// 重复初始化被拒绝
			_, err = c.Initialize(ctx, payer)
			assert.ErrorIs(t, err, txn.ErrRejected)
		})
	}
}

func TestClient_WrongPDA(t *testing.T) {
	mt, c, payer := setup(t, distinct)
	ctx := context.Background()
	_, err := c.Initialize(ctx, payer)
	require.NoError(t, err)

	other, err := keys.Generate()
	require.NoError(t, err)
	mt.Credit(other.PublicKey(), consts.LamportsPerSOL)

	// other 用 payer 的 PDA 调用：ecom 校验 PDA 失败
	ix, err := distinct.UpdateAddress(payer.PublicKey(), "spoofed")
	require.NoError(t, err)
	metas := ix.Accounts()
	metas[0].Pubkey = other.PublicKey()
	spoofed, err := instruction.New(distinct.Ecom, metas, ix.Data())
	require.NoError(t, err)
	tx, err := txn.NewTransaction(other.PublicKey(), spoofed)
	require.NoError(t, err)
	mgr := txn.NewManager(mt, txn.WithConfirmOption(txn.ConfirmOption{Timeout: time.Second, PollInterval: time.Millisecond}))
	_, err = mgr.SendAndConfirm(ctx, tx, other)
	assert.ErrorIs(t, err, txn.ErrRejected)

	got, err := c.ReadAddress(ctx, payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
