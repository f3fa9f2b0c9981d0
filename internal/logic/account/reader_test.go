package account

import (
	"context"
	"testing"

	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Counter uint32
}

var (
	program = types.PubkeyFromBase58("H7yPiw1m7mcnBFbQdLXnLDdN37vAP9csKXe9ckSTxUo8")
	addr    = types.PubkeyFromBase58("BwqrghZA2htAcqq8dzP1WDAhTXYTYWj7CHxF5j7TDBAe")
	schema  = codec.MustSchema("GreetingAccount", codec.U32("Counter"))
)

func TestReader_MissingVersusZeroed(t *testing.T) {
	mt := transport.NewMemoryTransport()
	r := NewReader(mt)
	ctx := context.Background()

	var g greeting
	err := r.Read(ctx, addr, schema, &g)
	require.ErrorIs(t, err, ErrAccountNotFound)
	assert.NotErrorIs(t, err, codec.ErrSchemaMismatch)

	mt.SetAccount(addr, transport.AccountInfo{Owner: program, Data: []byte{0, 0, 0, 0}})
	require.NoError(t, r.Read(ctx, addr, schema, &g))
	assert.Equal(t, uint32(0), g.Counter)

	mt.SetAccount(addr, transport.AccountInfo{Owner: program, Data: []byte{5, 0, 0, 0}})
	got, err := ReadAs[greeting](ctx, r, addr)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.Counter)

	rec, err := r.ReadRecord(ctx, addr, schema)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), rec["Counter"])
}

func TestReader_WidthMismatch(t *testing.T) {
	mt := transport.NewMemoryTransport()
	r := NewReader(mt)
	mt.SetAccount(addr, transport.AccountInfo{Owner: program, Data: []byte{1, 0, 0}})

	g := greeting{Counter: 77}
	err := r.Read(context.Background(), addr, schema, &g)
	require.ErrorIs(t, err, codec.ErrSchemaMismatch)
	assert.Equal(t, uint32(77), g.Counter)

	_, err = r.ReadRecord(context.Background(), addr, schema)
	assert.ErrorIs(t, err, codec.ErrSchemaMismatch)
}

func TestReader_ReadOwned(t *testing.T) {
	mt := transport.NewMemoryTransport()
	r := NewReader(mt)
	mt.SetAccount(addr, transport.AccountInfo{Owner: program, Data: []byte{2, 0, 0, 0}})

	var g greeting
	require.NoError(t, r.ReadOwned(context.Background(), addr, program, schema, &g))
	assert.Equal(t, uint32(2), g.Counter)

	err := r.ReadOwned(context.Background(), addr, types.Pubkey{}, schema, &g)
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestReader_CheckProgram(t *testing.T) {
	mt := transport.NewMemoryTransport()
	r := NewReader(mt)
	ctx := context.Background()

	assert.ErrorIs(t, r.CheckProgram(ctx, program), ErrProgramNotDeployed)

	mt.SetAccount(program, transport.AccountInfo{Lamports: 1})
	assert.ErrorIs(t, r.CheckProgram(ctx, program), ErrNotExecutable)

	mt.SetAccount(program, transport.AccountInfo{Lamports: 1, Executable: true})
	assert.NoError(t, r.CheckProgram(ctx, program))
}
