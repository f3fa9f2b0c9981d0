package pdas

import (
	"fmt"

	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/logic/pda"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/logic/programs/system"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

// EcomHandler ecom 合约的模拟实现：校验 PDA 后以 PDA 身份调用 System / Address / Profile 合约
func EcomHandler(inv programs.Invocation, st *programs.State) error {
	if len(inv.Data) == 0 {
		return programs.ErrUnhandled
	}
	switch {
	case inv.Data[0] == ixInitialize && len(inv.Data) == 1:
		return ecomInitialize(inv, st)
	case inv.Data[0] == ixUpdateAddress && len(inv.Data) == 1+AddressSchema.Width():
		return ecomForward(inv, st, AddressSeed)
	case inv.Data[0] == ixUpdateUserInfo && len(inv.Data) == 1+ProfileSchema.Width():
		return ecomForward(inv, st, ProfileSeed)
	default:
		return programs.ErrUnhandled
	}
}

func ecomInitialize(inv programs.Invocation, st *programs.State) error {
	metas := make([]instruction.AccountMeta, 6)
	for i := range metas {
		m, err := inv.Account(i)
		if err != nil {
			return err
		}
		metas[i] = m
	}
	payer, profilePDA, addressPDA, profileProgram, addressProgram := metas[0], metas[1], metas[2], metas[3], metas[4]
	if !payer.IsSigner {
		return fmt.Errorf("%w: payer must sign", programs.ErrProgram)
	}

	for _, c := range []struct {
		seed    string
		account types.Pubkey
		owner   types.Pubkey
		size    uint64
	}{
		{AddressSeed, addressPDA.Pubkey, addressProgram.Pubkey, uint64(AddressSchema.Width())},
		{ProfileSeed, profilePDA.Pubkey, profileProgram.Pubkey, uint64(ProfileSchema.Width())},
	} {
		if err := checkPDA(inv.ProgramID, c.seed, payer.Pubkey, c.account); err != nil {
			return err
		}
		ix, err := system.CreateAccount(payer.Pubkey, c.account, transport.RentExemptMinimum(c.size), c.size, c.owner)
		if err != nil {
			return err
		}
		if err := st.Invoke(programs.InvocationOf(ix)); err != nil {
			return err
		}
	}
	return nil
}

// ecomForward 把参数原样转发给 Address / Profile 合约，PDA 由 ecom 代签
func ecomForward(inv programs.Invocation, st *programs.State, seed string) error {
	payer, err := inv.Account(0)
	if err != nil {
		return err
	}
	target, err := inv.Account(1)
	if err != nil {
		return err
	}
	program, err := inv.Account(2)
	if err != nil {
		return err
	}
	if err := checkPDA(inv.ProgramID, seed, payer.Pubkey, target.Pubkey); err != nil {
		return err
	}
	return st.Invoke(programs.Invocation{
		ProgramID: program.Pubkey,
		Accounts:  []instruction.AccountMeta{instruction.Signer(target.Pubkey, true)},
		Data:      inv.Data[1:],
	})
}

func checkPDA(ecom types.Pubkey, seed string, wallet, got types.Pubkey) error {
	want, _, err := pda.FindProgramAddress([][]byte{[]byte(seed), wallet.Bytes()}, ecom)
	if err != nil {
		return fmt.Errorf("%w: %v", programs.ErrProgram, err)
	}
	if want != got {
		return fmt.Errorf("%w: incorrect %s PDA as input: got %s, want %s", programs.ErrProgram, seed, got, want)
	}
	return nil
}

// AddressHandler 地址合约：整块覆盖 AddressSchema
func AddressHandler(inv programs.Invocation, st *programs.State) error {
	return storeHandler(inv, st, AddressSchema)
}

// ProfileHandler 资料合约：整块覆盖 ProfileSchema
func ProfileHandler(inv programs.Invocation, st *programs.State) error {
	return storeHandler(inv, st, ProfileSchema)
}

func storeHandler(inv programs.Invocation, st *programs.State, schema *codec.Schema) error {
	if len(inv.Data) != schema.Width() {
		return programs.ErrUnhandled
	}
	meta, err := inv.Account(0)
	if err != nil {
		return err
	}
	acc, ok := st.Account(meta.Pubkey)
	if !ok || acc.Owner != inv.ProgramID {
		return fmt.Errorf("%w: account does not have the correct program id", programs.ErrProgram)
	}
	if !meta.IsSigner {
		return fmt.Errorf("%w: pda account should be a signer", programs.ErrProgram)
	}
	// 与合约一致：先按 schema 解析现有数据，宽度不符即失败
	if _, err := codec.DecodeRecord(schema, acc.Data); err != nil {
		return fmt.Errorf("%w: %v", programs.ErrProgram, err)
	}
	acc.Data = append([]byte(nil), inv.Data...)
	st.PutAccount(meta.Pubkey, acc)
	return nil
}
