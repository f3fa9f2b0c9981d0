package system

import (
	"fmt"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

// System Program 指令序号（u32 小端）
const (
	tagCreateAccount uint32 = 0
	tagTransfer      uint32 = 2
)

type header struct {
	Tag uint32
}

type createAccountArgs struct {
	Lamports uint64
	Space    uint64
	Owner    [32]byte
}

type transferArgs struct {
	Lamports uint64
}

// CreateAccount from 出资创建 newAccount，from 与 newAccount 都必须签名
func CreateAccount(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) (*instruction.Instruction, error) {
	data, err := instruction.DataWithTag32(tagCreateAccount, createAccountArgs{Lamports: lamports, Space: space, Owner: owner})
	if err != nil {
		return nil, err
	}
	return instruction.New(consts.SystemProgram, []instruction.AccountMeta{
		instruction.Signer(from, true),
		instruction.Signer(newAccount, true),
	}, data)
}

func Transfer(from, to types.Pubkey, lamports uint64) (*instruction.Instruction, error) {
	data, err := instruction.DataWithTag32(tagTransfer, transferArgs{Lamports: lamports})
	if err != nil {
		return nil, err
	}
	return instruction.New(consts.SystemProgram, []instruction.AccountMeta{
		instruction.Signer(from, true),
		instruction.Writable(to),
	}, data)
}

// Handler System Program 的模拟实现，只支持 CreateAccount 与 Transfer
func Handler(inv programs.Invocation, st *programs.State) error {
	if len(inv.Data) < 4 {
		return fmt.Errorf("%w: system instruction too short", programs.ErrProgram)
	}
	h, err := codec.DecodeAs[header](inv.Data[:4])
	if err != nil {
		return err
	}

	switch h.Tag {
	case tagCreateAccount:
		args, err := codec.DecodeAs[createAccountArgs](inv.Data[4:])
		if err != nil {
			return fmt.Errorf("%w: create account args: %v", programs.ErrProgram, err)
		}
		return createAccount(inv, st, args)
	case tagTransfer:
		args, err := codec.DecodeAs[transferArgs](inv.Data[4:])
		if err != nil {
			return fmt.Errorf("%w: transfer args: %v", programs.ErrProgram, err)
		}
		return transfer(inv, st, args.Lamports)
	default:
		return fmt.Errorf("%w: unsupported system instruction %d", programs.ErrProgram, h.Tag)
	}
}

func createAccount(inv programs.Invocation, st *programs.State, args createAccountArgs) error {
	from, err := inv.Account(0)
	if err != nil {
		return err
	}
	to, err := inv.Account(1)
	if err != nil {
		return err
	}
	if !from.IsSigner || !to.IsSigner {
		return fmt.Errorf("%w: create account requires both funder and new account to sign", programs.ErrProgram)
	}
	if existing, ok := st.Account(to.Pubkey); ok && (existing.Lamports > 0 || len(existing.Data) > 0) {
		return fmt.Errorf("%w: account %s already in use", programs.ErrProgram, to.Pubkey)
	}

	funder, ok := st.Account(from.Pubkey)
	if !ok || funder.Lamports < args.Lamports {
		return fmt.Errorf("%w: insufficient lamports in %s", programs.ErrProgram, from.Pubkey)
	}
	funder.Lamports -= args.Lamports
	st.PutAccount(from.Pubkey, funder)
	st.PutAccount(to.Pubkey, transport.AccountInfo{
		Lamports: args.Lamports,
		Owner:    types.Pubkey(args.Owner),
		Data:     make([]byte, args.Space),
	})
	return nil
}

func transfer(inv programs.Invocation, st *programs.State, lamports uint64) error {
	from, err := inv.Account(0)
	if err != nil {
		return err
	}
	to, err := inv.Account(1)
	if err != nil {
		return err
	}
	if !from.IsSigner {
		return fmt.Errorf("%w: transfer source must sign", programs.ErrProgram)
	}

	src, ok := st.Account(from.Pubkey)
	if !ok || src.Lamports < lamports {
		return fmt.Errorf("%w: insufficient lamports in %s", programs.ErrProgram, from.Pubkey)
	}
	src.Lamports -= lamports
	st.PutAccount(from.Pubkey, src)

	dst, _ := st.Account(to.Pubkey)
	dst.Lamports += lamports
	st.PutAccount(to.Pubkey, dst)
	return nil
}
