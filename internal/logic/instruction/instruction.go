package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"

	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/pkg/types"

	"github.com/gagliardetto/solana-go"
)

var ErrInvalidInstruction = errors.New("instruction: invalid instruction")

// AccountMeta 指令引用的账户，顺序即程序侧解析账户的位置
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

func Signer(pk types.Pubkey, writable bool) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: true, IsWritable: writable}
}

func Writable(pk types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsWritable: true}
}

func Readonly(pk types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk}
}

// Instruction 构造后不可变：所有输入和访问器返回值都是拷贝
type Instruction struct {
	programID types.Pubkey
	accounts  []AccountMeta
	data      []byte
}

// 单笔交易的网络包上限，单条指令不可能超过
const maxPacketSize = 1232

// New 构造指令。只校验必填项是否合法，不解释 payload；全零 programID 即 System Program
func New(programID types.Pubkey, accounts []AccountMeta, data []byte) (*Instruction, error) {
	if len(data) > maxPacketSize {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds packet size %d", ErrInvalidInstruction, len(data), maxPacketSize)
	}
	if len(accounts) > 255 {
		return nil, fmt.Errorf("%w: %d accounts, max 255", ErrInvalidInstruction, len(accounts))
	}
	return &Instruction{
		programID: programID,
		accounts:  append([]AccountMeta(nil), accounts...),
		data:      append([]byte(nil), data...),
	}, nil
}

// MustNew 仅用于参数已知合法的内部构造
func MustNew(programID types.Pubkey, accounts []AccountMeta, data []byte) *Instruction {
	ix, err := New(programID, accounts, data)
	if err != nil {
		panic(err)
	}
	return ix
}

func (ix *Instruction) ProgramID() types.Pubkey {
	return ix.programID
}

func (ix *Instruction) Accounts() []AccountMeta {
	return append([]AccountMeta(nil), ix.accounts...)
}

func (ix *Instruction) Data() []byte {
	return append([]byte(nil), ix.data...)
}

// ToSolana 适配为 solana-go 的 Instruction 接口，用于消息编译
func (ix *Instruction) ToSolana() solana.Instruction {
	metas := make([]*solana.AccountMeta, 0, len(ix.accounts))
	for _, a := range ix.accounts {
		metas = append(metas, &solana.AccountMeta{
			PublicKey:  a.Pubkey.ToSolana(),
			IsWritable: a.IsWritable,
			IsSigner:   a.IsSigner,
		})
	}
	return &solanaInstruction{
		programID: ix.programID.ToSolana(),
		accounts:  metas,
		data:      ix.Data(),
	}
}

type solanaInstruction struct {
	programID solana.PublicKey
	accounts  []*solana.AccountMeta
	data      []byte
}

func (i *solanaInstruction) ProgramID() solana.PublicKey     { return i.programID }
func (i *solanaInstruction) Accounts() []*solana.AccountMeta { return i.accounts }
func (i *solanaInstruction) Data() ([]byte, error)           { return i.data, nil }

// EncodeData 单字节判别符 + codec 编码的参数；args 为 nil 时只有判别符
func EncodeData(discriminant uint8, args any) ([]byte, error) {
	if args == nil {
		return []byte{discriminant}, nil
	}
	body, err := codec.EncodeValue(args)
	if err != nil {
		return nil, fmt.Errorf("encode args for discriminant %d: %w", discriminant, err)
	}
	return append([]byte{discriminant}, body...), nil
}

// EncodeDataWithSchema 同 EncodeData，参数按显式 schema 编码
func EncodeDataWithSchema(discriminant uint8, schema *codec.Schema, args any) ([]byte, error) {
	body, err := codec.Encode(schema, args)
	if err != nil {
		return nil, fmt.Errorf("encode args for discriminant %d: %w", discriminant, err)
	}
	return append([]byte{discriminant}, body...), nil
}

// DataWithTag32 System Program 风格：u32 小端指令序号 + 参数
func DataWithTag32(tag uint32, args any) ([]byte, error) {
	data := binary.LittleEndian.AppendUint32(nil, tag)
	if args == nil {
		return data, nil
	}
	body, err := codec.EncodeValue(args)
	if err != nil {
		return nil, fmt.Errorf("encode args for tag %d: %w", tag, err)
	}
	return append(data, body...), nil
}
