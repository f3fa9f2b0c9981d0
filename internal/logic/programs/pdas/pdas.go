package pdas

import (
	"context"
	"fmt"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/logic/account"
	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/logic/pda"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
)

const (
	AddressSeed = "address"
	ProfileSeed = "profile"

	TextFieldSize = 512
)

// ecom 合约的指令枚举（borsh 枚举序号）
const (
	ixUpdateAddress  uint8 = 0
	ixUpdateUserInfo uint8 = 1
	ixInitialize     uint8 = 2
)

// AddressAccount 地址 PDA 的数据布局
type AddressAccount struct {
	Address [TextFieldSize]byte `codec:"address"`
}

// ProfileAccount 用户资料 PDA 的数据布局
type ProfileAccount struct {
	Name  [TextFieldSize]byte `codec:"name"`
	Date  int32               `codec:"date"`
	Month int32               `codec:"month"`
	Year  int32               `codec:"year"`
}

var (
	AddressSchema = codec.MustSchema("AddressSchema", codec.Bytes("address", TextFieldSize))
	ProfileSchema = codec.MustSchema("ProfileSchema",
		codec.Bytes("name", TextFieldSize),
		codec.I32("date"),
		codec.I32("month"),
		codec.I32("year"),
	)
)

// Profile 用户资料的文本形式
type Profile struct {
	Name  string
	Date  int32
	Month int32
	Year  int32
}

func (p Profile) toAccount() (ProfileAccount, error) {
	var a ProfileAccount
	if err := codec.PutString(a.Name[:], p.Name); err != nil {
		return a, fmt.Errorf("name: %w", err)
	}
	a.Date, a.Month, a.Year = p.Date, p.Month, p.Year
	return a, nil
}

func (a ProfileAccount) Profile() Profile {
	return Profile{Name: codec.CString(a.Name[:]), Date: a.Date, Month: a.Month, Year: a.Year}
}

// Programs 三个合约的 program id。两个 PDA 都由 Ecom 派生，分别归属 Address / Profile 合约
type Programs struct {
	Ecom    types.Pubkey
	Address types.Pubkey
	Profile types.Pubkey
}

func (p Programs) AddressPDA(wallet types.Pubkey) (pda.Derivation, error) {
	return pda.Derive(p.Ecom, []byte(AddressSeed), wallet.Bytes())
}

func (p Programs) ProfilePDA(wallet types.Pubkey) (pda.Derivation, error) {
	return pda.Derive(p.Ecom, []byte(ProfileSeed), wallet.Bytes())
}

// Initialize 由 ecom 合约为 payer 创建地址与资料两个 PDA
func (p Programs) Initialize(payer types.Pubkey) (*instruction.Instruction, error) {
	addr, err := p.AddressPDA(payer)
	if err != nil {
		return nil, err
	}
	profile, err := p.ProfilePDA(payer)
	if err != nil {
		return nil, err
	}
	data, err := instruction.EncodeData(ixInitialize, nil)
	if err != nil {
		return nil, err
	}
	return instruction.New(p.Ecom, []instruction.AccountMeta{
		instruction.Signer(payer, true),
		instruction.Writable(profile.Address),
		instruction.Writable(addr.Address),
		instruction.Readonly(p.Profile),
		instruction.Readonly(p.Address),
		instruction.Readonly(consts.SystemProgram),
	}, data)
}

func (p Programs) UpdateAddress(payer types.Pubkey, address string) (*instruction.Instruction, error) {
	d, err := p.AddressPDA(payer)
	if err != nil {
		return nil, err
	}
	var args AddressAccount
	if err := codec.PutString(args.Address[:], address); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	data, err := instruction.EncodeDataWithSchema(ixUpdateAddress, AddressSchema, args)
	if err != nil {
		return nil, err
	}
	return instruction.New(p.Ecom, []instruction.AccountMeta{
		instruction.Signer(payer, true),
		instruction.Writable(d.Address),
		instruction.Readonly(p.Address),
	}, data)
}

func (p Programs) UpdateUserInfo(payer types.Pubkey, profile Profile) (*instruction.Instruction, error) {
	d, err := p.ProfilePDA(payer)
	if err != nil {
		return nil, err
	}
	args, err := profile.toAccount()
	if err != nil {
		return nil, err
	}
	data, err := instruction.EncodeDataWithSchema(ixUpdateUserInfo, ProfileSchema, args)
	if err != nil {
		return nil, err
	}
	return instruction.New(p.Ecom, []instruction.AccountMeta{
		instruction.Signer(payer, true),
		instruction.Writable(d.Address),
		instruction.Readonly(p.Profile),
	}, data)
}

// Client ecom 合约的调用流程
type Client struct {
	programs Programs
	mgr      *txn.Manager
	reader   *account.Reader
}

func NewClient(p Programs, mgr *txn.Manager, reader *account.Reader) *Client {
	return &Client{programs: p, mgr: mgr, reader: reader}
}

func (c *Client) Programs() Programs {
	return c.programs
}

func (c *Client) Initialize(ctx context.Context, payer txn.Signer) (txn.Confirmation, error) {
	ix, err := c.programs.Initialize(payer.PublicKey())
	if err != nil {
		return txn.Confirmation{}, err
	}
	return c.send(ctx, "pdas:initialize", payer, ix)
}

func (c *Client) UpdateAddress(ctx context.Context, payer txn.Signer, address string) (txn.Confirmation, error) {
	ix, err := c.programs.UpdateAddress(payer.PublicKey(), address)
	if err != nil {
		return txn.Confirmation{}, err
	}
	return c.send(ctx, "pdas:update-address", payer, ix)
}

func (c *Client) UpdateProfile(ctx context.Context, payer txn.Signer, profile Profile) (txn.Confirmation, error) {
	ix, err := c.programs.UpdateUserInfo(payer.PublicKey(), profile)
	if err != nil {
		return txn.Confirmation{}, err
	}
	return c.send(ctx, "pdas:update-profile", payer, ix)
}

func (c *Client) send(ctx context.Context, label string, payer txn.Signer, ix *instruction.Instruction) (txn.Confirmation, error) {
	tx, err := txn.NewTransaction(payer.PublicKey(), ix)
	if err != nil {
		return txn.Confirmation{}, err
	}
	logger.Debugf("[Pdas] 发送 %s: payer=%s", label, payer.PublicKey())
	return c.mgr.SendAndConfirm(ctx, tx.WithLabel(label), payer)
}

// ReadAddress 读取 wallet 的地址 PDA，返回去掉补零后的文本
func (c *Client) ReadAddress(ctx context.Context, wallet types.Pubkey) (string, error) {
	d, err := c.programs.AddressPDA(wallet)
	if err != nil {
		return "", err
	}
	var a AddressAccount
	if err := c.reader.Read(ctx, d.Address, AddressSchema, &a); err != nil {
		return "", err
	}
	return codec.CString(a.Address[:]), nil
}

func (c *Client) ReadProfile(ctx context.Context, wallet types.Pubkey) (Profile, error) {
	d, err := c.programs.ProfilePDA(wallet)
	if err != nil {
		return Profile{}, err
	}
	var a ProfileAccount
	if err := c.reader.Read(ctx, d.Address, ProfileSchema, &a); err != nil {
		return Profile{}, err
	}
	return a.Profile(), nil
}
