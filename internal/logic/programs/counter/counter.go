package counter

import (
	"context"
	"fmt"
	"math"

	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/account"
	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/logic/programs/system"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

// GreetingAccount 计数器账户数据
type GreetingAccount struct {
	Counter uint32 `codec:"counter"`
}

var GreetingSchema = codec.MustSchema("GreetingAccount", codec.U32("counter"))

// AccountSize 计数器账户的数据长度
var AccountSize = uint64(GreetingSchema.Width())

// 计算器指令：1 = 加 n
const opAdd uint8 = 1

type addArgs struct {
	N uint32
}

// IncrementInstruction 空数据即计数加一
func IncrementInstruction(program, dataAccount types.Pubkey) (*instruction.Instruction, error) {
	return instruction.New(program, []instruction.AccountMeta{instruction.Writable(dataAccount)}, nil)
}

// AddInstruction 数据为 [1] ‖ u32(n)
func AddInstruction(program, dataAccount types.Pubkey, n uint32) (*instruction.Instruction, error) {
	data, err := instruction.EncodeData(opAdd, addArgs{N: n})
	if err != nil {
		return nil, err
	}
	return instruction.New(program, []instruction.AccountMeta{instruction.Writable(dataAccount)}, data)
}

// Client 计数器程序的调用流程
type Client struct {
	program   types.Pubkey
	transport transport.Transport
	mgr       *txn.Manager
	reader    *account.Reader
}

func NewClient(program types.Pubkey, t transport.Transport, mgr *txn.Manager, reader *account.Reader) *Client {
	return &Client{program: program, transport: t, mgr: mgr, reader: reader}
}

func (c *Client) Program() types.Pubkey {
	return c.program
}

// CreateDataAccount 用新生成的密钥对创建一个归属于计数器程序的数据账户
func (c *Client) CreateDataAccount(ctx context.Context, payer txn.Signer) (types.Pubkey, txn.Confirmation, error) {
	kp, err := keys.Generate()
	if err != nil {
		return types.Pubkey{}, txn.Confirmation{}, err
	}
	lamports, err := c.transport.GetMinimumFundingForSize(ctx, AccountSize)
	if err != nil {
		return types.Pubkey{}, txn.Confirmation{}, fmt.Errorf("query rent exemption: %w", err)
	}

	ix, err := system.CreateAccount(payer.PublicKey(), kp.PublicKey(), lamports, AccountSize, c.program)
	if err != nil {
		return types.Pubkey{}, txn.Confirmation{}, err
	}
	tx, err := txn.NewTransaction(payer.PublicKey(), ix)
	if err != nil {
		return types.Pubkey{}, txn.Confirmation{}, err
	}

	logger.Infof("[Counter] 创建数据账户: account=%s, lamports=%d", kp.PublicKey(), lamports)
	conf, err := c.mgr.SendAndConfirm(ctx, tx.WithLabel("counter:create"), payer, kp)
	return kp.PublicKey(), conf, err
}

func (c *Client) Increment(ctx context.Context, payer txn.Signer, dataAccount types.Pubkey) (txn.Confirmation, error) {
	ix, err := IncrementInstruction(c.program, dataAccount)
	if err != nil {
		return txn.Confirmation{}, err
	}
	return c.send(ctx, "counter:increment", payer, ix)
}

func (c *Client) Add(ctx context.Context, payer txn.Signer, dataAccount types.Pubkey, n uint32) (txn.Confirmation, error) {
	ix, err := AddInstruction(c.program, dataAccount, n)
	if err != nil {
		return txn.Confirmation{}, err
	}
	return c.send(ctx, "counter:add", payer, ix)
}

func (c *Client) send(ctx context.Context, label string, payer txn.Signer, ix *instruction.Instruction) (txn.Confirmation, error) {
	tx, err := txn.NewTransaction(payer.PublicKey(), ix)
	if err != nil {
		return txn.Confirmation{}, err
	}
	return c.mgr.SendAndConfirm(ctx, tx.WithLabel(label), payer)
}

// Read 读取计数器账户，账户 owner 必须是计数器程序
func (c *Client) Read(ctx context.Context, dataAccount types.Pubkey) (GreetingAccount, error) {
	var g GreetingAccount
	err := c.reader.ReadOwned(ctx, dataAccount, c.program, GreetingSchema, &g)
	return g, err
}

// Handler 计数器/计算器程序的模拟实现
func Handler(inv programs.Invocation, st *programs.State) error {
	meta, err := inv.Account(0)
	if err != nil {
		return err
	}

	var delta uint32
	switch {
	case len(inv.Data) == 0:
		delta = 1
	case len(inv.Data) == 1+4 && inv.Data[0] == opAdd:
		args, err := codec.DecodeAs[addArgs](inv.Data[1:])
		if err != nil {
			return fmt.Errorf("%w: %v", programs.ErrProgram, err)
		}
		delta = args.N
	default:
		return programs.ErrUnhandled
	}

	acc, ok := st.Account(meta.Pubkey)
	if !ok || acc.Owner != inv.ProgramID {
		return fmt.Errorf("%w: greeted account does not have the correct program id", programs.ErrProgram)
	}
	if !meta.IsWritable {
		return fmt.Errorf("%w: greeted account is not writable", programs.ErrProgram)
	}

	var g GreetingAccount
	if err := codec.Decode(GreetingSchema, acc.Data, &g); err != nil {
		return fmt.Errorf("%w: %v", programs.ErrProgram, err)
	}
	if uint64(g.Counter)+uint64(delta) > math.MaxUint32 {
		return fmt.Errorf("%w: counter overflow", programs.ErrProgram)
	}
	g.Counter += delta

	data, err := codec.Encode(GreetingSchema, g)
	if err != nil {
		return err
	}
	acc.Data = data
	st.PutAccount(meta.Pubkey, acc)
	return nil
}
