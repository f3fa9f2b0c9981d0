package funding

import (
	"context"
	"fmt"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

const (
	defaultMinAccountSize  = 1000
	defaultSignatureBudget = 100
)

type Option struct {
	MinAccountSize  uint64 // 预留可创建的账户大小（字节）
	SignatureBudget uint64 // 预留的签名次数
	AirdropLamports uint64 // 0 表示按差额申请
}

// Result 资金检查的结果
type Result struct {
	Required  uint64
	Balance   uint64
	Airdrop   types.Signature
	Requested uint64
}

// Funder 确保付款账户有足够余额支付租金与手续费，不足时申请空投
type Funder struct {
	transport transport.Transport
	mgr       *txn.Manager
	opt       Option
}

func NewFunder(t transport.Transport, mgr *txn.Manager, opt Option) *Funder {
	if opt.MinAccountSize == 0 {
		opt.MinAccountSize = defaultMinAccountSize
	}
	if opt.SignatureBudget == 0 {
		opt.SignatureBudget = defaultSignatureBudget
	}
	return &Funder{transport: t, mgr: mgr, opt: opt}
}

// Required 免租最低余额 + 签名预算
func (f *Funder) Required(ctx context.Context) (uint64, error) {
	rent, err := f.transport.GetMinimumFundingForSize(ctx, f.opt.MinAccountSize)
	if err != nil {
		return 0, fmt.Errorf("query rent exemption: %w", err)
	}
	return rent + f.opt.SignatureBudget*consts.LamportsPerSignature, nil
}

// EnsureFunded 余额不足时申请空投并等待确认
func (f *Funder) EnsureFunded(ctx context.Context, payer types.Pubkey) (Result, error) {
	required, err := f.Required(ctx)
	if err != nil {
		return Result{}, err
	}
	balance, err := f.transport.GetBalance(ctx, payer)
	if err != nil {
		return Result{}, fmt.Errorf("query balance: %w", err)
	}

	res := Result{Required: required, Balance: balance}
	if balance >= required {
		logger.Infof("[Funding] 余额充足: payer=%s, balance=%d, required=%d", payer, balance, required)
		return res, nil
	}

	amount := required - balance
	if f.opt.AirdropLamports > amount {
		amount = f.opt.AirdropLamports
	}
	sig, err := f.Airdrop(ctx, payer, amount)
	res.Airdrop, res.Requested = sig, amount
	if err != nil {
		return res, err
	}

	if res.Balance, err = f.transport.GetBalance(ctx, payer); err != nil {
		return res, fmt.Errorf("query balance: %w", err)
	}
	return res, nil
}

// Airdrop 申请空投并等待确认
func (f *Funder) Airdrop(ctx context.Context, to types.Pubkey, lamports uint64) (types.Signature, error) {
	logger.Infof("[Funding] 申请空投: to=%s, lamports=%d", to, lamports)
	sig, err := f.transport.RequestAirdrop(ctx, to, lamports)
	if err != nil {
		return types.Signature{}, fmt.Errorf("request airdrop: %w", err)
	}
	opt := f.mgr.ConfirmOption()
	if _, err := f.mgr.ConfirmSignature(ctx, sig, opt.Timeout, opt.PollInterval); err != nil {
		return sig, fmt.Errorf("confirm airdrop %s: %w", sig, err)
	}
	return sig, nil
}
