package transport

import (
	"context"
	"errors"

	"pda-client-sol/internal/pkg/types"
)

var (
	// ErrTransport 网络层失败（连接、超时、节点错误）。提交失败时结果未知，由调用方决定是否重试
	ErrTransport = errors.New("transport error")
	// ErrNotFound 账户不存在
	ErrNotFound = errors.New("transport: not found")
)

// SequenceMarker 防重放的一次性标记：最近区块哈希及其最后有效区块高度
type SequenceMarker struct {
	Blockhash            types.Hash
	LastValidBlockHeight uint64
}

type TxStatus int

const (
	TxPending   TxStatus = iota // 未找到或未达到要求的确认级别
	TxFinalized                 // 已达到要求的确认级别且执行成功
	TxRejected                  // 已上链但执行失败
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxFinalized:
		return "finalized"
	case TxRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type TxStatusResult struct {
	Status TxStatus
	Slot   uint64
	Reason string // 仅 TxRejected 时有值
}

// AccountInfo 账户原始内容
type AccountInfo struct {
	Lamports   uint64
	Owner      types.Pubkey
	Executable bool
	Data       []byte
}

// Transport 核心逻辑依赖的网络接口
type Transport interface {
	GetRecentSequenceMarker(ctx context.Context) (SequenceMarker, error)
	SendTransaction(ctx context.Context, raw []byte) (types.Signature, error)
	GetTransactionStatus(ctx context.Context, sig types.Signature) (TxStatusResult, error)
	GetAccount(ctx context.Context, addr types.Pubkey) (*AccountInfo, error)
	GetMinimumFundingForSize(ctx context.Context, size uint64) (uint64, error)

	GetBlockHeight(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, addr types.Pubkey) (uint64, error)
	RequestAirdrop(ctx context.Context, addr types.Pubkey, lamports uint64) (types.Signature, error)
}
