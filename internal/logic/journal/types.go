package journal

import (
	"context"
	"errors"
	"time"

	"pda-client-sol/internal/pkg/types"
)

var ErrNotFound = errors.New("journal: entry not found")

// Status 交易在本地日志中的状态（与 Redis 编码一致）
type Status int

const (
	StatusUnknown   Status = 0 // 不存在
	StatusSubmitted Status = 1 // 🕒 已提交，尚未确认
	StatusConfirmed Status = 2 // ✅ 已确认
	StatusFailed    Status = 3 // ❌ 上链但执行失败
	StatusTimedOut  Status = 4 // ⏱ 等待确认超时，结果未知
	StatusCancelled Status = 5 // 调用方取消，结果未知
	StatusExpired   Status = 6 // blockhash 过期，确定不会上链
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Resolved 终态不再需要人工复查
func (s Status) Resolved() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusExpired
}

// Entry 一笔已提交交易的记录
type Entry struct {
	Signature   types.Signature `json:"signature"`
	Label       string          `json:"label"`
	Status      Status          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Slot        uint64          `json:"slot,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// 签名所用 blockhash 的最后有效高度，0 表示未知（如 airdrop）
	LastValidBlockHeight uint64 `json:"last_valid_block_height,omitempty"`
}

// Journal 记录提交过的交易，供 recheck 复查未决结果
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Get(ctx context.Context, sig types.Signature) (Entry, error)
	Pending(ctx context.Context) ([]Entry, error)
}

// merge 保留首次提交时间、label 与最后有效高度
func merge(prev *Entry, e Entry) Entry {
	if prev != nil {
		if e.LastValidBlockHeight == 0 {
			e.LastValidBlockHeight = prev.LastValidBlockHeight
		}
		if !prev.SubmittedAt.IsZero() {
			e.SubmittedAt = prev.SubmittedAt
			if e.Label == "" {
				e.Label = prev.Label
			}
		}
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = e.UpdatedAt
	}
	return e
}
