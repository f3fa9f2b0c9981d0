package txn

import (
	"fmt"
	"sync"

	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

// MaxPacketSize 单笔交易序列化后的上限
const MaxPacketSize = 1232

type Status int

const (
	StatusBuilt Status = iota
	StatusSigned
	StatusSubmitted
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusBuilt:
		return "built"
	case StatusSigned:
		return "signed"
	case StatusSubmitted:
		return "submitted"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Signer 能对消息签名的密钥
type Signer interface {
	PublicKey() types.Pubkey
	Sign(message []byte) types.Signature
}

// Transaction 按顺序执行的一批指令及其生命周期状态。
// 一笔交易归属一个流程，内部互斥锁只防止误用时的并发签名/提交
type Transaction struct {
	mu sync.Mutex

	label        string
	payer        types.Pubkey
	instructions []*instruction.Instruction

	status     Status
	marker     transport.SequenceMarker
	signatures []types.Signature
	raw        []byte
	reason     string
	slot       uint64
}

// NewTransaction payer 支付手续费，并且必须是签名者
func NewTransaction(payer types.Pubkey, instrs ...*instruction.Instruction) (*Transaction, error) {
	if len(instrs) == 0 {
		return nil, ErrNoInstructions
	}
	for i, ix := range instrs {
		if ix == nil {
			return nil, fmt.Errorf("%w: instruction #%d is nil", ErrNoInstructions, i)
		}
	}
	return &Transaction{
		payer:        payer,
		instructions: append([]*instruction.Instruction(nil), instrs...),
		status:       StatusBuilt,
	}, nil
}

// WithLabel 仅用于日志和 journal
func (tx *Transaction) WithLabel(label string) *Transaction {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.label = label
	return tx
}

func (tx *Transaction) Label() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.label
}

func (tx *Transaction) Payer() types.Pubkey {
	return tx.payer
}

func (tx *Transaction) Instructions() []*instruction.Instruction {
	return append([]*instruction.Instruction(nil), tx.instructions...)
}

func (tx *Transaction) Status() Status {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

// Signature 首个签名即交易 ID；未签名时为零值
func (tx *Transaction) Signature() types.Signature {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.signatures) == 0 {
		return types.Signature{}
	}
	return tx.signatures[0]
}

func (tx *Transaction) Signatures() []types.Signature {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return append([]types.Signature(nil), tx.signatures...)
}

func (tx *Transaction) Marker() transport.SequenceMarker {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.marker
}

// Raw 已签名交易的线格式字节
func (tx *Transaction) Raw() []byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return append([]byte(nil), tx.raw...)
}

// Reason 失败原因，仅 StatusFailed 时有值
func (tx *Transaction) Reason() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.reason
}

func (tx *Transaction) Slot() uint64 {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.slot
}
